package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestSuccessEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("request_id", "req-1")

	Success(c, http.StatusCreated, map[string]any{"user_id": 5}, "created", map[string]any{"count": 1})

	require.Equal(t, http.StatusCreated, w.Code)
	var env map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.EqualValues(t, http.StatusCreated, env["status"])
	assert.Equal(t, true, env["success"])
	assert.Equal(t, "created", env["message"])
	assert.Equal(t, "req-1", env["request_id"])
	assert.NotEmpty(t, env["timestamp"])
}

func TestErrorEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error[any](c, http.StatusNotFound, "user not found", map[string]string{"user_id": "unknown"})

	require.Equal(t, http.StatusNotFound, w.Code)
	var env map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, false, env["success"])
	assert.Equal(t, "user not found", env["message"])
	assert.NotNil(t, env["error"])
}

func TestZeroStatusDefaults(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Success(c, 0, "ok", "done", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w2 := httptest.NewRecorder()
	c2, _ := gin.CreateTestContext(w2)
	Error[any](c2, 0, "bad", nil)
	assert.Equal(t, http.StatusBadRequest, w2.Code)
}
