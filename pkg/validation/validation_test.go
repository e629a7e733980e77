package validation

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type userPayload struct {
	UserID int    `json:"user_id" validate:"required,gt=0"`
	Gender string `json:"gender" validate:"required"`
	Age    int    `json:"age" validate:"gte=0"`
}

func TestToDetailsNil(t *testing.T) {
	assert.Nil(t, ToDetails(nil))
}

func TestToDetailsValidationErrors(t *testing.T) {
	v := validator.New()
	err := v.Struct(userPayload{UserID: 0, Gender: "", Age: -1})
	require.Error(t, err)

	details := ToDetails(err)
	require.Len(t, details, 3)
	assert.Equal(t, "is required", details["UserID"])
	assert.Equal(t, "is required", details["Gender"])
	assert.Equal(t, "must be greater than or equal to 0", details["Age"])
}

func TestToDetailsUnknownError(t *testing.T) {
	details := ToDetails(errors.New("read: connection reset"))
	assert.Equal(t, map[string]string{"payload": "invalid payload"}, details)
}
