package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	userapp "github.com/usagelab/mobile-usage-api/internal/application"
	"github.com/usagelab/mobile-usage-api/internal/domain/entity"
	repo "github.com/usagelab/mobile-usage-api/internal/domain/repository"
)

// memRepo is an in-memory repository.UserRepository: aggregates in a map,
// flat rows in slices, ids from one counter. Mirrors the store contract
// closely enough to drive the handlers end to end.
type memRepo struct {
	users     map[int]*entity.User
	devices   []entity.Device
	samples   []entity.AppUsage
	behaviors []entity.UserBehavior
	nextID    int64
}

func newMemRepo() *memRepo {
	return &memRepo{users: map[int]*entity.User{}}
}

func (m *memRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func copyUser(u *entity.User) *entity.User {
	cp := *u
	cp.Devices = append([]entity.Device{}, u.Devices...)
	cp.AppUsage = append([]entity.AppUsage{}, u.AppUsage...)
	return &cp
}

func (m *memRepo) fillIDs(u *entity.User) {
	for i := range u.Devices {
		u.Devices[i].DeviceID = m.id()
	}
	for i := range u.AppUsage {
		u.AppUsage[i].AppUsageID = m.id()
	}
	u.UserBehavior.BehaviorID = m.id()
}

func (m *memRepo) Create(_ context.Context, u *entity.User) error {
	if _, ok := m.users[u.UserID]; ok {
		return fmt.Errorf("duplicate user %d", u.UserID)
	}
	m.fillIDs(u)
	m.users[u.UserID] = copyUser(u)
	return nil
}

func (m *memRepo) GetByID(_ context.Context, userID int) (*entity.User, error) {
	u, ok := m.users[userID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return copyUser(u), nil
}

func (m *memRepo) GetLatest(ctx context.Context) (*entity.User, error) {
	latest := 0
	for id := range m.users {
		if id > latest {
			latest = id
		}
	}
	if latest == 0 {
		return nil, repo.ErrNotFound
	}
	return m.GetByID(ctx, latest)
}

func (m *memRepo) List(_ context.Context) ([]entity.User, error) {
	ids := make([]int, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]entity.User, 0, len(ids))
	for _, id := range ids {
		out = append(out, *copyUser(m.users[id]))
	}
	return out, nil
}

func (m *memRepo) Update(_ context.Context, u *entity.User) error {
	if _, ok := m.users[u.UserID]; !ok {
		return repo.ErrNotFound
	}
	m.fillIDs(u)
	m.users[u.UserID] = copyUser(u)
	return nil
}

func (m *memRepo) Delete(_ context.Context, userID int) error {
	if _, ok := m.users[userID]; !ok {
		return repo.ErrNotFound
	}
	delete(m.users, userID)
	return nil
}

func (m *memRepo) AddDevice(_ context.Context, d *entity.Device) error {
	if _, ok := m.users[d.UserID]; !ok {
		return repo.ErrReferentialIntegrity
	}
	d.DeviceID = m.id()
	m.devices = append(m.devices, *d)
	return nil
}

func (m *memRepo) AddAppUsage(_ context.Context, a *entity.AppUsage) error {
	if _, ok := m.users[a.UserID]; !ok {
		return repo.ErrReferentialIntegrity
	}
	a.AppUsageID = m.id()
	m.samples = append(m.samples, *a)
	return nil
}

func (m *memRepo) AddBehavior(_ context.Context, b *entity.UserBehavior) error {
	if _, ok := m.users[b.UserID]; !ok {
		return repo.ErrReferentialIntegrity
	}
	b.BehaviorID = m.id()
	m.behaviors = append(m.behaviors, *b)
	return nil
}

func (m *memRepo) ListDevices(_ context.Context) ([]entity.Device, error) {
	return append([]entity.Device{}, m.devices...), nil
}

func (m *memRepo) ListAppUsage(_ context.Context) ([]entity.AppUsage, error) {
	return append([]entity.AppUsage{}, m.samples...), nil
}

func (m *memRepo) ListBehaviors(_ context.Context) ([]entity.UserBehavior, error) {
	return append([]entity.UserBehavior{}, m.behaviors...), nil
}

var _ repo.UserRepository = (*memRepo)(nil)

// newTestServer wires the handlers onto a bare engine the way the route
// modules do, minus middleware.
func newTestServer(r repo.UserRepository) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := userapp.NewService(r, nil, 0, nil, nil, nil, "", nil, "")
	uh := NewUserHandler(svc, nil)
	th := NewTelemetryHandler(svc, nil)

	e := gin.New()
	e.POST("/users/", uh.Create)
	e.GET("/users", uh.List)
	e.GET("/users/latest", uh.GetLatest)
	e.GET("/users/search", uh.Search)
	e.POST("/users/export", uh.Export)
	e.GET("/users/:user_id", uh.Get)
	e.PUT("/users/:user_id", uh.Update)
	e.DELETE("/users/:user_id", uh.Delete)
	e.POST("/devices/", th.CreateDevice)
	e.GET("/devices/", th.ListDevices)
	e.POST("/app-usage/", th.CreateAppUsage)
	e.GET("/app-usage/", th.ListAppUsage)
	e.POST("/user-behavior/", th.CreateBehavior)
	e.GET("/user-behavior/", th.ListBehaviors)
	return e
}

func doJSON(t *testing.T, e *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Status  int             `json:"status"`
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func samplePayload(userID int) map[string]any {
	return map[string]any{
		"user_id": userID,
		"age":     30,
		"gender":  "M",
		"devices": []map[string]any{
			{"device_model": "Pixel 5", "operating_system": "Android", "number_of_apps_installed": 40},
			{"device_model": "iPhone 12", "operating_system": "iOS", "number_of_apps_installed": 55},
		},
		"app_usage": []map[string]any{
			{"app_usage_time": 150, "screen_on_time": 3.5, "battery_drain": 1200, "data_usage": 750},
		},
		"user_behavior": map[string]any{"user_behavior_class": 2},
	}
}

func TestCreateUserEchoesAggregateWithGeneratedIDs(t *testing.T) {
	e := newTestServer(newMemRepo())

	w := doJSON(t, e, http.MethodPost, "/users/", samplePayload(5))
	require.Equal(t, http.StatusCreated, w.Code)

	env := decodeEnvelope(t, w)
	assert.True(t, env.Success)

	var u entity.User
	require.NoError(t, json.Unmarshal(env.Data, &u))
	assert.Equal(t, 5, u.UserID)
	assert.Equal(t, 30, u.Age)
	assert.Equal(t, "M", u.Gender)
	require.Len(t, u.Devices, 2)
	require.Len(t, u.AppUsage, 1)
	assert.NotZero(t, u.Devices[0].DeviceID)
	assert.NotZero(t, u.Devices[1].DeviceID)
	assert.NotZero(t, u.AppUsage[0].AppUsageID)
	assert.Equal(t, 2, u.UserBehavior.UserBehaviorClass)
}

func TestCreateThenReadBackMatches(t *testing.T) {
	e := newTestServer(newMemRepo())
	require.Equal(t, http.StatusCreated, doJSON(t, e, http.MethodPost, "/users/", samplePayload(5)).Code)

	w := doJSON(t, e, http.MethodGet, "/users/5", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var u entity.User
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &u))
	assert.Equal(t, 5, u.UserID)
	assert.Len(t, u.Devices, 2)
	assert.Len(t, u.AppUsage, 1)
	assert.Equal(t, 2, u.UserBehavior.UserBehaviorClass)

	// The created aggregate is the sole element of the listing.
	w = doJSON(t, e, http.MethodGet, "/users", nil)
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.EqualValues(t, 1, env.Meta["count"])

	var users []entity.User
	require.NoError(t, json.Unmarshal(env.Data, &users))
	require.Len(t, users, 1)
	assert.Equal(t, 5, users[0].UserID)
}

func TestCreateUserValidationFailure(t *testing.T) {
	e := newTestServer(newMemRepo())

	// Missing gender and non-positive user_id.
	w := doJSON(t, e, http.MethodPost, "/users/", map[string]any{"user_id": 0, "age": 30})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, decodeEnvelope(t, w).Success)
}

func TestCreateUserStoreFailure(t *testing.T) {
	e := newTestServer(newMemRepo())
	require.Equal(t, http.StatusCreated, doJSON(t, e, http.MethodPost, "/users/", samplePayload(5)).Code)

	// Duplicate key is neither not-found nor referential, so it surfaces as
	// a generic store failure.
	w := doJSON(t, e, http.MethodPost, "/users/", samplePayload(5))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetUserNotFound(t *testing.T) {
	e := newTestServer(newMemRepo())

	w := doJSON(t, e, http.MethodGet, "/users/42", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, decodeEnvelope(t, w).Success)
}

func TestGetUserInvalidID(t *testing.T) {
	e := newTestServer(newMemRepo())

	w := doJSON(t, e, http.MethodGet, "/users/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetUserEmptyRelationsSerializeAsArrays(t *testing.T) {
	e := newTestServer(newMemRepo())
	payload := map[string]any{"user_id": 9, "age": 61, "gender": "F"}
	require.Equal(t, http.StatusCreated, doJSON(t, e, http.MethodPost, "/users/", payload).Code)

	w := doJSON(t, e, http.MethodGet, "/users/9", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"devices":[]`)
	assert.Contains(t, w.Body.String(), `"app_usage":[]`)
}

func TestGetLatestEmptyStore(t *testing.T) {
	e := newTestServer(newMemRepo())

	w := doJSON(t, e, http.MethodGet, "/users/latest", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetLatestReturnsHighestID(t *testing.T) {
	e := newTestServer(newMemRepo())
	require.Equal(t, http.StatusCreated, doJSON(t, e, http.MethodPost, "/users/", samplePayload(3)).Code)
	require.Equal(t, http.StatusCreated, doJSON(t, e, http.MethodPost, "/users/", samplePayload(8)).Code)

	w := doJSON(t, e, http.MethodGet, "/users/latest", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var u entity.User
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &u))
	assert.Equal(t, 8, u.UserID)
}

func TestListEmptyStore(t *testing.T) {
	e := newTestServer(newMemRepo())

	w := doJSON(t, e, http.MethodGet, "/users", nil)
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.EqualValues(t, 0, env.Meta["count"])
}

func TestUpdateUnknownUser(t *testing.T) {
	e := newTestServer(newMemRepo())

	w := doJSON(t, e, http.MethodPut, "/users/42", samplePayload(42))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateReplacesChildSetsAndPathIDWins(t *testing.T) {
	e := newTestServer(newMemRepo())
	require.Equal(t, http.StatusCreated, doJSON(t, e, http.MethodPost, "/users/", samplePayload(5)).Code)

	// Body claims user_id 99; the path identifies the subject.
	update := map[string]any{
		"user_id": 99,
		"age":     31,
		"gender":  "M",
		"devices": []map[string]any{
			{"device_model": "Galaxy S21", "operating_system": "Android", "number_of_apps_installed": 70},
		},
	}
	w := doJSON(t, e, http.MethodPut, "/users/5", update)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, e, http.MethodGet, "/users/5", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var u entity.User
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &u))
	assert.Equal(t, 31, u.Age)
	require.Len(t, u.Devices, 1)
	assert.Equal(t, "Galaxy S21", u.Devices[0].DeviceModel)
	assert.Empty(t, u.AppUsage)

	// Nothing was created under the body's user_id.
	assert.Equal(t, http.StatusNotFound, doJSON(t, e, http.MethodGet, "/users/99", nil).Code)
}

func TestDeleteUnknownUser(t *testing.T) {
	e := newTestServer(newMemRepo())

	w := doJSON(t, e, http.MethodDelete, "/users/42", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteThenGetNotFound(t *testing.T) {
	e := newTestServer(newMemRepo())
	require.Equal(t, http.StatusCreated, doJSON(t, e, http.MethodPost, "/users/", samplePayload(5)).Code)

	require.Equal(t, http.StatusOK, doJSON(t, e, http.MethodDelete, "/users/5", nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, e, http.MethodGet, "/users/5", nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, e, http.MethodDelete, "/users/5", nil).Code)
}

func TestSearchRequiresQuery(t *testing.T) {
	e := newTestServer(newMemRepo())

	w := doJSON(t, e, http.MethodGet, "/users/search", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchWithoutBackendReturnsEmpty(t *testing.T) {
	e := newTestServer(newMemRepo())

	w := doJSON(t, e, http.MethodGet, "/users/search?q=android", nil)
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.EqualValues(t, 0, env.Meta["count"])
}

func TestExportUnconfigured(t *testing.T) {
	e := newTestServer(newMemRepo())

	w := doJSON(t, e, http.MethodPost, "/users/export", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPoolExhaustionMapsTo503(t *testing.T) {
	e := newTestServer(&failRepo{err: repo.ErrPoolExhausted})

	w := doJSON(t, e, http.MethodGet, "/users", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// failRepo returns one fixed error from every operation.
type failRepo struct{ err error }

func (f *failRepo) Create(context.Context, *entity.User) error         { return f.err }
func (f *failRepo) GetByID(context.Context, int) (*entity.User, error) { return nil, f.err }
func (f *failRepo) GetLatest(context.Context) (*entity.User, error)    { return nil, f.err }
func (f *failRepo) List(context.Context) ([]entity.User, error)        { return nil, f.err }
func (f *failRepo) Update(context.Context, *entity.User) error         { return f.err }
func (f *failRepo) Delete(context.Context, int) error                  { return f.err }
func (f *failRepo) AddDevice(context.Context, *entity.Device) error    { return f.err }
func (f *failRepo) AddAppUsage(context.Context, *entity.AppUsage) error {
	return f.err
}
func (f *failRepo) AddBehavior(context.Context, *entity.UserBehavior) error {
	return f.err
}
func (f *failRepo) ListDevices(context.Context) ([]entity.Device, error) {
	return nil, f.err
}
func (f *failRepo) ListAppUsage(context.Context) ([]entity.AppUsage, error) {
	return nil, f.err
}
func (f *failRepo) ListBehaviors(context.Context) ([]entity.UserBehavior, error) {
	return nil, f.err
}

var _ repo.UserRepository = (*failRepo)(nil)
