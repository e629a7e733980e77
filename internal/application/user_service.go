package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/usagelab/mobile-usage-api/internal/domain/entity"
	repo "github.com/usagelab/mobile-usage-api/internal/domain/repository"
	"github.com/usagelab/mobile-usage-api/pkg/helpers"
)

var ErrExportNotConfigured = errors.New("gcs export not configured")

// Change event actions published after each successful write.
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

// ChangeEvent is the message published to the change queue. The indexer
// worker consumes these to keep the search index current.
type ChangeEvent struct {
	Action string    `json:"action"`
	UserID int       `json:"user_id"`
	At     time.Time `json:"at"`
}

// Service fronts the repository and performs no aggregate logic of its own.
// Cache, event, search, and export collaborators are all optional; a nil
// collaborator disables that concern.
type Service struct {
	Repo         repo.UserRepository
	Redis        *redis.Client
	CacheTTL     time.Duration
	Logger       *logrus.Logger
	Events       *helpers.RabbitPublisher
	ES           *elasticsearch.Client
	ESUsersIndex string
	GCS          *storage.Client
	GCSBucket    string
}

func NewService(r repo.UserRepository, rdb *redis.Client, cacheTTL time.Duration, logger *logrus.Logger, events *helpers.RabbitPublisher, es *elasticsearch.Client, esUsersIndex string, gcs *storage.Client, gcsBucket string) *Service {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Service{
		Repo:         r,
		Redis:        rdb,
		CacheTTL:     cacheTTL,
		Logger:       logger,
		Events:       events,
		ES:           es,
		ESUsersIndex: esUsersIndex,
		GCS:          gcs,
		GCSBucket:    gcsBucket,
	}
}

func cacheKey(userID int) string {
	return "user:aggregate:" + strconv.Itoa(userID)
}

func (s *Service) cacheSet(ctx context.Context, u *entity.User) {
	if s.Redis == nil {
		return
	}
	if err := helpers.RedisSetJSON(ctx, s.Redis, cacheKey(u.UserID), u, s.CacheTTL); err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithField("user_id", u.UserID).Warn("cache set failed")
	}
}

func (s *Service) cacheDrop(ctx context.Context, userID int) {
	if s.Redis == nil {
		return
	}
	if err := helpers.RedisDel(ctx, s.Redis, cacheKey(userID)); err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithField("user_id", userID).Warn("cache del failed")
	}
}

func (s *Service) publish(ctx context.Context, action string, userID int) {
	if s.Events == nil {
		return
	}
	ev := ChangeEvent{Action: action, UserID: userID, At: time.Now().UTC()}
	if err := s.Events.PublishJSON(ctx, ev); err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithFields(logrus.Fields{"action": action, "user_id": userID}).Warn("event publish failed")
	}
}

// CreateUser persists a whole aggregate. Generated child ids are filled in
// on the passed value.
func (s *Service) CreateUser(ctx context.Context, u *entity.User) error {
	normalize(u)
	if err := s.Repo.Create(ctx, u); err != nil {
		return err
	}
	s.cacheSet(ctx, u)
	s.publish(ctx, EventUserCreated, u.UserID)
	return nil
}

// GetUser reads through the aggregate cache.
func (s *Service) GetUser(ctx context.Context, userID int) (*entity.User, error) {
	if s.Redis != nil {
		var cached entity.User
		hit, err := helpers.RedisGetJSON(ctx, s.Redis, cacheKey(userID), &cached)
		if err != nil && s.Logger != nil {
			s.Logger.WithError(err).WithField("user_id", userID).Warn("cache get failed")
		}
		if hit {
			normalize(&cached)
			return &cached, nil
		}
	}
	u, err := s.Repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, u)
	return u, nil
}

// GetLatestUser returns the aggregate with the highest user_id. Not cached:
// any create can change the answer.
func (s *Service) GetLatestUser(ctx context.Context) (*entity.User, error) {
	return s.Repo.GetLatest(ctx)
}

func (s *Service) ListUsers(ctx context.Context) ([]entity.User, error) {
	return s.Repo.List(ctx)
}

// UpdateUser replaces the aggregate wholesale.
func (s *Service) UpdateUser(ctx context.Context, u *entity.User) error {
	normalize(u)
	if err := s.Repo.Update(ctx, u); err != nil {
		return err
	}
	s.cacheSet(ctx, u)
	s.publish(ctx, EventUserUpdated, u.UserID)
	return nil
}

func (s *Service) DeleteUser(ctx context.Context, userID int) error {
	if err := s.Repo.Delete(ctx, userID); err != nil {
		return err
	}
	s.cacheDrop(ctx, userID)
	s.publish(ctx, EventUserDeleted, userID)
	return nil
}

// AddDevice inserts one flat device row; the owning aggregate's cache entry
// becomes stale and is dropped.
func (s *Service) AddDevice(ctx context.Context, d *entity.Device) error {
	if err := s.Repo.AddDevice(ctx, d); err != nil {
		return err
	}
	s.cacheDrop(ctx, d.UserID)
	s.publish(ctx, EventUserUpdated, d.UserID)
	return nil
}

func (s *Service) AddAppUsage(ctx context.Context, a *entity.AppUsage) error {
	if err := s.Repo.AddAppUsage(ctx, a); err != nil {
		return err
	}
	s.cacheDrop(ctx, a.UserID)
	s.publish(ctx, EventUserUpdated, a.UserID)
	return nil
}

func (s *Service) AddBehavior(ctx context.Context, b *entity.UserBehavior) error {
	if err := s.Repo.AddBehavior(ctx, b); err != nil {
		return err
	}
	s.cacheDrop(ctx, b.UserID)
	s.publish(ctx, EventUserUpdated, b.UserID)
	return nil
}

func (s *Service) ListDevices(ctx context.Context) ([]entity.Device, error) {
	return s.Repo.ListDevices(ctx)
}

func (s *Service) ListAppUsage(ctx context.Context) ([]entity.AppUsage, error) {
	return s.Repo.ListAppUsage(ctx)
}

func (s *Service) ListBehaviors(ctx context.Context) ([]entity.UserBehavior, error) {
	return s.Repo.ListBehaviors(ctx)
}

// IndexUser writes the flattened aggregate document to the search index.
// Called by the indexer worker, not the request path.
func (s *Service) IndexUser(ctx context.Context, u *entity.User) error {
	if s.ES == nil || s.ESUsersIndex == "" {
		return nil
	}
	models := make([]string, 0, len(u.Devices))
	systems := make([]string, 0, len(u.Devices))
	for _, d := range u.Devices {
		models = append(models, d.DeviceModel)
		systems = append(systems, d.OperatingSystem)
	}
	doc := map[string]any{
		"user_id":             u.UserID,
		"age":                 u.Age,
		"gender":              u.Gender,
		"device_models":       models,
		"operating_systems":   systems,
		"user_behavior_class": u.UserBehavior.UserBehaviorClass,
		"indexed_at":          time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, _ := json.Marshal(doc)
	req := esapi.IndexRequest{
		Index:      s.ESUsersIndex,
		DocumentID: strconv.Itoa(u.UserID),
		Body:       strings.NewReader(string(b)),
		Refresh:    "false",
	}
	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := req.Do(c, s.ES)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() && s.Logger != nil {
		s.Logger.WithField("status", res.Status()).WithField("user_id", u.UserID).Warn("es index response error")
	}
	return nil
}

// RemoveUserIndex drops a deleted user's search document.
func (s *Service) RemoveUserIndex(ctx context.Context, userID int) error {
	if s.ES == nil || s.ESUsersIndex == "" {
		return nil
	}
	req := esapi.DeleteRequest{Index: s.ESUsersIndex, DocumentID: strconv.Itoa(userID)}
	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := req.Do(c, s.ES)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	return nil
}

// SearchUsers runs a multi_match over the indexed aggregate documents.
func (s *Service) SearchUsers(ctx context.Context, q string, size int) ([]map[string]any, error) {
	if s.ES == nil || s.ESUsersIndex == "" {
		return []map[string]any{}, nil
	}
	if size <= 0 || size > 50 {
		size = 10
	}
	query := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"device_models^2", "operating_systems", "gender"},
			},
		},
		"size": size,
	}
	b, _ := json.Marshal(query)

	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := s.ES.Search(
		s.ES.Search.WithContext(c),
		s.ES.Search.WithIndex(s.ESUsersIndex),
		s.ES.Search.WithBody(strings.NewReader(string(b))),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string         `json:"_id"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}

// ExportUsers snapshots the full listing as a JSON object in the configured
// GCS bucket and returns the object URL.
func (s *Service) ExportUsers(ctx context.Context) (string, error) {
	if s.GCS == nil || s.GCSBucket == "" {
		return "", ErrExportNotConfigured
	}
	users, err := s.Repo.List(ctx)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(users)
	if err != nil {
		return "", err
	}
	object := fmt.Sprintf("exports/users-%s-%s.json",
		time.Now().UTC().Format("20060102T150405Z"), uuid.NewString())
	return helpers.UploadJSONToGCS(ctx, s.GCS, s.GCSBucket, object, payload)
}

// normalize keeps child lists non-nil so aggregates always marshal with
// empty arrays rather than null.
func normalize(u *entity.User) {
	if u.Devices == nil {
		u.Devices = []entity.Device{}
	}
	if u.AppUsage == nil {
		u.AppUsage = []entity.AppUsage{}
	}
}
