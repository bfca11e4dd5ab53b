package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/medtriage/platform/pkg/analysis"
	"github.com/medtriage/platform/pkg/common/database/dbtest"
	"github.com/medtriage/platform/pkg/diseases"
	"github.com/medtriage/platform/pkg/files"
	"github.com/medtriage/platform/pkg/gateway/auth"
	"github.com/medtriage/platform/pkg/prompts"
	"github.com/medtriage/platform/pkg/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type memCache struct {
	entries map[string][]byte
	getErr  error
	sets    int
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	data, ok := c.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return data, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.entries[key] = value
	c.sets++
	return nil
}

func seed(t *testing.T) *gorm.DB {
	t.Helper()
	db := dbtest.New(t, &files.MedicalFile{}, &analysis.Session{}, &analysis.Result{},
		&analysis.DetectedCondition{}, &diseases.Record{}, &prompts.Prompt{}, &prompts.Version{}, &users.User{})

	yesterday := now.Add(-24 * time.Hour)
	people := []users.User{
		{Email: "p1@example.com", Role: auth.RolePatient, CreatedAt: now.Add(-time.Hour)},
		{Email: "p2@example.com", Role: auth.RolePatient, CreatedAt: yesterday},
		{Email: "d1@example.com", Role: auth.RoleDoctor, CreatedAt: yesterday},
		{Email: "a1@example.com", Role: auth.RoleAdmin, CreatedAt: yesterday},
	}
	for i := range people {
		people[i].ID = uuid.New()
		people[i].PasswordHash = "x"
		people[i].IsActive = true
		require.NoError(t, db.Create(&people[i]).Error)
	}

	owner := people[0].ID
	stored := []files.MedicalFile{
		{Filename: "a.pdf", MimeType: "application/pdf", Filesize: 1 << 20, UploadDate: yesterday},
		{Filename: "b.pdf", MimeType: "application/pdf", Filesize: 512 << 10, UploadDate: now.Add(-2 * time.Hour)},
		{Filename: "c.png", MimeType: "image/png", Filesize: 256 << 10, UploadDate: now.Add(-time.Hour)},
	}
	for i := range stored {
		stored[i].ID = uuid.New()
		stored[i].UserID = owner
		require.NoError(t, db.Create(&stored[i]).Error)
	}

	sessions := []analysis.Session{
		{FileID: stored[0].ID, Status: analysis.StatusFailed, StartTime: yesterday},
		{FileID: stored[1].ID, Status: analysis.StatusCompleted, StartTime: now.Add(-2 * time.Hour)},
		{FileID: stored[2].ID, Status: analysis.StatusPending, StartTime: now.Add(-time.Hour)},
	}
	for i := range sessions {
		sessions[i].ID = uuid.New()
		sessions[i].ModelVersion = "GigaChat-v1.0"
		require.NoError(t, db.Create(&sessions[i]).Error)
	}

	for i, active := range []bool{true, false} {
		require.NoError(t, db.Create(&prompts.Prompt{
			ID:         uuid.New(),
			Name:       "prompt " + string(rune('a'+i)),
			PromptText: "{text_data} {file_type}",
			FileType:   prompts.FileTypeAll,
			IsActive:   active,
		}).Error)
	}

	require.NoError(t, db.Create(&diseases.Record{
		ID: uuid.New(), UserID: owner, DiseaseCode: "D64.9", DiseaseName: "Анемия",
		FirstDetected: now, LastDetected: now, IsActive: true,
	}).Error)
	return db
}

func newTestService(db *gorm.DB, cache Cache) *Service {
	s := NewService(db, cache, time.Minute)
	s.nowFunc = func() time.Time { return now }
	return s
}

func TestOverviewAggregates(t *testing.T) {
	s := newTestService(seed(t), nil)

	out, err := s.Overview(context.Background())
	require.NoError(t, err)

	assert.Equal(t, UserStats{Total: 4, Patients: 2, Doctors: 1, Admins: 1, NewToday: 1}, out.UserStats)

	assert.Equal(t, int64(3), out.FileStats.Total)
	assert.Equal(t, 1.75, out.FileStats.TotalSizeMB)
	require.Len(t, out.FileStats.ByType, 2)
	assert.Equal(t, MimeCount{MimeType: "application/pdf", Count: 2}, out.FileStats.ByType[0])

	assert.Equal(t, AnalysisStats{Total: 3, Completed: 1, Failed: 1, Pending: 1, Today: 2}, out.AnalysisStats)
	assert.Equal(t, SystemStats{PromptsCount: 2, ActivePrompts: 1, TodayAnalyses: 2, DiseaseRecords: 1}, out.SystemStats)

	require.Len(t, out.RecentActivities.RecentFiles, 3)
	assert.Equal(t, "c.png", out.RecentActivities.RecentFiles[0].Filename)
	require.Len(t, out.RecentActivities.RecentAnalyses, 3)
	assert.Equal(t, "c.png", out.RecentActivities.RecentAnalyses[0].Filename)
	assert.Equal(t, analysis.StatusPending, out.RecentActivities.RecentAnalyses[0].Status)
	require.Len(t, out.RecentActivities.RecentUsers, 4)
	assert.Equal(t, "p1@example.com", out.RecentActivities.RecentUsers[0].Email)
}

func TestOverviewEmptyDatabase(t *testing.T) {
	db := dbtest.New(t, &files.MedicalFile{}, &analysis.Session{}, &diseases.Record{}, &prompts.Prompt{}, &users.User{})
	out, err := newTestService(db, nil).Overview(context.Background())
	require.NoError(t, err)

	assert.Zero(t, out.FileStats.TotalSizeMB)
	assert.NotNil(t, out.FileStats.ByType)
	assert.Empty(t, out.RecentActivities.RecentFiles)
	assert.Empty(t, out.RecentActivities.RecentUsers)
}

func TestOverviewServedFromCache(t *testing.T) {
	db := seed(t)
	cache := &memCache{entries: map[string][]byte{}}
	s := newTestService(db, cache)

	first, err := s.Overview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	require.NoError(t, db.Create(&users.User{
		ID: uuid.New(), Email: "late@example.com", Role: auth.RolePatient, PasswordHash: "x", CreatedAt: now,
	}).Error)

	second, err := s.Overview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.UserStats, second.UserStats)
	assert.Equal(t, 1, cache.sets)

	cache.getErr = errors.New("connection refused")
	third, err := s.Overview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), third.UserStats.Total)
}

func TestHTTPHandler(t *testing.T) {
	router := mux.NewRouter()
	NewHTTPHandler(newTestService(seed(t), nil)).Register(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		UserStats struct {
			Total int64 `json:"total"`
		} `json:"user_stats"`
		SystemStats struct {
			ActivePrompts int64 `json:"active_prompts"`
		} `json:"system_stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(4), body.UserStats.Total)
	assert.Equal(t, int64(1), body.SystemStats.ActivePrompts)
}
