package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/medtriage/platform/pkg/analysis"
	"github.com/medtriage/platform/pkg/common/logger"
	"github.com/medtriage/platform/pkg/diseases"
	"github.com/medtriage/platform/pkg/files"
	"github.com/medtriage/platform/pkg/gateway/auth"
	"github.com/medtriage/platform/pkg/prompts"
	"github.com/medtriage/platform/pkg/users"
	"gorm.io/gorm"
)

const (
	cacheKey    = "overview"
	recentLimit = 5
	topMimes    = 5
)

type Service struct {
	db       *gorm.DB
	cache    Cache
	cacheTTL time.Duration
	nowFunc  func() time.Time
}

// NewService builds the admin overview. cache may be nil, in which case every
// call hits the database.
func NewService(db *gorm.DB, cache Cache, cacheTTL time.Duration) *Service {
	return &Service{db: db, cache: cache, cacheTTL: cacheTTL, nowFunc: time.Now}
}

func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	if cached, ok := s.cached(ctx); ok {
		return cached, nil
	}

	out, err := s.collect(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && s.cacheTTL > 0 {
		data, err := json.Marshal(out)
		if err == nil {
			err = s.cache.Set(ctx, cacheKey, data, s.cacheTTL)
		}
		if err != nil {
			logger.Log.WithError(err).Warn("dashboard overview not cached")
		}
	}
	return out, nil
}

func (s *Service) cached(ctx context.Context) (*Overview, bool) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return nil, false
	}
	data, err := s.cache.Get(ctx, cacheKey)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			logger.Log.WithError(err).Warn("dashboard cache unavailable")
		}
		return nil, false
	}
	var out Overview
	if err := json.Unmarshal(data, &out); err != nil {
		logger.Log.WithError(err).Warn("dashboard cache entry unreadable")
		return nil, false
	}
	return &out, true
}

func (s *Service) collect(ctx context.Context) (*Overview, error) {
	now := s.nowFunc().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	db := s.db.WithContext(ctx)
	out := &Overview{GeneratedAt: now}

	counts := []struct {
		dst   *int64
		model interface{}
		where string
		args  []interface{}
	}{
		{&out.UserStats.Total, &users.User{}, "", nil},
		{&out.UserStats.Patients, &users.User{}, "role = ?", []interface{}{auth.RolePatient}},
		{&out.UserStats.Doctors, &users.User{}, "role = ?", []interface{}{auth.RoleDoctor}},
		{&out.UserStats.Admins, &users.User{}, "role = ?", []interface{}{auth.RoleAdmin}},
		{&out.UserStats.NewToday, &users.User{}, "created_at >= ?", []interface{}{today}},
		{&out.FileStats.Total, &files.MedicalFile{}, "", nil},
		{&out.AnalysisStats.Total, &analysis.Session{}, "", nil},
		{&out.AnalysisStats.Completed, &analysis.Session{}, "status = ?", []interface{}{analysis.StatusCompleted}},
		{&out.AnalysisStats.Failed, &analysis.Session{}, "status = ?", []interface{}{analysis.StatusFailed}},
		{&out.AnalysisStats.Pending, &analysis.Session{}, "status = ?", []interface{}{analysis.StatusPending}},
		{&out.AnalysisStats.InProgress, &analysis.Session{}, "status = ?", []interface{}{analysis.StatusInProgress}},
		{&out.AnalysisStats.Today, &analysis.Session{}, "start_time >= ?", []interface{}{today}},
		{&out.SystemStats.PromptsCount, &prompts.Prompt{}, "", nil},
		{&out.SystemStats.ActivePrompts, &prompts.Prompt{}, "is_active = ?", []interface{}{true}},
		{&out.SystemStats.DiseaseRecords, &diseases.Record{}, "", nil},
	}
	for _, c := range counts {
		q := db.Model(c.model)
		if c.where != "" {
			q = q.Where(c.where, c.args...)
		}
		if err := q.Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("count %T: %w", c.model, err)
		}
	}
	out.SystemStats.TodayAnalyses = out.AnalysisStats.Today

	if err := db.Model(&files.MedicalFile{}).
		Select("mime_type, COUNT(*) AS count").
		Group("mime_type").
		Order("count DESC").
		Limit(topMimes).
		Scan(&out.FileStats.ByType).Error; err != nil {
		return nil, fmt.Errorf("file types: %w", err)
	}
	var totalBytes int64
	if err := db.Model(&files.MedicalFile{}).
		Select("COALESCE(SUM(filesize), 0)").
		Scan(&totalBytes).Error; err != nil {
		return nil, fmt.Errorf("file sizes: %w", err)
	}
	out.FileStats.TotalSizeMB = math.Round(float64(totalBytes)/(1024*1024)*100) / 100

	if err := s.recent(ctx, &out.RecentActivities); err != nil {
		return nil, err
	}

	if out.FileStats.ByType == nil {
		out.FileStats.ByType = []MimeCount{}
	}
	return out, nil
}

func (s *Service) recent(ctx context.Context, dst *RecentActivities) error {
	db := s.db.WithContext(ctx)

	var recentFiles []files.MedicalFile
	if err := db.Order("upload_date DESC").Limit(recentLimit).Find(&recentFiles).Error; err != nil {
		return fmt.Errorf("recent files: %w", err)
	}
	dst.RecentFiles = make([]RecentFile, 0, len(recentFiles))
	for _, f := range recentFiles {
		dst.RecentFiles = append(dst.RecentFiles, RecentFile{ID: f.ID, Filename: f.Filename, UploadDate: f.UploadDate})
	}

	var sessions []analysis.Session
	if err := db.Preload("File").Order("start_time DESC").Limit(recentLimit).Find(&sessions).Error; err != nil {
		return fmt.Errorf("recent analyses: %w", err)
	}
	dst.RecentAnalyses = make([]RecentAnalysis, 0, len(sessions))
	for _, session := range sessions {
		item := RecentAnalysis{
			ID:           session.ID,
			ModelVersion: session.ModelVersion,
			StartTime:    session.StartTime,
			EndTime:      session.EndTime,
			Status:       session.Status,
		}
		if session.File != nil {
			item.Filename = session.File.Filename
		}
		dst.RecentAnalyses = append(dst.RecentAnalyses, item)
	}

	dst.RecentUsers = []users.User{}
	if err := db.Order("created_at DESC").Limit(recentLimit).Find(&dst.RecentUsers).Error; err != nil {
		return fmt.Errorf("recent users: %w", err)
	}
	return nil
}
