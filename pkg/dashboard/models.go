package dashboard

import (
	"time"

	"github.com/google/uuid"
	"github.com/medtriage/platform/pkg/users"
)

type Overview struct {
	UserStats        UserStats        `json:"user_stats"`
	FileStats        FileStats        `json:"file_stats"`
	AnalysisStats    AnalysisStats    `json:"analysis_stats"`
	RecentActivities RecentActivities `json:"recent_activities"`
	SystemStats      SystemStats      `json:"system_stats"`
	GeneratedAt      time.Time        `json:"generated_at"`
}

type UserStats struct {
	Total    int64 `json:"total"`
	Patients int64 `json:"patients"`
	Doctors  int64 `json:"doctors"`
	Admins   int64 `json:"admins"`
	NewToday int64 `json:"new_today"`
}

type MimeCount struct {
	MimeType string `json:"mime_type"`
	Count    int64  `json:"count"`
}

type FileStats struct {
	Total       int64       `json:"total"`
	ByType      []MimeCount `json:"by_type"`
	TotalSizeMB float64     `json:"total_size_mb"`
}

type AnalysisStats struct {
	Total      int64 `json:"total"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Pending    int64 `json:"pending"`
	InProgress int64 `json:"in_progress"`
	Today      int64 `json:"today"`
}

type RecentFile struct {
	ID         uuid.UUID `json:"id"`
	Filename   string    `json:"filename"`
	UploadDate time.Time `json:"upload_date"`
}

type RecentAnalysis struct {
	ID           uuid.UUID  `json:"id"`
	Filename     string     `json:"filename"`
	ModelVersion string     `json:"model_version"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time"`
	Status       string     `json:"status"`
}

type RecentActivities struct {
	RecentFiles    []RecentFile     `json:"recent_files"`
	RecentAnalyses []RecentAnalysis `json:"recent_analyses"`
	RecentUsers    []users.User     `json:"recent_users"`
}

type SystemStats struct {
	PromptsCount   int64 `json:"prompts_count"`
	ActivePrompts  int64 `json:"active_prompts"`
	TodayAnalyses  int64 `json:"today_analyses"`
	DiseaseRecords int64 `json:"disease_records"`
}
