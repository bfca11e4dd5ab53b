package diseases

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/medtriage/platform/pkg/common/logger"
	"github.com/medtriage/platform/pkg/observability/metrics"
	"gorm.io/gorm"
)

// PromotionThreshold is the confidence from which a finding becomes part of
// the standing disease history.
const PromotionThreshold = 0.3

const (
	maxCodeLength = 50
	maxNameLength = 255
	unknownCode   = "UNKNOWN"
)

// CodeResolver maps a condition name to a catalog code.
type CodeResolver interface {
	CodeFor(name string) (string, bool)
}

type Reconciler struct {
	repo    *Repository
	codes   CodeResolver
	nowFunc func() time.Time
}

func NewReconciler(repo *Repository, codes CodeResolver) *Reconciler {
	return &Reconciler{repo: repo, codes: codes, nowFunc: time.Now}
}

// WithTx returns a reconciler whose upserts join tx.
func (r *Reconciler) WithTx(tx *gorm.DB) *Reconciler {
	return &Reconciler{repo: r.repo.WithTx(tx), codes: r.codes, nowFunc: r.nowFunc}
}

// Reconcile folds findings into the user's history and returns how many
// records were created or refreshed. Calling it again with the same findings
// only moves last_detected forward.
func (r *Reconciler) Reconcile(ctx context.Context, userID, sessionID uuid.UUID, findings []Finding) (int, error) {
	now := r.nowFunc().UTC()
	var analysisID *uuid.UUID
	if sessionID != uuid.Nil {
		analysisID = &sessionID
	}

	seen := make(map[string]int, len(findings))
	records := make([]Record, 0, len(findings))
	for _, f := range findings {
		if f.Confidence < PromotionThreshold {
			continue
		}
		name := strings.TrimSpace(f.Name)
		if name == "" {
			name = "Неизвестное состояние"
		}
		code := r.resolveCode(name, f.Code)

		rec := Record{
			UserID:         userID,
			DiseaseCode:    code,
			DiseaseName:    truncate(name, maxNameLength),
			FirstDetected:  now,
			LastDetected:   now,
			IsActive:       true,
			LastAnalysisID: analysisID,
		}
		if i, dup := seen[code]; dup {
			records[i] = rec
			continue
		}
		seen[code] = len(records)
		records = append(records, rec)
	}

	if len(records) == 0 {
		return 0, nil
	}
	if err := r.repo.UpsertBatch(ctx, records); err != nil {
		return 0, fmt.Errorf("upsert disease history: %w", err)
	}

	metrics.DiseaseUpserts.Add(float64(len(records)))
	logger.Log.WithFields(map[string]interface{}{
		"user_id":    userID,
		"session_id": sessionID,
		"records":    len(records),
	}).Info("disease history reconciled")
	return len(records), nil
}

func (r *Reconciler) resolveCode(name, code string) string {
	code = strings.TrimSpace(code)
	if code == "" || strings.EqualFold(code, unknownCode) {
		if r.codes != nil {
			if catalogCode, ok := r.codes.CodeFor(name); ok {
				return truncate(catalogCode, maxCodeLength)
			}
		}
		code = "NAME_" + strings.ReplaceAll(name, " ", "_")
	}
	return truncate(code, maxCodeLength)
}

func (r *Reconciler) List(ctx context.Context, userID uuid.UUID) ([]Record, error) {
	return r.repo.List(ctx, userID)
}

func (r *Reconciler) Deactivate(ctx context.Context, userID, id uuid.UUID) error {
	return r.repo.Deactivate(ctx, userID, id)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
