package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/medtriage/platform/pkg/diseases"
	"github.com/medtriage/platform/pkg/dlp"
	"github.com/medtriage/platform/pkg/extraction"
	"github.com/medtriage/platform/pkg/files"
	"github.com/medtriage/platform/pkg/gigachat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu           sync.Mutex
	inProgress   []uuid.UUID
	failed       map[uuid.UUID]string
	fileErrors   map[uuid.UUID]string
	results      []*Result
	conditions   []DetectedCondition
	completed    []uuid.UUID
	processed    []uuid.UUID
	findings     []diseases.Finding
	reconcileErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{failed: map[uuid.UUID]string{}, fileErrors: map[uuid.UUID]string{}}
}

func (s *fakeStore) MarkInProgress(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inProgress = append(s.inProgress, id)
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id uuid.UUID, msg string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[id] = msg
	return nil
}

func (s *fakeStore) SetFileError(_ context.Context, id uuid.UUID, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fileErrors[id] = msg
	return nil
}

// InTx stages writes and applies them only when fn succeeds.
func (s *fakeStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	staged := &fakeTx{reconcileErr: s.reconcileErr}
	if err := fn(staged); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, staged.results...)
	s.conditions = append(s.conditions, staged.conditions...)
	s.completed = append(s.completed, staged.completed...)
	s.processed = append(s.processed, staged.processed...)
	s.findings = append(s.findings, staged.findings...)
	return nil
}

type fakeTx struct {
	results      []*Result
	conditions   []DetectedCondition
	completed    []uuid.UUID
	processed    []uuid.UUID
	findings     []diseases.Finding
	reconcileErr error
}

func (t *fakeTx) CreateResult(_ context.Context, res *Result) error {
	t.results = append(t.results, res)
	return nil
}

func (t *fakeTx) CreateConditions(_ context.Context, conds []DetectedCondition) error {
	t.conditions = append(t.conditions, conds...)
	return nil
}

func (t *fakeTx) CompleteSession(_ context.Context, id uuid.UUID, _ time.Time) error {
	t.completed = append(t.completed, id)
	return nil
}

func (t *fakeTx) MarkFileProcessed(_ context.Context, id uuid.UUID) error {
	t.processed = append(t.processed, id)
	return nil
}

func (t *fakeTx) Reconcile(_ context.Context, _, _ uuid.UUID, findings []diseases.Finding) (int, error) {
	if t.reconcileErr != nil {
		return 0, t.reconcileErr
	}
	t.findings = append(t.findings, findings...)
	n := 0
	for _, f := range findings {
		if f.Confidence >= diseases.PromotionThreshold {
			n++
		}
	}
	return n, nil
}

type fakeExtractor struct {
	text string
	err  error
}

func (e fakeExtractor) Extract(context.Context, string, string) (string, error) {
	return e.text, e.err
}

type fakeAnalyzer struct {
	outcome  gigachat.Outcome
	requests []gigachat.Request
}

func (a *fakeAnalyzer) Analyze(_ context.Context, req gigachat.Request) gigachat.Outcome {
	a.requests = append(a.requests, req)
	return a.outcome
}

type fakePrompts struct {
	template  string
	fileTypes []string
}

func (p *fakePrompts) ActiveTemplate(_ context.Context, fileType string) (string, error) {
	p.fileTypes = append(p.fileTypes, fileType)
	return p.template, nil
}

type publishedEvent struct {
	eventType string
	key       string
	data      map[string]interface{}
}

type fakePublisher struct {
	events []publishedEvent
	err    error
}

func (p *fakePublisher) PublishEvent(_ context.Context, eventType, _, key string, data map[string]interface{}) error {
	p.events = append(p.events, publishedEvent{eventType: eventType, key: key, data: data})
	return p.err
}

const longText = "Общий анализ крови: гемоглобин 120 г/л, эритроциты 3.9, ферритин снижен, СОЭ в норме."

func testFile() *files.MedicalFile {
	return &files.MedicalFile{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		Filename:    "blood.pdf",
		MimeType:    "application/pdf",
		StoragePath: "/tmp/blood.pdf",
	}
}

func testSession(f *files.MedicalFile) *Session {
	return &Session{ID: uuid.New(), FileID: f.ID, ModelVersion: DefaultModelVersion, Status: StatusPending}
}

func parsedOutcome(conds ...gigachat.Condition) gigachat.Outcome {
	return gigachat.Outcome{
		Kind:            gigachat.KindParsed,
		Summary:         "Признаки анемии",
		Conditions:      conds,
		Recommendations: "Консультация гематолога",
		Confidence:      0.8,
	}
}

func TestRunThinTextUsesPlaceholder(t *testing.T) {
	store := newFakeStore()
	analyzer := &fakeAnalyzer{outcome: parsedOutcome()}
	o := NewOrchestrator(store, fakeExtractor{text: "  мало   текста \n"}, analyzer)
	f := testFile()
	s := testSession(f)

	res, err := o.Run(context.Background(), f, s)
	require.NoError(t, err)
	require.Len(t, analyzer.requests, 1)
	assert.Equal(t, "Файл: blood.pdf\nТип: application/pdf\nТекст не извлечён", analyzer.requests[0].Text)
	assert.Equal(t, gigachat.DefaultTimeout, analyzer.requests[0].Timeout)
	assert.Equal(t, StatusCompleted, s.Status)
	assert.Equal(t, []uuid.UUID{s.ID}, store.inProgress)
	assert.Equal(t, []uuid.UUID{s.ID}, store.completed)
	assert.Equal(t, []uuid.UUID{f.ID}, store.processed)
	assert.InDelta(t, 0.8, res.Confidence, 1e-9)
}

func TestRunExtractionErrorUsesPlaceholder(t *testing.T) {
	store := newFakeStore()
	analyzer := &fakeAnalyzer{outcome: parsedOutcome()}
	o := NewOrchestrator(store, fakeExtractor{err: extraction.ErrFileNotFound}, analyzer)
	f := testFile()

	_, err := o.Run(context.Background(), f, testSession(f))
	require.NoError(t, err)
	assert.Contains(t, analyzer.requests[0].Text, "Текст не извлечён")
}

func TestRunConfidenceTiers(t *testing.T) {
	store := newFakeStore()
	out := parsedOutcome(
		gigachat.Condition{Name: "шум", Code: "R00", Confidence: 0.05, Severity: "low"},
		gigachat.Condition{Name: "дефицит железа", Code: "E61.1", Confidence: 0.25, Severity: "bogus"},
		gigachat.Condition{Name: "анемия", Code: "D64.9", Confidence: 0.35, Severity: "high"},
	)
	out.Confidence = 0
	analyzer := &fakeAnalyzer{outcome: out}
	o := NewOrchestrator(store, fakeExtractor{text: longText}, analyzer)
	f := testFile()
	s := testSession(f)

	res, err := o.Run(context.Background(), f, s)
	require.NoError(t, err)

	assert.InDelta(t, 0.35, res.Confidence, 1e-9)
	assert.Equal(t, 2, res.ConditionsStored)
	assert.Equal(t, 1, res.DiseasesUpserted)

	require.Len(t, store.conditions, 2)
	assert.Equal(t, "E61.1", store.conditions[0].ConditionCode)
	assert.Equal(t, "medium", store.conditions[0].Severity)
	assert.Equal(t, "D64.9", store.conditions[1].ConditionCode)
	assert.Equal(t, store.results[0].ID, store.conditions[1].ResultID)

	// the reconciler sees every finding and applies its own threshold
	assert.Len(t, store.findings, 3)

	require.Len(t, store.results, 1)
	assert.InDelta(t, 0.35, store.results[0].Confidence, 1e-9)
	assert.Contains(t, string(store.results[0].ResultJSON), `"detected_conditions"`)
	require.NotNil(t, s.Result)
	assert.Len(t, s.Result.Conditions, 2)
}

func TestRunFailedOutcomeFailsSession(t *testing.T) {
	store := newFakeStore()
	analyzer := &fakeAnalyzer{outcome: gigachat.FailedOutcome("Ошибка API: 500")}
	pub := &fakePublisher{}
	o := NewOrchestrator(store, fakeExtractor{text: longText}, analyzer, WithPublisher(pub))
	f := testFile()
	s := testSession(f)

	_, err := o.Run(context.Background(), f, s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Ошибка API: 500")

	assert.Equal(t, StatusFailed, s.Status)
	assert.NotNil(t, s.EndTime)
	assert.Contains(t, store.failed[s.ID], "Ошибка API: 500")
	assert.Equal(t, store.failed[s.ID], store.fileErrors[f.ID])
	assert.Empty(t, store.results)
	assert.Empty(t, store.completed)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "analysis.failed", pub.events[0].eventType)
	assert.Equal(t, s.ID.String(), pub.events[0].key)
}

func TestRunDegradedOutcomesComplete(t *testing.T) {
	for name, out := range map[string]gigachat.Outcome{
		"timeout":   gigachat.TimeoutOutcome(),
		"malformed": {Kind: gigachat.KindMalformed, Summary: "не JSON", Recommendations: gigachat.DefaultRecommendations, Confidence: 0.3},
	} {
		t.Run(name, func(t *testing.T) {
			store := newFakeStore()
			o := NewOrchestrator(store, fakeExtractor{text: longText}, &fakeAnalyzer{outcome: out})
			f := testFile()
			s := testSession(f)

			res, err := o.Run(context.Background(), f, s)
			require.NoError(t, err)
			assert.Equal(t, StatusCompleted, s.Status)
			assert.InDelta(t, out.Confidence, res.Confidence, 1e-9)
			assert.Len(t, store.results, 1)
			assert.Empty(t, store.conditions)
		})
	}
}

func TestRunTransactionFailureRollsBack(t *testing.T) {
	store := newFakeStore()
	store.reconcileErr = errors.New(strings.Repeat("ж", 700))
	o := NewOrchestrator(store, fakeExtractor{text: longText}, &fakeAnalyzer{outcome: parsedOutcome(
		gigachat.Condition{Name: "анемия", Code: "D64.9", Confidence: 0.9, Severity: "high"},
	)})
	f := testFile()
	s := testSession(f)

	_, err := o.Run(context.Background(), f, s)
	require.Error(t, err)

	assert.Empty(t, store.results)
	assert.Empty(t, store.conditions)
	assert.Empty(t, store.completed)
	assert.Empty(t, store.processed)
	assert.Equal(t, StatusFailed, s.Status)
	assert.Nil(t, s.Result)
	assert.Equal(t, maxErrorMessage, utf8.RuneCountInString(store.failed[s.ID]))
}

func TestRunUsesActivePromptAndPublishes(t *testing.T) {
	store := newFakeStore()
	prompts := &fakePrompts{template: "Проверь {file_type}: {text_data}"}
	pub := &fakePublisher{err: errors.New("broker down")}
	analyzer := &fakeAnalyzer{outcome: parsedOutcome()}
	o := NewOrchestrator(store, fakeExtractor{text: longText}, analyzer, WithPrompts(prompts), WithPublisher(pub), WithTimeout(3*time.Second))
	f := testFile()
	s := testSession(f)

	_, err := o.Run(context.Background(), f, s)
	require.NoError(t, err)

	assert.Equal(t, []string{"pdf"}, prompts.fileTypes)
	assert.Equal(t, prompts.template, analyzer.requests[0].Template)
	assert.Equal(t, 3*time.Second, analyzer.requests[0].Timeout)
	require.Len(t, pub.events, 1)
	assert.Equal(t, "analysis.completed", pub.events[0].eventType)
	assert.Equal(t, StatusCompleted, pub.events[0].data["status"])
}

func TestRunMasksIdentifiersBeforeAnalysis(t *testing.T) {
	redactor, err := dlp.NewRedactor(dlp.DefaultRules())
	require.NoError(t, err)
	store := newFakeStore()
	analyzer := &fakeAnalyzer{outcome: parsedOutcome()}
	text := longText + " Пациент: тел. +7 (912) 345-67-89, СНИЛС 123-456-789 01."
	o := NewOrchestrator(store, fakeExtractor{text: text}, analyzer, WithRedactor(redactor))
	f := testFile()

	_, err = o.Run(context.Background(), f, testSession(f))
	require.NoError(t, err)

	sent := analyzer.requests[0].Text
	assert.Contains(t, sent, "гемоглобин 120 г/л")
	assert.Contains(t, sent, "[телефон]")
	assert.Contains(t, sent, "[СНИЛС]")
	assert.NotContains(t, sent, "345-67-89")
}

type blockingPublisher struct {
	err error
}

func (p *blockingPublisher) PublishEvent(ctx context.Context, _, _, _ string, _ map[string]interface{}) error {
	<-ctx.Done()
	p.err = ctx.Err()
	return p.err
}

func TestRunBoundsEventPublish(t *testing.T) {
	store := newFakeStore()
	pub := &blockingPublisher{}
	o := NewOrchestrator(store, fakeExtractor{text: longText}, &fakeAnalyzer{outcome: parsedOutcome()},
		WithPublisher(pub), WithPublishTimeout(50*time.Millisecond))
	f := testFile()
	s := testSession(f)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(ctx, f, s)
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run blocked on an unreachable event broker")
	}
	assert.ErrorIs(t, pub.err, context.DeadlineExceeded)
	assert.Equal(t, StatusCompleted, s.Status)
}
