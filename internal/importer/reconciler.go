package importer

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/supercurriculum-admin/internal/dto"
	"github.com/noah-isme/supercurriculum-admin/internal/models"
	appErrors "github.com/noah-isme/supercurriculum-admin/pkg/errors"
)

// State is a reconciler lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateParsing    State = "parsing"
	StateSubmitting State = "submitting"
	StateReported   State = "reported"
)

// Backend is the part of the API client the reconciler submits through.
type Backend interface {
	ImportByFile(ctx context.Context, sess *models.Session, filename string, file io.Reader) (*dto.BackendImportResult, error)
	ImportByRecords(ctx context.Context, sess *models.Session, records []map[string]interface{}) (*dto.BackendImportResult, error)
	ParseFreeText(ctx context.Context, sess *models.Session, text string, filters models.DocumentFilters) (*dto.ParsedDocument, error)
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the report timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the reconciler logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Reconciler runs one import attempt at a time and keeps the last report.
// Reports are advisory: records the backend created are never rolled back.
type Reconciler struct {
	backend Backend
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.Mutex
	state  State
	report *models.ImportReport
	// candidates from the last document parse awaiting confirmation
	staged []map[string]interface{}
}

// NewReconciler constructs an idle reconciler.
func NewReconciler(backend Backend, opts ...Option) *Reconciler {
	r := &Reconciler{
		backend: backend,
		logger:  zap.NewNop(),
		now:     time.Now,
		state:   StateIdle,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// State returns the current lifecycle state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Report returns a copy of the last produced report, or nil.
func (r *Reconciler) Report() *models.ImportReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.report.Clone()
}

// HasStaged reports whether parsed candidates await confirmation.
func (r *Reconciler) HasStaged() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.staged) > 0
}

// ImportFile forwards a CSV upload unchanged; the backend parses it.
func (r *Reconciler) ImportFile(ctx context.Context, sess *models.Session, filename string, file io.Reader) (*models.ImportReport, error) {
	if err := r.begin(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(filename) == "" {
		filename = "import.csv"
	}
	r.transition(StateSubmitting)
	result, err := r.backend.ImportByFile(ctx, sess, filename, file)
	if err != nil {
		r.fail(models.ImportSourceCSV, err)
		return nil, err
	}
	report := r.newReport(models.ImportSourceCSV, sess)
	reconcile(report, nil, result)
	return r.finish(report, nil), nil
}

// ImportText decodes pasted structured text and submits the records.
// Malformed text fails back to idle without contacting the backend.
func (r *Reconciler) ImportText(ctx context.Context, sess *models.Session, text string) (*models.ImportReport, error) {
	if err := r.begin(); err != nil {
		return nil, err
	}
	records, err := DecodeStructured(text)
	if err != nil {
		r.fail(models.ImportSourceJSON, err)
		return nil, err
	}
	return r.submit(ctx, sess, models.ImportSourceJSON, records)
}

// ParseDocument sends free text to the backend parser and stages the returned
// candidates. Nothing is persisted until ConfirmStaged.
func (r *Reconciler) ParseDocument(ctx context.Context, sess *models.Session, text string, filters models.DocumentFilters) (*models.ImportReport, error) {
	if strings.TrimSpace(text) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "document text is required")
	}
	if err := r.begin(); err != nil {
		return nil, err
	}
	doc, err := r.backend.ParseFreeText(ctx, sess, text, filters)
	if err != nil {
		r.fail(models.ImportSourceDocument, err)
		return nil, err
	}

	report := r.newReport(models.ImportSourceDocument, sess)
	report.Staged = true
	report.Warnings = append([]string{}, doc.Warnings...)
	candidates := make([]map[string]interface{}, 0, len(doc.Topics))
	for i, topic := range doc.Topics {
		if topic == nil {
			continue
		}
		candidates = append(candidates, topic)
		report.Accepted = append(report.Accepted, models.ImportRecord{Index: i, Data: topic, Status: models.ImportAccepted})
	}
	return r.finish(report, candidates), nil
}

// ConfirmStaged submits exactly the staged candidates through the
// structured-text path.
func (r *Reconciler) ConfirmStaged(ctx context.Context, sess *models.Session) (*models.ImportReport, error) {
	r.mu.Lock()
	if r.state == StateParsing || r.state == StateSubmitting {
		r.mu.Unlock()
		return nil, appErrors.ErrImportInProgress
	}
	if len(r.staged) == 0 {
		r.mu.Unlock()
		return nil, appErrors.ErrNothingStaged
	}
	records := make([]map[string]interface{}, len(r.staged))
	copy(records, r.staged)
	r.state = StateParsing
	r.mu.Unlock()

	return r.submit(ctx, sess, models.ImportSourceDocument, records)
}

func (r *Reconciler) submit(ctx context.Context, sess *models.Session, source models.ImportSource, records []map[string]interface{}) (*models.ImportReport, error) {
	r.transition(StateSubmitting)
	result, err := r.backend.ImportByRecords(ctx, sess, records)
	if err != nil {
		r.fail(source, err)
		return nil, err
	}
	report := r.newReport(source, sess)
	reconcile(report, records, result)
	return r.finish(report, nil), nil
}

func (r *Reconciler) begin() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateParsing || r.state == StateSubmitting {
		return appErrors.ErrImportInProgress
	}
	r.state = StateParsing
	return nil
}

func (r *Reconciler) transition(state State) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
}

// fail returns to idle keeping the previous report and staged candidates.
func (r *Reconciler) fail(source models.ImportSource, err error) {
	r.mu.Lock()
	r.state = StateIdle
	r.mu.Unlock()
	r.logger.Warn("import attempt failed", zap.String("source", string(source)), zap.Error(err))
}

func (r *Reconciler) finish(report *models.ImportReport, staged []map[string]interface{}) *models.ImportReport {
	r.mu.Lock()
	r.report = report
	r.staged = staged
	r.state = StateReported
	r.mu.Unlock()
	return report.Clone()
}

func (r *Reconciler) newReport(source models.ImportSource, sess *models.Session) *models.ImportReport {
	report := &models.ImportReport{
		ID:        uuid.NewString(),
		Source:    source,
		Errors:    []string{},
		Accepted:  []models.ImportRecord{},
		CreatedAt: r.now().UTC(),
	}
	if sess != nil {
		report.CreatedBy = sess.User.ID
	}
	return report
}
