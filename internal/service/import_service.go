package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/supercurriculum-admin/internal/dto"
	"github.com/noah-isme/supercurriculum-admin/internal/importer"
	"github.com/noah-isme/supercurriculum-admin/internal/models"
	appErrors "github.com/noah-isme/supercurriculum-admin/pkg/errors"
	"github.com/noah-isme/supercurriculum-admin/pkg/export"
	"github.com/noah-isme/supercurriculum-admin/pkg/jobs"
)

// JobTypeImportHistory is the queue job type that persists a report summary.
const JobTypeImportHistory = "import_history.record"

// ReportFormat is an export format for the last import report.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

type importHistoryStore interface {
	Record(ctx context.Context, report *models.ImportReport) error
	List(ctx context.Context, createdBy string, limit int) ([]models.ImportReport, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type importRecorder interface {
	RecordImport(source string, success, failed int)
	RecordInvalidation(resourceType string)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
	ContentType() string
}

// RenderedReport is an exported report ready to stream.
type RenderedReport struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ImportService keeps one reconciler per session and applies the side effects
// of a produced report: cache invalidation, metrics and history.
type ImportService struct {
	backend importer.Backend
	cache   namespaceInvalidator
	history importHistoryStore
	queue   jobEnqueuer
	metrics importRecorder
	csv     csvRenderer
	pdf     pdfRenderer
	logger  *zap.Logger

	mu          sync.Mutex
	reconcilers map[string]*sessionImports
	now         func() time.Time
}

// sessionImports is a session's reconciler, kept until the session expires.
type sessionImports struct {
	rec       *importer.Reconciler
	expiresAt time.Time
}

// ImportServiceOption configures the service.
type ImportServiceOption func(*ImportService)

// WithImportHistory records reports through queue into history.
func WithImportHistory(history importHistoryStore, queue jobEnqueuer) ImportServiceOption {
	return func(s *ImportService) {
		s.history = history
		s.queue = queue
	}
}

// WithImportMetrics counts imported records.
func WithImportMetrics(metrics importRecorder) ImportServiceOption {
	return func(s *ImportService) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// NewImportService constructs the service.
func NewImportService(backend importer.Backend, cache namespaceInvalidator, logger *zap.Logger, opts ...ImportServiceOption) *ImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ImportService{
		backend:     backend,
		cache:       cache,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		logger:      logger,
		reconcilers: make(map[string]*sessionImports),
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// ImportFile forwards a CSV file to the backend.
func (s *ImportService) ImportFile(ctx context.Context, sess *models.Session, filename string, file io.Reader) (*models.ImportReport, error) {
	report, err := s.reconciler(sess).ImportFile(ctx, sess, filename, file)
	if err != nil {
		return nil, err
	}
	s.afterReport(sess, report)
	return report, nil
}

// ImportText decodes pasted structured text and submits it.
func (s *ImportService) ImportText(ctx context.Context, sess *models.Session, text string) (*models.ImportReport, error) {
	report, err := s.reconciler(sess).ImportText(ctx, sess, text)
	if err != nil {
		return nil, err
	}
	s.afterReport(sess, report)
	return report, nil
}

// ParseDocument stages records parsed from free text.
func (s *ImportService) ParseDocument(ctx context.Context, sess *models.Session, req dto.DocumentImportRequest) (*models.ImportReport, error) {
	filters := models.DocumentFilters{
		YearGroupID: strings.TrimSpace(req.YearGroupID),
		SubjectID:   strings.TrimSpace(req.SubjectID),
		Stage:       strings.TrimSpace(req.Stage),
	}
	report, err := s.reconciler(sess).ParseDocument(ctx, sess, req.Text, filters)
	if err != nil {
		return nil, err
	}
	s.afterReport(sess, report)
	return report, nil
}

// ConfirmStaged submits the staged records.
func (s *ImportService) ConfirmStaged(ctx context.Context, sess *models.Session) (*models.ImportReport, error) {
	report, err := s.reconciler(sess).ConfirmStaged(ctx, sess)
	if err != nil {
		return nil, err
	}
	s.afterReport(sess, report)
	return report, nil
}

// State reports the session's reconciler state and last report.
func (s *ImportService) State(sess *models.Session) dto.ImportStateResponse {
	rec := s.reconciler(sess)
	return dto.ImportStateResponse{State: string(rec.State()), Report: rec.Report()}
}

// History lists recent reports produced by the session's user.
func (s *ImportService) History(ctx context.Context, sess *models.Session, limit int) ([]models.ImportReport, error) {
	if s.history == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "import history is not enabled")
	}
	createdBy := ""
	if sess != nil && sess.User.Role != models.RoleSuperAdmin {
		createdBy = sess.User.ID
	}
	reports, err := s.history.List(ctx, createdBy, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list import history")
	}
	return reports, nil
}

// ExportReport renders the last report as CSV or PDF.
func (s *ImportService) ExportReport(sess *models.Session, format ReportFormat) (*RenderedReport, error) {
	report := s.reconciler(sess).Report()
	if report == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no import report to export")
	}
	data := reportDataset(report)
	base := "import-report-" + shortID(report.ID)

	switch format {
	case ReportFormatCSV, "":
		body, err := s.csv.Render(data)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &RenderedReport{Filename: base + ".csv", ContentType: s.csv.ContentType(), Body: body}, nil
	case ReportFormatPDF:
		body, err := s.pdf.Render(data, "Import report")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &RenderedReport{Filename: base + ".pdf", ContentType: s.pdf.ContentType(), Body: body}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

// Forget drops the reconciler of a closed session.
func (s *ImportService) Forget(sessionID string) {
	s.mu.Lock()
	delete(s.reconcilers, sessionID)
	s.mu.Unlock()
}

// StartCleanup boots a goroutine that drops the reconcilers of expired
// sessions every interval until ctx ends.
func (s *ImportService) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// Sweep drops the reconcilers of sessions past their expiry and returns how
// many were removed.
func (s *ImportService) Sweep() int {
	now := s.now()
	s.mu.Lock()
	removed := 0
	for id, entry := range s.reconcilers {
		if entry.expiresAt.IsZero() || !now.After(entry.expiresAt) {
			continue
		}
		delete(s.reconcilers, id)
		removed++
	}
	s.mu.Unlock()
	if removed > 0 {
		s.logger.Debug("expired import sessions dropped", zap.Int("sessions", removed))
	}
	return removed
}

func (s *ImportService) reconciler(sess *models.Session) *importer.Reconciler {
	id := ""
	var expiresAt time.Time
	if sess != nil {
		id = sess.ID
		expiresAt = sess.ExpiresAt
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.reconcilers[id]
	if !ok {
		entry = &sessionImports{rec: importer.NewReconciler(s.backend, importer.WithLogger(s.logger))}
		s.reconcilers[id] = entry
	}
	if expiresAt.After(entry.expiresAt) {
		entry.expiresAt = expiresAt
	}
	return entry.rec
}

func (s *ImportService) afterReport(sess *models.Session, report *models.ImportReport) {
	if !report.Staged {
		if s.metrics != nil {
			s.metrics.RecordImport(string(report.Source), report.SuccessCount, report.FailureCount)
		}
		// imported topics become activities
		if report.SuccessCount > 0 {
			touched := s.cache.InvalidateType(models.ResourceActivities)
			if s.metrics != nil {
				s.metrics.RecordInvalidation(string(models.ResourceActivities))
			}
			s.logger.Debug("import invalidated activities", zap.String("report_id", report.ID), zap.Int("entries", touched))
		}
	}
	s.logger.Info("import report produced",
		zap.String("report_id", report.ID),
		zap.String("source", string(report.Source)),
		zap.Int("success", report.SuccessCount),
		zap.Int("failed", report.FailureCount),
		zap.Bool("staged", report.Staged),
	)

	if s.queue == nil {
		return
	}
	job := jobs.Job{ID: report.ID, Type: JobTypeImportHistory, Payload: report.Clone()}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue import history", zap.String("report_id", report.ID), zap.Error(err))
	}
}

// ImportHistoryHandler persists queued reports.
func ImportHistoryHandler(store importHistoryStore) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		report, ok := job.Payload.(*models.ImportReport)
		if !ok {
			return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.Type)
		}
		return store.Record(ctx, report)
	}
}

func reportDataset(report *models.ImportReport) export.Dataset {
	data := export.Dataset{
		Summary: []export.SummaryItem{
			{Label: "Report", Value: report.ID},
			{Label: "Source", Value: string(report.Source)},
			{Label: "Created", Value: report.CreatedAt.Format("2006-01-02 15:04 MST")},
			{Label: "Succeeded", Value: strconv.Itoa(report.SuccessCount)},
			{Label: "Failed", Value: strconv.Itoa(report.FailureCount)},
		},
		Headers: []string{"#", "Outcome", "Detail"},
	}
	if report.Staged {
		data.Summary = append(data.Summary, export.SummaryItem{Label: "Status", Value: "awaiting confirmation"})
	}

	n := 0
	for _, reason := range report.Errors {
		n++
		data.Rows = append(data.Rows, map[string]string{"#": strconv.Itoa(n), "Outcome": "failed", "Detail": reason})
	}
	for _, rec := range report.Accepted {
		n++
		data.Rows = append(data.Rows, map[string]string{"#": strconv.Itoa(n), "Outcome": string(rec.Status), "Detail": describeRecord(rec.Data)})
	}
	for _, warning := range report.Warnings {
		n++
		data.Rows = append(data.Rows, map[string]string{"#": strconv.Itoa(n), "Outcome": "warning", "Detail": warning})
	}
	return data
}

// describeRecord prefers a title-like field and falls back to compact JSON.
func describeRecord(data map[string]interface{}) string {
	for _, key := range []string{"title", "name", "topic"} {
		if v, ok := data[key]; ok {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				return s
			}
		}
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([]string, 0, len(keys))
	for _, k := range keys {
		raw, _ := json.Marshal(data[k])
		ordered = append(ordered, fmt.Sprintf("%q:%s", k, raw))
	}
	return "{" + strings.Join(ordered, ",") + "}"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
