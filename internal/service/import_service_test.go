package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/supercurriculum-admin/internal/dto"
	"github.com/noah-isme/supercurriculum-admin/internal/models"
	"github.com/noah-isme/supercurriculum-admin/internal/querycache"
	appErrors "github.com/noah-isme/supercurriculum-admin/pkg/errors"
	"github.com/noah-isme/supercurriculum-admin/pkg/jobs"
)

type historyStub struct {
	mu       sync.Mutex
	recorded []*models.ImportReport
	author   string
}

func (h *historyStub) Record(ctx context.Context, report *models.ImportReport) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recorded = append(h.recorded, report)
	return nil
}

func (h *historyStub) List(ctx context.Context, createdBy string, limit int) ([]models.ImportReport, error) {
	h.author = createdBy
	return []models.ImportReport{{ID: "r1"}}, nil
}

type queueStub struct {
	jobs []jobs.Job
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func adminSession(id string) *models.Session {
	return &models.Session{ID: id, Token: "tok", User: models.UserProfile{ID: "u-" + id, Role: models.RoleAdmin}}
}

func TestImportServiceCSVRowFailureReport(t *testing.T) {
	api := newAPIStub()
	api.fileResult = &dto.BackendImportResult{Success: 9, Failed: 1, Errors: []string{"Row 7: year group 'Year 14' does not exist"}}
	cache := querycache.New(querycache.Options{})
	activities := querycache.ListKey(models.ResourceActivities, nil)
	cache.Set(activities, []models.Resource{})
	metrics := &metricsStub{}
	svc := NewImportService(api, cache, nil, WithImportMetrics(metrics))

	var csv strings.Builder
	csv.WriteString("title,subject,year_group\n")
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&csv, "Topic %d,Biology,Year 9\n", i)
	}
	report, err := svc.ImportFile(context.Background(), adminSession("s1"), "topics.csv", strings.NewReader(csv.String()))
	require.NoError(t, err)
	assert.Equal(t, 9, report.SuccessCount)
	assert.Equal(t, 1, report.FailureCount)
	assert.Equal(t, []string{"Row 7: year group 'Year 14' does not exist"}, report.Errors)

	e, _ := cache.Get(activities)
	assert.True(t, e.Stale)
	assert.Equal(t, 1, metrics.imports)
}

func TestImportServiceDocumentConfirmSubmitsStagedRecords(t *testing.T) {
	api := newAPIStub()
	api.parsed = &dto.ParsedDocument{Topics: []map[string]interface{}{
		{"title": "Genetics podcast"}, {"title": "Evolution essay"}, {"title": "Museum visit"},
	}}
	cache := querycache.New(querycache.Options{})
	activities := querycache.ListKey(models.ResourceActivities, nil)
	cache.Set(activities, []models.Resource{})
	svc := NewImportService(api, cache, nil)
	sess := adminSession("s1")

	staged, err := svc.ParseDocument(context.Background(), sess, dto.DocumentImportRequest{Text: "Reading list", YearGroupID: " y9 "})
	require.NoError(t, err)
	assert.True(t, staged.Staged)
	e, _ := cache.Get(activities)
	assert.False(t, e.Stale, "staging must not invalidate")

	report, err := svc.ConfirmStaged(context.Background(), sess)
	require.NoError(t, err)
	require.Len(t, api.submitted, 1)
	assert.Len(t, api.submitted[0], 3)
	assert.Equal(t, 3, report.SuccessCount)
	e, _ = cache.Get(activities)
	assert.True(t, e.Stale)
}

func TestImportServiceMalformedTextLeavesStateUntouched(t *testing.T) {
	api := newAPIStub()
	cache := querycache.New(querycache.Options{})
	activities := querycache.ListKey(models.ResourceActivities, nil)
	sess := adminSession("s1")
	svc := NewImportService(api, cache, nil)

	prior, err := svc.ImportText(context.Background(), sess, `{"topics":[{"title":"A"}]}`)
	require.NoError(t, err)
	cache.Set(activities, []models.Resource{})
	calls := api.totalCalls()

	_, err = svc.ImportText(context.Background(), sess, `{"topics":[{"title":"A"`)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrDecode)
	assert.Equal(t, calls, api.totalCalls())

	e, _ := cache.Get(activities)
	assert.False(t, e.Stale)
	state := svc.State(sess)
	assert.Equal(t, "idle", state.State)
	assert.Equal(t, prior, state.Report)
}

func TestImportServiceReconcilersArePerSession(t *testing.T) {
	svc := NewImportService(newAPIStub(), querycache.New(querycache.Options{}), nil)
	_, err := svc.ImportText(context.Background(), adminSession("a"), `[{"title":"A"}]`)
	require.NoError(t, err)

	other := svc.State(adminSession("b"))
	assert.Equal(t, "idle", other.State)
	assert.Nil(t, other.Report)

	svc.Forget("a")
	assert.Nil(t, svc.State(adminSession("a")).Report)
}

func TestImportServiceSweepDropsExpiredSessions(t *testing.T) {
	svc := NewImportService(newAPIStub(), querycache.New(querycache.Options{}), nil)
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	expiring := adminSession("a")
	expiring.ExpiresAt = now.Add(time.Minute)
	lasting := adminSession("b")
	lasting.ExpiresAt = now.Add(time.Hour)
	for _, sess := range []*models.Session{expiring, lasting} {
		_, err := svc.ImportText(context.Background(), sess, `[{"title":"A"}]`)
		require.NoError(t, err)
	}

	assert.Zero(t, svc.Sweep())
	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, svc.Sweep())

	assert.Nil(t, svc.State(expiring).Report)
	assert.NotNil(t, svc.State(lasting).Report)
}

func TestImportServiceCleanupRunsUntilCancelled(t *testing.T) {
	svc := NewImportService(newAPIStub(), querycache.New(querycache.Options{}), nil)
	sess := adminSession("a")
	sess.ExpiresAt = time.Now().Add(-time.Second)
	_, err := svc.ImportText(context.Background(), sess, `[{"title":"A"}]`)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.StartCleanup(ctx, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return len(svc.reconcilers) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestImportServiceQueuesHistory(t *testing.T) {
	history := &historyStub{}
	queue := &queueStub{}
	svc := NewImportService(newAPIStub(), querycache.New(querycache.Options{}), nil, WithImportHistory(history, queue))

	report, err := svc.ImportText(context.Background(), adminSession("s1"), `[{"title":"A"}]`)
	require.NoError(t, err)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, JobTypeImportHistory, queue.jobs[0].Type)

	handler := ImportHistoryHandler(history)
	require.NoError(t, handler(context.Background(), queue.jobs[0]))
	require.Len(t, history.recorded, 1)
	assert.Equal(t, report.ID, history.recorded[0].ID)

	assert.Error(t, handler(context.Background(), jobs.Job{Type: JobTypeImportHistory, Payload: "bad"}))
}

func TestImportServiceHistoryScopesNonSuperadmins(t *testing.T) {
	history := &historyStub{}
	svc := NewImportService(newAPIStub(), querycache.New(querycache.Options{}), nil, WithImportHistory(history, nil))

	_, err := svc.History(context.Background(), adminSession("s1"), 10)
	require.NoError(t, err)
	assert.Equal(t, "u-s1", history.author)

	super := adminSession("s2")
	super.User.Role = models.RoleSuperAdmin
	_, err = svc.History(context.Background(), super, 10)
	require.NoError(t, err)
	assert.Empty(t, history.author)

	disabled := NewImportService(newAPIStub(), querycache.New(querycache.Options{}), nil)
	_, err = disabled.History(context.Background(), super, 10)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestImportServiceExportReport(t *testing.T) {
	api := newAPIStub()
	api.recordsResult = func(records []map[string]interface{}) *dto.BackendImportResult {
		return &dto.BackendImportResult{Success: 1, Failed: 1, Errors: []string{"Row 2: missing title"}}
	}
	svc := NewImportService(api, querycache.New(querycache.Options{}), nil)
	sess := adminSession("s1")

	_, err := svc.ExportReport(sess, ReportFormatCSV)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.ImportText(context.Background(), sess, `[{"title":"A"},{}]`)
	require.NoError(t, err)

	csv, err := svc.ExportReport(sess, ReportFormatCSV)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(csv.Filename, ".csv"))
	assert.Contains(t, string(csv.Body), "1,failed,Row 2: missing title")

	pdf, err := svc.ExportReport(sess, ReportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", pdf.ContentType)
	assert.True(t, bytes.HasPrefix(pdf.Body, []byte("%PDF")))

	_, err = svc.ExportReport(sess, ReportFormat("xlsx"))
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestDescribeRecord(t *testing.T) {
	assert.Equal(t, "Genetics", describeRecord(map[string]interface{}{"title": "Genetics", "x": 1}))
	assert.Equal(t, `{"a":1,"b":"two"}`, describeRecord(map[string]interface{}{"b": "two", "a": 1}))
}
