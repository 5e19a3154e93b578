package service

import (
	"context"
	"io"
	"sync"

	"github.com/noah-isme/supercurriculum-admin/internal/dto"
	"github.com/noah-isme/supercurriculum-admin/internal/models"
	appErrors "github.com/noah-isme/supercurriculum-admin/pkg/errors"
)

// apiStub stands in for the backend client across service tests.
type apiStub struct {
	mu sync.Mutex

	lists     map[models.ResourceType][]models.Resource
	byToken   map[string][]models.Resource
	listErr   error
	listCalls int
	filters   []models.Filter

	mutateErr error
	created   []interface{}
	deleted   []string

	fileResult    *dto.BackendImportResult
	recordsResult func(records []map[string]interface{}) *dto.BackendImportResult
	importErr     error
	submitted     [][]map[string]interface{}
	uploads       []string

	parsed   *dto.ParsedDocument
	parseErr error

	login    *dto.LoginResult
	loginErr error
	calls    int
}

func newAPIStub() *apiStub {
	return &apiStub{lists: make(map[models.ResourceType][]models.Resource)}
}

func (a *apiStub) touch() {
	a.calls++
}

func (a *apiStub) totalCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func (a *apiStub) List(ctx context.Context, sess *models.Session, t models.ResourceType, filter models.Filter) ([]models.Resource, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.touch()
	a.listCalls++
	a.filters = append(a.filters, filter)
	if a.listErr != nil {
		return nil, a.listErr
	}
	if items, ok := a.byToken[sess.Credential()]; ok {
		return append([]models.Resource(nil), items...), nil
	}
	return append([]models.Resource(nil), a.lists[t]...), nil
}

func (a *apiStub) Get(ctx context.Context, sess *models.Session, t models.ResourceType, id string) (*models.Resource, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.touch()
	for _, r := range a.lists[t] {
		if r.ID == id {
			r := r
			return &r, nil
		}
	}
	return nil, appErrors.Upstream(404, "not found")
}

func (a *apiStub) Create(ctx context.Context, sess *models.Session, t models.ResourceType, payload interface{}) (*models.Resource, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.touch()
	if a.mutateErr != nil {
		return nil, a.mutateErr
	}
	a.created = append(a.created, payload)
	return &models.Resource{ID: "new", Fields: map[string]interface{}{}}, nil
}

func (a *apiStub) Update(ctx context.Context, sess *models.Session, t models.ResourceType, id string, payload interface{}) (*models.Resource, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.touch()
	if a.mutateErr != nil {
		return nil, a.mutateErr
	}
	a.created = append(a.created, payload)
	return &models.Resource{ID: id, Fields: map[string]interface{}{}}, nil
}

func (a *apiStub) Delete(ctx context.Context, sess *models.Session, t models.ResourceType, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.touch()
	if a.mutateErr != nil {
		return a.mutateErr
	}
	a.deleted = append(a.deleted, id)
	return nil
}

func (a *apiStub) ImportByFile(ctx context.Context, sess *models.Session, filename string, file io.Reader) (*dto.BackendImportResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.touch()
	a.uploads = append(a.uploads, filename)
	if a.importErr != nil {
		return nil, a.importErr
	}
	return a.fileResult, nil
}

func (a *apiStub) ImportByRecords(ctx context.Context, sess *models.Session, records []map[string]interface{}) (*dto.BackendImportResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.touch()
	a.submitted = append(a.submitted, records)
	if a.importErr != nil {
		return nil, a.importErr
	}
	if a.recordsResult != nil {
		return a.recordsResult(records), nil
	}
	return &dto.BackendImportResult{Success: len(records)}, nil
}

func (a *apiStub) ParseFreeText(ctx context.Context, sess *models.Session, text string, filters models.DocumentFilters) (*dto.ParsedDocument, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.touch()
	if a.parseErr != nil {
		return nil, a.parseErr
	}
	return a.parsed, nil
}

func (a *apiStub) Login(ctx context.Context, email, password string) (*dto.LoginResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.touch()
	if a.loginErr != nil {
		return nil, a.loginErr
	}
	return a.login, nil
}

func (a *apiStub) Ping(ctx context.Context) (models.UpstreamStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.touch()
	return models.UpstreamStatus{URL: "http://backend", Reachable: true, StatusCode: 200}, nil
}

type metricsStub struct {
	mu            sync.Mutex
	mutations     []string
	invalidations []string
	imports       int
}

func (m *metricsStub) RecordMutation(resourceType, op string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	outcome := "ok"
	if !ok {
		outcome = "fail"
	}
	m.mutations = append(m.mutations, resourceType+":"+op+":"+outcome)
}

func (m *metricsStub) RecordInvalidation(resourceType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidations = append(m.invalidations, resourceType)
}

func (m *metricsStub) RecordImport(source string, success, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.imports++
}

func resource(id, title string) models.Resource {
	return models.Resource{ID: id, Fields: map[string]interface{}{"title": title}}
}
