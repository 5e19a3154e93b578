package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/noah-isme/supercurriculum-admin/internal/dto"
	"github.com/noah-isme/supercurriculum-admin/internal/models"
	appErrors "github.com/noah-isme/supercurriculum-admin/pkg/errors"
)

// Observer receives timing for every upstream call.
type Observer interface {
	ObserveUpstream(method, path string, status int, duration time.Duration)
}

// Config configures the backend client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the supercurriculum backend REST API.
type Client struct {
	http     *resty.Client
	baseURL  string
	logger   *zap.Logger
	observer Observer
}

// New builds a client against the backend base URL.
func New(cfg Config, logger *zap.Logger, observer Observer) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	httpClient := resty.New().
		SetBaseURL(base).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: httpClient, baseURL: base, logger: logger, observer: observer}
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// List fetches the collection for a resource type narrowed by filter.
func (c *Client) List(ctx context.Context, sess *models.Session, t models.ResourceType, filter models.Filter) ([]models.Resource, error) {
	req := c.request(ctx, sess).SetQueryParamsFromValues(filter.Values())
	body, err := c.do(req, http.MethodGet, t.Path(), t.Path())
	if err != nil {
		return nil, err
	}
	var items []models.Resource
	if err := decodeBody(body, &items); err != nil {
		return nil, decodeFailure(err, t.Path())
	}
	if items == nil {
		items = []models.Resource{}
	}
	return items, nil
}

// Get fetches a single resource.
func (c *Client) Get(ctx context.Context, sess *models.Session, t models.ResourceType, id string) (*models.Resource, error) {
	path, err := itemPath(t, id)
	if err != nil {
		return nil, err
	}
	body, err := c.do(c.request(ctx, sess), http.MethodGet, path, t.Path()+"/:id")
	if err != nil {
		return nil, err
	}
	var item models.Resource
	if err := decodeBody(body, &item); err != nil {
		return nil, decodeFailure(err, t.Path())
	}
	return &item, nil
}

// Create posts a new resource.
func (c *Client) Create(ctx context.Context, sess *models.Session, t models.ResourceType, payload interface{}) (*models.Resource, error) {
	body, err := c.do(c.request(ctx, sess).SetBody(payload), http.MethodPost, t.Path(), t.Path())
	if err != nil {
		return nil, err
	}
	return decodeOptionalResource(body, t)
}

// Update replaces an existing resource.
func (c *Client) Update(ctx context.Context, sess *models.Session, t models.ResourceType, id string, payload interface{}) (*models.Resource, error) {
	path, err := itemPath(t, id)
	if err != nil {
		return nil, err
	}
	body, err := c.do(c.request(ctx, sess).SetBody(payload), http.MethodPut, path, t.Path()+"/:id")
	if err != nil {
		return nil, err
	}
	return decodeOptionalResource(body, t)
}

// Delete removes a resource.
func (c *Client) Delete(ctx context.Context, sess *models.Session, t models.ResourceType, id string) error {
	path, err := itemPath(t, id)
	if err != nil {
		return err
	}
	_, err = c.do(c.request(ctx, sess), http.MethodDelete, path, t.Path()+"/:id")
	return err
}

// ImportByFile forwards an uploaded CSV file unchanged.
func (c *Client) ImportByFile(ctx context.Context, sess *models.Session, filename string, file io.Reader) (*dto.BackendImportResult, error) {
	req := c.request(ctx, sess).SetFileReader("file", filename, file)
	body, err := c.do(req, http.MethodPost, "/import/csv", "/import/csv")
	if err != nil {
		return nil, err
	}
	return decodeImportResult(body)
}

// ImportByRecords submits already-structured records.
func (c *Client) ImportByRecords(ctx context.Context, sess *models.Session, records []map[string]interface{}) (*dto.BackendImportResult, error) {
	req := c.request(ctx, sess).SetBody(dto.ImportRecordsRequest{Topics: records})
	body, err := c.do(req, http.MethodPost, "/import/json", "/import/json")
	if err != nil {
		return nil, err
	}
	return decodeImportResult(body)
}

// ParseFreeText hands unstructured text to the backend's document parser.
func (c *Client) ParseFreeText(ctx context.Context, sess *models.Session, text string, filters models.DocumentFilters) (*dto.ParsedDocument, error) {
	req := c.request(ctx, sess).SetBody(dto.ParseDocumentRequest{Text: text, DocumentFilters: filters})
	body, err := c.do(req, http.MethodPost, "/import/parse-document", "/import/parse-document")
	if err != nil {
		return nil, err
	}
	doc, err := decodeParsedDocument(body)
	if err != nil {
		return nil, decodeFailure(err, "/import/parse-document")
	}
	return doc, nil
}

// Login exchanges console credentials for a backend-issued bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (*dto.LoginResult, error) {
	req := c.request(ctx, nil).SetBody(map[string]string{"email": email, "password": password})
	body, err := c.do(req, http.MethodPost, "/auth/login", "/auth/login")
	if err != nil {
		return nil, err
	}
	var raw struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
		User        struct {
			ID          json.RawMessage `json:"id"`
			Name        string          `json:"name"`
			DisplayName string          `json:"display_name"`
			FullName    string          `json:"full_name"`
			Email       string          `json:"email"`
			Role        string          `json:"role"`
		} `json:"user"`
	}
	if err := decodeBody(body, &raw); err != nil {
		return nil, decodeFailure(err, "/auth/login")
	}
	token := raw.Token
	if token == "" {
		token = raw.AccessToken
	}
	if token == "" {
		return nil, appErrors.Upstream(http.StatusBadGateway, "login response carried no token")
	}
	name := firstNonEmpty(raw.User.DisplayName, raw.User.Name, raw.User.FullName, raw.User.Email)
	return &dto.LoginResult{
		Token: token,
		User: models.UserProfile{
			ID:          strings.Trim(string(raw.User.ID), `"`),
			DisplayName: name,
			Email:       raw.User.Email,
			Role:        models.UserRole(strings.ToUpper(raw.User.Role)),
		},
	}, nil
}

// Ping probes the backend health endpoint.
func (c *Client) Ping(ctx context.Context) (models.UpstreamStatus, error) {
	status := models.UpstreamStatus{URL: c.baseURL + "/health"}
	start := time.Now()
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	status.Latency = time.Since(start)
	if err != nil {
		status.Error = err.Error()
		c.observe(http.MethodGet, "/health", http.StatusServiceUnavailable, status.Latency)
		return status, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "backend unreachable")
	}
	status.StatusCode = resp.StatusCode()
	status.Reachable = resp.StatusCode() < http.StatusInternalServerError
	c.observe(http.MethodGet, "/health", resp.StatusCode(), status.Latency)
	if !status.Reachable {
		status.Error = fmt.Sprintf("received status %d", resp.StatusCode())
		return status, appErrors.Upstream(resp.StatusCode(), status.Error)
	}
	return status, nil
}

func (c *Client) request(ctx context.Context, sess *models.Session) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if token := sess.Credential(); token != "" {
		req.SetAuthToken(token)
	}
	return req
}

func (c *Client) do(req *resty.Request, method, path, label string) ([]byte, error) {
	start := time.Now()
	resp, err := req.Execute(method, path)
	duration := time.Since(start)
	if err != nil {
		c.observe(method, label, 0, duration)
		c.logger.Warn("upstream request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, appErrors.ErrUpstream.Message)
	}
	c.observe(method, label, resp.StatusCode(), duration)
	if !resp.IsSuccess() {
		message := extractMessage(resp.Body())
		c.logger.Debug("upstream rejected request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode()),
			zap.String("message", message),
		)
		return nil, appErrors.Upstream(resp.StatusCode(), message)
	}
	return resp.Body(), nil
}

func (c *Client) observe(method, path string, status int, duration time.Duration) {
	if c.observer != nil {
		c.observer.ObserveUpstream(method, path, status, duration)
	}
}

// itemPath escapes id into a single path segment so it cannot add segments or a query.
func itemPath(t models.ResourceType, id string) (string, error) {
	switch id {
	case "", ".", "..":
		return "", appErrors.Clone(appErrors.ErrValidation, "invalid resource id")
	}
	return t.Path() + "/" + url.PathEscape(id), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func decodeFailure(err error, path string) error {
	return appErrors.Wrap(err, appErrors.ErrUpstream.Code, http.StatusBadGateway, fmt.Sprintf("unexpected response from %s", path))
}

func decodeOptionalResource(body []byte, t models.ResourceType) (*models.Resource, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var item models.Resource
	if err := decodeBody(body, &item); err != nil {
		return nil, decodeFailure(err, t.Path())
	}
	return &item, nil
}

func decodeImportResult(body []byte) (*dto.BackendImportResult, error) {
	var result dto.BackendImportResult
	if err := decodeBody(body, &result); err != nil {
		return nil, decodeFailure(err, "/import")
	}
	if result.Errors == nil {
		result.Errors = []string{}
	}
	return &result, nil
}

func decodeParsedDocument(body []byte) (*dto.ParsedDocument, error) {
	payload := unwrapEnvelope(body)
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var topics []map[string]interface{}
		if err := json.Unmarshal(trimmed, &topics); err != nil {
			return nil, err
		}
		return &dto.ParsedDocument{Topics: topics}, nil
	}
	var doc dto.ParsedDocument
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
