package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/supercurriculum-admin/internal/dto"
	"github.com/noah-isme/supercurriculum-admin/internal/middleware"
	"github.com/noah-isme/supercurriculum-admin/internal/models"
	appErrors "github.com/noah-isme/supercurriculum-admin/pkg/errors"
	"github.com/noah-isme/supercurriculum-admin/pkg/response"
)

const maxPayloadBytes = 1 << 20

type resourceQuerier interface {
	List(ctx context.Context, sess *models.Session, t models.ResourceType, filter models.Filter) (dto.ListState, error)
	Refetch(ctx context.Context, sess *models.Session, t models.ResourceType, filter models.Filter) (dto.ListState, error)
	Get(ctx context.Context, sess *models.Session, t models.ResourceType, id string) (dto.ItemState, error)
	Watch(ctx context.Context, sess *models.Session, t models.ResourceType, filter models.Filter) <-chan dto.ListState
}

type resourceMutator interface {
	Create(ctx context.Context, sess *models.Session, t models.ResourceType, raw []byte) (*models.Resource, error)
	Update(ctx context.Context, sess *models.Session, t models.ResourceType, id string, raw []byte) (*models.Resource, error)
	Delete(ctx context.Context, sess *models.Session, t models.ResourceType, id string) error
}

// ResourceHandler exposes list and CRUD endpoints for every resource type.
type ResourceHandler struct {
	query     resourceQuerier
	mutations resourceMutator
	keepAlive time.Duration
}

// NewResourceHandler constructs the handler.
func NewResourceHandler(query resourceQuerier, mutations resourceMutator) *ResourceHandler {
	return &ResourceHandler{query: query, mutations: mutations, keepAlive: 25 * time.Second}
}

// List godoc
// @Summary List resources
// @Description Returns cached data with loading and error flags. Query parameters other than refetch are filters.
// @Tags Resources
// @Produce json
// @Param type path string true "Resource type"
// @Param refetch query bool false "Mark the list stale and fetch again"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /api/resources/{type} [get]
func (h *ResourceHandler) List(c *gin.Context) {
	t, ok := resourceTypeParam(c)
	if !ok {
		return
	}
	sess := middleware.SessionFromContext(c)
	filter := listFilter(c)

	read := h.query.List
	if refetch, _ := strconv.ParseBool(c.Query("refetch")); refetch {
		read = h.query.Refetch
	}
	state, err := read(c.Request.Context(), sess, t, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetQueryState(c, state.Stale, state.IsLoading, state.UpdatedAt)
	response.JSON(c, http.StatusOK, state, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get a resource
// @Tags Resources
// @Produce json
// @Param type path string true "Resource type"
// @Param id path string true "Resource ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /api/resources/{type}/{id} [get]
func (h *ResourceHandler) Get(c *gin.Context) {
	t, ok := resourceTypeParam(c)
	if !ok {
		return
	}
	state, err := h.query.Get(c.Request.Context(), middleware.SessionFromContext(c), t, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetQueryState(c, state.Stale, state.IsLoading, state.UpdatedAt)
	response.JSON(c, http.StatusOK, state, middleware.ExtractMeta(c))
}

// Create godoc
// @Summary Create a resource
// @Tags Resources
// @Accept json
// @Produce json
// @Param type path string true "Resource type"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /api/resources/{type} [post]
func (h *ResourceHandler) Create(c *gin.Context) {
	t, ok := resourceTypeParam(c)
	if !ok {
		return
	}
	raw, ok := readPayload(c)
	if !ok {
		return
	}
	created, err := h.mutations.Create(c.Request.Context(), middleware.SessionFromContext(c), t, raw)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// Update godoc
// @Summary Update a resource
// @Tags Resources
// @Accept json
// @Produce json
// @Param type path string true "Resource type"
// @Param id path string true "Resource ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /api/resources/{type}/{id} [put]
func (h *ResourceHandler) Update(c *gin.Context) {
	t, ok := resourceTypeParam(c)
	if !ok {
		return
	}
	raw, ok := readPayload(c)
	if !ok {
		return
	}
	updated, err := h.mutations.Update(c.Request.Context(), middleware.SessionFromContext(c), t, c.Param("id"), raw)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated)
}

// Delete godoc
// @Summary Delete a resource
// @Tags Resources
// @Param type path string true "Resource type"
// @Param id path string true "Resource ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /api/resources/{type}/{id} [delete]
func (h *ResourceHandler) Delete(c *gin.Context) {
	t, ok := resourceTypeParam(c)
	if !ok {
		return
	}
	if err := h.mutations.Delete(c.Request.Context(), middleware.SessionFromContext(c), t, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Stream godoc
// @Summary Stream list state
// @Description Server-sent events carrying the list state, re-sent after every invalidation or refresh.
// @Tags Resources
// @Produce text/event-stream
// @Param type path string true "Resource type"
// @Router /api/resources/{type}/stream [get]
func (h *ResourceHandler) Stream(c *gin.Context) {
	t, ok := resourceTypeParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	states := h.query.Watch(ctx, middleware.SessionFromContext(c), t, listFilter(c))

	c.Header("Cache-Control", "no-store")
	c.Header("X-Accel-Buffering", "no")
	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		case state, ok := <-states:
			if !ok {
				return false
			}
			response.Event(c, "state", state, middleware.QueryStateMeta(state.Stale, state.IsLoading, state.UpdatedAt))
			return true
		}
	})
}

func resourceTypeParam(c *gin.Context) (models.ResourceType, bool) {
	t, ok := models.ParseResourceType(c.Param("type"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrUnknownResource, "unknown resource type "+strconv.Quote(c.Param("type"))))
		return "", false
	}
	return t, true
}

func listFilter(c *gin.Context) models.Filter {
	query := c.Request.URL.Query()
	query.Del("refetch")
	return models.FilterFromQuery(query)
}

func readPayload(c *gin.Context) ([]byte, bool) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadBytes+1))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read payload"))
		return nil, false
	}
	if len(raw) > maxPayloadBytes {
		response.Error(c, appErrors.New(appErrors.ErrValidation.Code, http.StatusRequestEntityTooLarge, "payload too large"))
		return nil, false
	}
	return raw, true
}
