package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/supercurriculum-admin/internal/dto"
	"github.com/noah-isme/supercurriculum-admin/internal/models"
	"github.com/noah-isme/supercurriculum-admin/internal/querycache"
	appErrors "github.com/noah-isme/supercurriculum-admin/pkg/errors"
)

type resourceReader interface {
	List(ctx context.Context, sess *models.Session, t models.ResourceType, filter models.Filter) ([]models.Resource, error)
	Get(ctx context.Context, sess *models.Session, t models.ResourceType, id string) (*models.Resource, error)
}

// ResourceService drives list screens: it derives a cache key from the resource
// type, filter and session principal, reads through the query cache, and
// reports loading/error flags.
type ResourceService struct {
	api    resourceReader
	cache  *querycache.Cache
	logger *zap.Logger
}

// NewResourceService constructs a list controller.
func NewResourceService(api resourceReader, cache *querycache.Cache, logger *zap.Logger) *ResourceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResourceService{api: api, cache: cache, logger: logger}
}

// List returns the list state for type and filter. An error is returned only
// when there is nothing to show.
func (s *ResourceService) List(ctx context.Context, sess *models.Session, t models.ResourceType, filter models.Filter) (dto.ListState, error) {
	filter = filter.Normalize()
	key := querycache.ListKey(t, filter).For(sess.Principal())
	entry, err := s.cache.Query(ctx, key, func(ctx context.Context) (interface{}, error) {
		return s.api.List(ctx, sess, t, filter)
	})

	state := dto.ListState{
		Type:      t,
		Filter:    filter,
		Data:      []models.Resource{},
		IsLoading: entry.IsLoading,
		IsError:   entry.IsError,
		Stale:     entry.Stale,
		UpdatedAt: entry.UpdatedAt,
	}
	if items, ok := entry.Value.([]models.Resource); ok {
		state.Data = items
	}
	if entry.Err != nil {
		state.Error = appErrors.FromError(entry.Err).Message
	}
	if err != nil && !entry.HasValue {
		return state, err
	}
	return state, nil
}

// Refetch marks the list entry stale and reads it again, so the caller gets the
// current data while a fresh fetch runs.
func (s *ResourceService) Refetch(ctx context.Context, sess *models.Session, t models.ResourceType, filter models.Filter) (dto.ListState, error) {
	filter = filter.Normalize()
	s.cache.Invalidate(querycache.ListKey(t, filter).For(sess.Principal()))
	return s.List(ctx, sess, t, filter)
}

// Get returns a single resource through the cache.
func (s *ResourceService) Get(ctx context.Context, sess *models.Session, t models.ResourceType, id string) (dto.ItemState, error) {
	key := querycache.ItemKey(t, id).For(sess.Principal())
	entry, err := s.cache.Query(ctx, key, func(ctx context.Context) (interface{}, error) {
		return s.api.Get(ctx, sess, t, id)
	})

	state := dto.ItemState{
		Type:      t,
		IsLoading: entry.IsLoading,
		IsError:   entry.IsError,
		Stale:     entry.Stale,
		UpdatedAt: entry.UpdatedAt,
	}
	if item, ok := entry.Value.(*models.Resource); ok {
		state.Data = item
	}
	if entry.Err != nil {
		state.Error = appErrors.FromError(entry.Err).Message
	}
	if err != nil && !entry.HasValue {
		return state, err
	}
	return state, nil
}

// Watch emits the list state now and again after every invalidation or refresh
// of its cache entry, until ctx ends.
func (s *ResourceService) Watch(ctx context.Context, sess *models.Session, t models.ResourceType, filter models.Filter) <-chan dto.ListState {
	filter = filter.Normalize()
	out := make(chan dto.ListState, 1)
	notes, cancel := s.cache.Subscribe(querycache.ListKey(t, filter).For(sess.Principal()))

	go func() {
		defer close(out)
		defer cancel()

		emit := func() bool {
			state, err := s.List(ctx, sess, t, filter)
			if err != nil {
				if ctx.Err() != nil {
					return false
				}
				state.IsError = true
				state.Error = appErrors.FromError(err).Message
			}
			select {
			case out <- state:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-notes:
				if !ok || !emit() {
					return
				}
			}
		}
	}()
	return out
}
