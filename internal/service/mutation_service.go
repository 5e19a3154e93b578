package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/supercurriculum-admin/internal/dto"
	"github.com/noah-isme/supercurriculum-admin/internal/models"
	appErrors "github.com/noah-isme/supercurriculum-admin/pkg/errors"
)

// MutationOp is the kind of change applied to a resource.
type MutationOp string

const (
	MutationCreate MutationOp = "create"
	MutationUpdate MutationOp = "update"
	MutationDelete MutationOp = "delete"
)

type resourceWriter interface {
	Create(ctx context.Context, sess *models.Session, t models.ResourceType, payload interface{}) (*models.Resource, error)
	Update(ctx context.Context, sess *models.Session, t models.ResourceType, id string, payload interface{}) (*models.Resource, error)
	Delete(ctx context.Context, sess *models.Session, t models.ResourceType, id string) error
}

type namespaceInvalidator interface {
	InvalidateType(t models.ResourceType) int
}

type mutationRecorder interface {
	RecordMutation(resourceType, op string, ok bool)
	RecordInvalidation(resourceType string)
}

// MutationService performs create/update/delete calls and invalidates the
// resource type's cached queries once the backend confirms the change.
type MutationService struct {
	api       resourceWriter
	cache     namespaceInvalidator
	validator *validator.Validate
	metrics   mutationRecorder
	logger    *zap.Logger
}

// MutationServiceOption configures the service.
type MutationServiceOption func(*MutationService)

// WithMutationMetrics records mutation outcomes.
func WithMutationMetrics(metrics mutationRecorder) MutationServiceOption {
	return func(s *MutationService) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithMutationValidator overrides the payload validator.
func WithMutationValidator(validate *validator.Validate) MutationServiceOption {
	return func(s *MutationService) {
		if validate != nil {
			s.validator = validate
		}
	}
}

// NewMutationService constructs the service with defaults.
func NewMutationService(api resourceWriter, cache namespaceInvalidator, logger *zap.Logger, opts ...MutationServiceOption) *MutationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &MutationService{
		api:       api,
		cache:     cache,
		validator: validator.New(),
		logger:    logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create validates raw as the type's payload and creates the resource.
func (s *MutationService) Create(ctx context.Context, sess *models.Session, t models.ResourceType, raw []byte) (*models.Resource, error) {
	payload, err := s.decode(t, raw)
	if err != nil {
		return nil, err
	}
	created, err := s.api.Create(ctx, sess, t, payload)
	if err := s.complete(t, MutationCreate, err); err != nil {
		return nil, err
	}
	return created, nil
}

// Update validates raw as the type's payload and replaces resource id.
func (s *MutationService) Update(ctx context.Context, sess *models.Session, t models.ResourceType, id string, raw []byte) (*models.Resource, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "id is required")
	}
	payload, err := s.decode(t, raw)
	if err != nil {
		return nil, err
	}
	updated, err := s.api.Update(ctx, sess, t, id, payload)
	if err := s.complete(t, MutationUpdate, err); err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes resource id.
func (s *MutationService) Delete(ctx context.Context, sess *models.Session, t models.ResourceType, id string) error {
	if _, ok := dto.PayloadFor(t); !ok {
		return appErrors.ErrUnknownResource
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return appErrors.Clone(appErrors.ErrValidation, "id is required")
	}
	err := s.api.Delete(ctx, sess, t, id)
	return s.complete(t, MutationDelete, err)
}

func (s *MutationService) decode(t models.ResourceType, raw []byte) (dto.Payload, error) {
	if _, ok := dto.PayloadFor(t); !ok {
		return nil, appErrors.ErrUnknownResource
	}
	payload, err := dto.DecodePayload(t, raw)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload: "+err.Error())
	}
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	return payload, nil
}

// complete invalidates the whole namespace only after a confirmed success.
func (s *MutationService) complete(t models.ResourceType, op MutationOp, err error) error {
	if s.metrics != nil {
		s.metrics.RecordMutation(string(t), string(op), err == nil)
	}
	if err != nil {
		s.logger.Warn("mutation failed", zap.String("type", string(t)), zap.String("op", string(op)), zap.Error(err))
		return err
	}
	touched := s.cache.InvalidateType(t)
	if s.metrics != nil {
		s.metrics.RecordInvalidation(string(t))
	}
	s.logger.Debug("mutation applied", zap.String("type", string(t)), zap.String("op", string(op)), zap.Int("invalidated", touched))
	return nil
}
