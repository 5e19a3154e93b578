package dto

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/noah-isme/supercurriculum-admin/internal/models"
)

// Payload is a typed create/update body for one resource type.
type Payload interface {
	ResourceType() models.ResourceType
}

// YearGroupPayload creates or replaces a year group.
type YearGroupPayload struct {
	Name      string `json:"name" validate:"required,max=100"`
	Code      string `json:"code" validate:"omitempty,max=20"`
	SortOrder int    `json:"sort_order" validate:"gte=0"`
}

// SubjectPayload creates or replaces a subject.
type SubjectPayload struct {
	Name        string `json:"name" validate:"required,max=120"`
	Code        string `json:"code" validate:"omitempty,max=20"`
	Description string `json:"description" validate:"max=2000"`
	Colour      string `json:"colour" validate:"omitempty,hexcolor"`
}

// ActivityPayload creates or replaces a supercurriculum activity.
type ActivityPayload struct {
	Title           string   `json:"title" validate:"required,max=200"`
	Description     string   `json:"description" validate:"max=5000"`
	SubjectID       string   `json:"subject_id" validate:"required"`
	SkillID         string   `json:"skill_id"`
	YearGroupIDs    []string `json:"year_group_ids" validate:"dive,required"`
	Kind            string   `json:"kind" validate:"required,oneof=read watch listen do visit other"`
	URL             string   `json:"url" validate:"omitempty,url"`
	DurationMinutes int      `json:"duration_minutes" validate:"gte=0,lte=600"`
	Stage           string   `json:"stage" validate:"omitempty,max=50"`
}

// InterventionPayload creates or replaces an intervention framework.
type InterventionPayload struct {
	Name        string   `json:"name" validate:"required,max=150"`
	Description string   `json:"description" validate:"max=5000"`
	Tier        int      `json:"tier" validate:"gte=1,lte=3"`
	SubjectID   string   `json:"subject_id"`
	Strategies  []string `json:"strategies" validate:"dive,required,max=500"`
}

// FeedbackQuestion is one prompt inside a feedback test.
type FeedbackQuestion struct {
	Prompt  string   `json:"prompt" validate:"required,max=500"`
	Kind    string   `json:"kind" validate:"required,oneof=scale text choice"`
	Options []string `json:"options" validate:"required_if=Kind choice,dive,required"`
}

// TestPayload creates or replaces a feedback test.
type TestPayload struct {
	Title       string             `json:"title" validate:"required,max=200"`
	SubjectID   string             `json:"subject_id"`
	YearGroupID string             `json:"year_group_id"`
	Questions   []FeedbackQuestion `json:"questions" validate:"required,min=1,dive"`
}

// UserPayload creates or replaces a console-managed user.
type UserPayload struct {
	Email       string          `json:"email" validate:"required,email"`
	DisplayName string          `json:"display_name" validate:"required,max=120"`
	Role        models.UserRole `json:"role" validate:"required,oneof=SUPERADMIN ADMIN TEACHER STUDENT"`
	Password    string          `json:"password,omitempty" validate:"omitempty,min=8"`
}

func (YearGroupPayload) ResourceType() models.ResourceType    { return models.ResourceYearGroups }
func (SubjectPayload) ResourceType() models.ResourceType      { return models.ResourceSubjects }
func (ActivityPayload) ResourceType() models.ResourceType     { return models.ResourceActivities }
func (InterventionPayload) ResourceType() models.ResourceType { return models.ResourceInterventions }
func (TestPayload) ResourceType() models.ResourceType         { return models.ResourceTests }
func (UserPayload) ResourceType() models.ResourceType         { return models.ResourceUsers }

// PayloadFor returns an empty payload for the resource type.
func PayloadFor(t models.ResourceType) (Payload, bool) {
	switch t {
	case models.ResourceYearGroups:
		return &YearGroupPayload{}, true
	case models.ResourceSubjects:
		return &SubjectPayload{}, true
	case models.ResourceActivities:
		return &ActivityPayload{}, true
	case models.ResourceInterventions:
		return &InterventionPayload{}, true
	case models.ResourceTests:
		return &TestPayload{}, true
	case models.ResourceUsers:
		return &UserPayload{}, true
	default:
		return nil, false
	}
}

// DecodePayload strictly decodes raw JSON into the payload struct of the type.
func DecodePayload(t models.ResourceType, raw []byte) (Payload, error) {
	payload, ok := PayloadFor(t)
	if !ok {
		return nil, fmt.Errorf("no payload for resource type %q", t)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(payload); err != nil {
		return nil, err
	}
	return payload, nil
}
