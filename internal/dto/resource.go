package dto

import (
	"time"

	"github.com/noah-isme/supercurriculum-admin/internal/models"
)

// ListState is what a list screen renders: data plus loading and error flags.
type ListState struct {
	Type      models.ResourceType `json:"type"`
	Filter    models.Filter       `json:"filter"`
	Data      []models.Resource   `json:"data"`
	IsLoading bool                `json:"is_loading"`
	IsError   bool                `json:"is_error"`
	Error     string              `json:"error,omitempty"`
	Stale     bool                `json:"stale"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// ItemState mirrors ListState for a single resource.
type ItemState struct {
	Type      models.ResourceType `json:"type"`
	Data      *models.Resource    `json:"data"`
	IsLoading bool                `json:"is_loading"`
	IsError   bool                `json:"is_error"`
	Error     string              `json:"error,omitempty"`
	Stale     bool                `json:"stale"`
	UpdatedAt time.Time           `json:"updated_at"`
}
