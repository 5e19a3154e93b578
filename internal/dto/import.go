package dto

import "github.com/noah-isme/supercurriculum-admin/internal/models"

// BackendRowResult is an optional per-row outcome reported by the backend.
type BackendRowResult struct {
	Row    int    `json:"row"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// BackendImportResult is the backend's import response.
type BackendImportResult struct {
	Success int                `json:"success"`
	Failed  int                `json:"failed"`
	Errors  []string           `json:"errors"`
	Results []BackendRowResult `json:"results,omitempty"`
}

// ParsedDocument is the backend's free-text parsing response.
type ParsedDocument struct {
	Topics   []map[string]interface{} `json:"topics"`
	Warnings []string                 `json:"warnings,omitempty"`
	Model    string                   `json:"model,omitempty"`
}

// ImportRecordsRequest is the structured-text body sent to the backend.
type ImportRecordsRequest struct {
	Topics []map[string]interface{} `json:"topics"`
}

// ParseDocumentRequest is the free-text body sent to the backend.
type ParseDocumentRequest struct {
	Text string `json:"text"`
	models.DocumentFilters
}

// StructuredImportRequest carries pasted structured text from the console.
type StructuredImportRequest struct {
	Text string `json:"text" validate:"required"`
}

// DocumentImportRequest carries unstructured document text and optional filters.
type DocumentImportRequest struct {
	Text        string `json:"text" validate:"required"`
	YearGroupID string `json:"year_group_id"`
	SubjectID   string `json:"subject_id"`
	Stage       string `json:"stage"`
}

// ImportStateResponse describes the reconciler state with its last report.
type ImportStateResponse struct {
	State  string               `json:"state"`
	Report *models.ImportReport `json:"report,omitempty"`
}
