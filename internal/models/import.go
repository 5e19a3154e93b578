package models

import "time"

// ImportStatus is the validation status of a prospective record.
type ImportStatus string

const (
	ImportPending  ImportStatus = "pending"
	ImportAccepted ImportStatus = "accepted"
	ImportRejected ImportStatus = "rejected"
)

// ImportSource identifies which import path produced a report.
type ImportSource string

const (
	ImportSourceCSV      ImportSource = "csv"
	ImportSourceJSON     ImportSource = "json"
	ImportSourceDocument ImportSource = "document"
)

// ImportRecord is a prospective resource prior to persistence.
type ImportRecord struct {
	Index  int                    `json:"index"`
	Data   map[string]interface{} `json:"data"`
	Status ImportStatus           `json:"status"`
	Reason string                 `json:"reason,omitempty"`
}

// DocumentFilters disambiguate free-text parsing on the backend.
type DocumentFilters struct {
	YearGroupID string `json:"year_group_id,omitempty"`
	SubjectID   string `json:"subject_id,omitempty"`
	Stage       string `json:"stage,omitempty"`
}

// ImportReport aggregates the outcome of one import attempt. Treat as read-only.
type ImportReport struct {
	ID           string         `json:"id"`
	Source       ImportSource   `json:"source"`
	SuccessCount int            `json:"success_count"`
	FailureCount int            `json:"failure_count"`
	Errors       []string       `json:"errors"`
	Warnings     []string       `json:"warnings,omitempty"`
	Accepted     []ImportRecord `json:"accepted"`
	Staged       bool           `json:"staged"`
	CreatedBy    string         `json:"created_by,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Total returns the number of records the attempt covered.
func (r *ImportReport) Total() int {
	if r == nil {
		return 0
	}
	return r.SuccessCount + r.FailureCount
}

// Clone returns a deep copy so callers cannot mutate the stored report.
func (r *ImportReport) Clone() *ImportReport {
	if r == nil {
		return nil
	}
	out := *r
	out.Errors = append([]string{}, r.Errors...)
	out.Warnings = append([]string(nil), r.Warnings...)
	out.Accepted = make([]ImportRecord, len(r.Accepted))
	for i, rec := range r.Accepted {
		out.Accepted[i] = rec.Clone()
	}
	return &out
}

// Clone copies the record including its data map.
func (r ImportRecord) Clone() ImportRecord {
	out := r
	if r.Data != nil {
		out.Data = make(map[string]interface{}, len(r.Data))
		for k, v := range r.Data {
			out.Data[k] = v
		}
	}
	return out
}

// ImportHistoryEntry is the persisted summary of a produced report.
type ImportHistoryEntry struct {
	ID           string    `db:"id" json:"id"`
	Source       string    `db:"source" json:"source"`
	SuccessCount int       `db:"success_count" json:"success_count"`
	FailureCount int       `db:"failure_count" json:"failure_count"`
	Errors       []byte    `db:"errors" json:"-"`
	Staged       bool      `db:"staged" json:"staged"`
	CreatedBy    string    `db:"created_by" json:"created_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
