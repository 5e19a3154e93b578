package importer

import (
	"strings"

	"github.com/noah-isme/supercurriculum-admin/internal/dto"
	"github.com/noah-isme/supercurriculum-admin/internal/models"
)

// reconcile folds the backend result into report. records is nil when the
// backend parsed the input itself (CSV), in which case the total is what the
// backend counted.
func reconcile(report *models.ImportReport, records []map[string]interface{}, result *dto.BackendImportResult) {
	if result == nil {
		result = &dto.BackendImportResult{}
	}
	total := result.Success + result.Failed
	if records != nil {
		total = len(records)
	}

	report.SuccessCount = clamp(result.Success, 0, total)
	report.FailureCount = total - report.SuccessCount
	report.Errors = append([]string{}, result.Errors...)
	if records == nil {
		return
	}

	statuses := rowStatuses(result.Results)
	for i, data := range records {
		rec := models.ImportRecord{Index: i, Data: data, Status: models.ImportPending}
		if row, ok := statuses[i+1]; ok {
			rec.Status = row.Status
			rec.Reason = row.Reason
		} else if len(statuses) == 0 && result.Failed == 0 && report.FailureCount == 0 {
			rec.Status = models.ImportAccepted
		}
		if rec.Status == models.ImportAccepted {
			report.Accepted = append(report.Accepted, rec)
		}
	}
}

type rowStatus struct {
	Status models.ImportStatus
	Reason string
}

// rowStatuses indexes per-row results by their 1-based row number.
func rowStatuses(results []dto.BackendRowResult) map[int]rowStatus {
	out := make(map[int]rowStatus, len(results))
	for _, res := range results {
		if res.Row <= 0 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(res.Status)) {
		case "success", "ok", "created", "accepted", "imported":
			out[res.Row] = rowStatus{Status: models.ImportAccepted}
		default:
			reason := res.Error
			if reason == "" {
				reason = res.Status
			}
			out[res.Row] = rowStatus{Status: models.ImportRejected, Reason: reason}
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
