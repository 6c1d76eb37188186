package dto

import (
	"github.com/jonlee90/thepuppyday-sub014/modules/importer/service"
)

// ConfirmImportRequest carries the rows the admin chose to import after
// reviewing the preview (skipped rows are omitted client-side).
type ConfirmImportRequest struct {
	Rows []service.CandidateRow `json:"rows" validate:"required,min=1"`
}

type RollbackRequest struct {
	BatchID string `json:"batch_id" validate:"required"`
}

type RollbackResponse struct {
	BatchID string `json:"batch_id"`
	Deleted int    `json:"deleted"`
}
