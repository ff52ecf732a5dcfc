package dto

import "github.com/24Tech-io/nursepor-stable-sub008/internal/models"

// RepairRequest optionally narrows a repair to previously reported issues.
// An empty body repairs whatever a fresh audit finds.
type RepairRequest struct {
	Issues []models.Issue `json:"issues"`
}

// CleanupResponse reports how many orphan rows were removed.
type CleanupResponse struct {
	DeletedCount int `json:"deleted_count"`
}
