package repositories

import (
	"context"

	"github.com/medigrid/backend/internal/domain/entities"
)

// PrescriptionRepository is the append-only store of prescription rows.
type PrescriptionRepository interface {
	// EnsureSchema creates the prescription table if it does not exist.
	EnsureSchema(ctx context.Context) error

	// InsertRecords writes all records in one transaction, or none of them.
	InsertRecords(ctx context.Context, records []entities.PrescriptionRecord) error

	// ListRecords returns every record, most recent save first.
	ListRecords(ctx context.Context) ([]entities.PrescriptionRecord, error)
}
