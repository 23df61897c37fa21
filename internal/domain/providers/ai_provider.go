package providers

import (
	"context"
	"errors"

	"github.com/medigrid/backend/internal/domain/entities"
)

// ErrAIQuotaExceeded is wrapped by providers when the upstream quota or rate limit is hit.
var ErrAIQuotaExceeded = errors.New("ai provider quota exceeded")

// PrescriptionExtractor reads a prescription image and returns the model's raw text answer.
type PrescriptionExtractor interface {
	ExtractPrescription(ctx context.Context, image []byte, mimeType string, location *entities.UserLocation) (string, error)
}

// WarningAnalyzer reports critical warnings for a medication list.
type WarningAnalyzer interface {
	AnalyzeWarnings(ctx context.Context, items []entities.MedicationItem) ([]entities.CriticalWarning, error)
}

// ChatProvider continues a conversation given its prior turns.
type ChatProvider interface {
	Chat(ctx context.Context, history []entities.ChatTurn, message string) (string, error)
}
