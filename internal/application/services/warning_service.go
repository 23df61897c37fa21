package services

import (
	"context"

	"github.com/medigrid/backend/internal/domain/entities"
	"github.com/medigrid/backend/internal/domain/providers"
	"github.com/medigrid/backend/internal/infrastructure/observability"
)

// WarningService reports critical warnings for an extracted medication list.
type WarningService struct {
	analyzer providers.WarningAnalyzer
}

// NewWarningService creates a new warning service.
func NewWarningService(analyzer providers.WarningAnalyzer) *WarningService {
	return &WarningService{analyzer: analyzer}
}

// Analyze returns the warnings for items. The result is empty, never nil,
// when there is nothing to analyze or the provider fails.
func (s *WarningService) Analyze(ctx context.Context, items []entities.MedicationItem) []entities.CriticalWarning {
	if len(items) == 0 || s.analyzer == nil {
		return []entities.CriticalWarning{}
	}

	logger := observability.LoggerFromContext(ctx)
	warnings, err := s.analyzer.AnalyzeWarnings(ctx, items)
	if err != nil {
		logger.Error().Err(err).Int("medications", len(items)).Msg("Critical warning analysis failed")
		return []entities.CriticalWarning{}
	}
	if warnings == nil {
		warnings = []entities.CriticalWarning{}
	}

	logger.Info().Int("warnings", len(warnings)).Msg("Critical warnings analyzed")
	return warnings
}
