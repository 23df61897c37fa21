package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/medigrid/backend/internal/domain/entities"
	"github.com/medigrid/backend/internal/domain/providers"
	"github.com/medigrid/backend/internal/infrastructure/observability"
	apperrors "github.com/medigrid/backend/pkg/errors"
	"github.com/medigrid/backend/pkg/utils"
)

// User-facing extraction failure messages.
const (
	ExtractionQuotaMessage   = "API quota exceeded. Please try again tomorrow or upgrade plan."
	ExtractionAnalyzeMessage = "Failed to analyze prescription. Please try again with a clearer image."
	ExtractionGenericMessage = "An error occurred during processing. Please try again."
)

// ExtractionService turns prescription photos into structured medication
// lists.
type ExtractionService struct {
	extractor providers.PrescriptionExtractor
	sig       *utils.SigNormalizer
}

// NewExtractionService creates a new extraction service. A nil sig uses the
// default abbreviation table.
func NewExtractionService(extractor providers.PrescriptionExtractor, sig *utils.SigNormalizer) *ExtractionService {
	if sig == nil {
		sig = utils.NewSigNormalizer(nil)
	}
	return &ExtractionService{extractor: extractor, sig: sig}
}

// ParseUserLocation decodes the optional user_location form field. Invalid
// JSON is logged and ignored.
func ParseUserLocation(ctx context.Context, raw string) *entities.UserLocation {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var loc entities.UserLocation
	if err := json.Unmarshal([]byte(raw), &loc); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Msg("Ignoring invalid user_location")
		return nil
	}
	return &loc
}

// Extract reads one prescription image. It never returns an error: failures
// produce an empty result carrying a user-facing message.
func (s *ExtractionService) Extract(ctx context.Context, image []byte, mimeType string, location *entities.UserLocation) *entities.ExtractionResult {
	logger := observability.LoggerFromContext(ctx)

	if s.extractor == nil {
		logger.Error().Msg("Prescription extraction requested but no extractor is configured")
		return entities.NewFailedExtraction(ExtractionGenericMessage)
	}

	text, err := s.extractor.ExtractPrescription(ctx, image, mimeType, location)
	if err != nil {
		logger.Error().Err(err).Int("image_bytes", len(image)).Msg("Prescription extraction failed")
		return entities.NewFailedExtraction(extractionFailureMessage(err))
	}

	payload, err := entities.ParseCompositePayload([]byte(utils.ExtractJSONObject(utils.StripCodeFence(text))))
	if err != nil {
		logger.Error().Err(err).Msg("Prescription extraction returned malformed JSON")
		return entities.NewFailedExtraction(ExtractionAnalyzeMessage)
	}

	result := &entities.ExtractionResult{
		PatientInfo:      payload.PatientInfo,
		PrescriptionInfo: make([]entities.MedicationItem, 0, len(payload.Medications)),
	}
	if result.PatientInfo == nil {
		result.PatientInfo = map[string]interface{}{}
	}
	for _, raw := range payload.Medications {
		item := entities.MedicationItemFromMap(raw)
		item.Frequency = s.sig.Normalize(item.Frequency)
		if missing(item.MapLink) && !missing(item.Medications) {
			item.MapLink = PharmacySearchLink(item.Medications, location)
		}
		result.PrescriptionInfo = append(result.PrescriptionInfo, item)
	}

	logger.Info().Int("medications", len(result.PrescriptionInfo)).Msg("Prescription extracted")
	return result
}

// extractionFailureMessage picks the user-facing message for a provider error.
func extractionFailureMessage(err error) string {
	switch {
	case errors.Is(err, providers.ErrAIQuotaExceeded),
		apperrors.IsType(err, apperrors.ErrorTypeRateLimited):
		return ExtractionQuotaMessage
	case apperrors.IsType(err, apperrors.ErrorTypeExternal),
		apperrors.IsType(err, apperrors.ErrorTypeUnavailable):
		return ExtractionAnalyzeMessage
	default:
		return ExtractionGenericMessage
	}
}

// PharmacySearchLink returns a Google Maps search for pharmacies stocking
// medication, near location when known.
func PharmacySearchLink(medication string, location *entities.UserLocation) string {
	query := "pharmacy " + medication
	switch {
	case location == nil:
	case location.Latitude != 0 || location.Longitude != 0:
		query += fmt.Sprintf(" near %.5f,%.5f", location.Latitude, location.Longitude)
	case location.City != "":
		query += " near " + location.City
	}
	values := url.Values{}
	values.Set("api", "1")
	values.Set("query", query)
	return "https://www.google.com/maps/search/?" + values.Encode()
}

func missing(value string) bool {
	v := strings.TrimSpace(value)
	return v == "" || v == entities.NotProvided
}
