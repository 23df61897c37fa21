package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/medigrid/backend/internal/application/services"
	"github.com/medigrid/backend/internal/domain/entities"
	"github.com/medigrid/backend/internal/infrastructure/observability"
)

const maxImageBytes = 20 << 20

// ExtractionService defines the extraction operation used by the handler.
type ExtractionService interface {
	Extract(ctx context.Context, image []byte, mimeType string, location *entities.UserLocation) *entities.ExtractionResult
}

// WarningService defines the warning operation used by the handler.
type WarningService interface {
	Analyze(ctx context.Context, items []entities.MedicationItem) []entities.CriticalWarning
}

// AssistantService defines the chat operation used by the handler.
type AssistantService interface {
	Reply(ctx context.Context, sessionKey, message string) string
}

// AIHandler handles the AI-backed endpoints: extraction, warnings and chat.
type AIHandler struct {
	extraction ExtractionService
	warnings   WarningService
	assistant  AssistantService
}

// NewAIHandler creates a new AI handler.
func NewAIHandler(extraction ExtractionService, warnings WarningService, assistant AssistantService) *AIHandler {
	return &AIHandler{
		extraction: extraction,
		warnings:   warnings,
		assistant:  assistant,
	}
}

// DataExtraction handles POST /data_extraction. Only a missing image is a
// client error; every other failure is reported inside a 200 result.
func (h *AIHandler) DataExtraction(w http.ResponseWriter, r *http.Request) {
	logger := observability.LoggerFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+(1<<20))
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		respondWithDetail(w, http.StatusUnprocessableEntity, "multipart form with an image field is required")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondWithDetail(w, http.StatusUnprocessableEntity, "image is required")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read uploaded image")
		respondWithJSON(w, http.StatusOK, entities.NewFailedExtraction(services.ExtractionGenericMessage))
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(image)
	}

	logger.Info().Str("file", header.Filename).Int("bytes", len(image)).Msg("Prescription image received")

	location := services.ParseUserLocation(r.Context(), r.FormValue("user_location"))
	respondWithJSON(w, http.StatusOK, h.extraction.Extract(r.Context(), image, mimeType, location))
}

type warningItem struct {
	Medications *string `json:"medications"`
	Dosage      *string `json:"Dosage"`
	Frequency   *string `json:"Frequency"`
	Duration    *string `json:"Duration"`
	MapLink     *string `json:"Map_link"`
}

func (i warningItem) toMedication(index int) (entities.MedicationItem, error) {
	fields := []struct {
		name  string
		value *string
	}{
		{"medications", i.Medications},
		{"Dosage", i.Dosage},
		{"Frequency", i.Frequency},
		{"Duration", i.Duration},
		{"Map_link", i.MapLink},
	}
	for _, f := range fields {
		if f.value == nil {
			return entities.MedicationItem{}, fmt.Errorf("Prescription_info[%d].%s is required", index, f.name)
		}
	}
	return entities.MedicationItem{
		Medications: *i.Medications,
		Dosage:      *i.Dosage,
		Frequency:   *i.Frequency,
		Duration:    *i.Duration,
		MapLink:     *i.MapLink,
	}, nil
}

// CriticalWarnings handles POST /critical_warnings.
func (h *AIHandler) CriticalWarnings(w http.ResponseWriter, r *http.Request) {
	items, err := decodeWarningsRequest(w, r)
	if err != nil {
		respondWithDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, h.warnings.Analyze(r.Context(), items))
}

func decodeWarningsRequest(w http.ResponseWriter, r *http.Request) ([]entities.MedicationItem, error) {
	body, err := readJSONBody(w, r)
	if err != nil {
		return nil, errors.New("request body must be valid JSON")
	}

	var req struct {
		PrescriptionInfo *[]warningItem `json:"Prescription_info"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if req.PrescriptionInfo == nil {
		return nil, errors.New("Prescription_info is required")
	}

	items := make([]entities.MedicationItem, 0, len(*req.PrescriptionInfo))
	for i, raw := range *req.PrescriptionInfo {
		item, err := raw.toMedication(i)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

type chatRequest struct {
	Message    string `json:"message"`
	SessionKey string `json:"session_key"`
}

type chatResponse struct {
	Response string `json:"response"`
}

// Chat handles POST /chat.
func (h *AIHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	body, err := readJSONBody(w, r)
	if err == nil {
		err = json.Unmarshal(body, &req)
	}
	if err != nil {
		respondWithDetail(w, http.StatusUnprocessableEntity, "request body must be a JSON object")
		return
	}

	sessionKey := req.SessionKey
	if sessionKey == "" {
		sessionKey = services.DefaultSessionKey
	}
	respondWithJSON(w, http.StatusOK, chatResponse{
		Response: h.assistant.Reply(r.Context(), sessionKey, req.Message),
	})
}
