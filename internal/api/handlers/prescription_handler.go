package handlers

import (
	"context"
	"net/http"

	"github.com/medigrid/backend/internal/domain/entities"
	"github.com/medigrid/backend/internal/infrastructure/observability"
)

// HistoryStatusHeader reports the status of the listing behind a legacy
// history response.
const HistoryStatusHeader = "X-History-Status"

const saveFailedDetail = "Database save failed."

// PrescriptionService defines the prescription operations used by the handler.
type PrescriptionService interface {
	Save(ctx context.Context, payload *entities.CompositePayload) (*entities.SaveOutcome, error)
	FetchHistory(ctx context.Context) *entities.HistoryListing
}

// PrescriptionHandler handles saving and listing prescriptions.
type PrescriptionHandler struct {
	service PrescriptionService
}

// NewPrescriptionHandler creates a new prescription handler.
func NewPrescriptionHandler(service PrescriptionService) *PrescriptionHandler {
	return &PrescriptionHandler{service: service}
}

// PostIntoDB handles POST /post_into_db. The response body is the bare
// status string.
func (h *PrescriptionHandler) PostIntoDB(w http.ResponseWriter, r *http.Request) {
	outcome, ok := h.save(w, r)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, outcome.Status)
}

// CreatePrescription handles POST /api/prescriptions.
func (h *PrescriptionHandler) CreatePrescription(w http.ResponseWriter, r *http.Request) {
	outcome, ok := h.save(w, r)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusCreated, outcome)
}

func (h *PrescriptionHandler) save(w http.ResponseWriter, r *http.Request) (*entities.SaveOutcome, bool) {
	logger := observability.LoggerFromContext(r.Context())

	body, err := readJSONBody(w, r)
	if err != nil {
		respondWithDetail(w, http.StatusUnprocessableEntity, "request body must be a JSON object")
		return nil, false
	}
	payload, err := entities.ParseCompositePayload(body)
	if err != nil {
		respondWithDetail(w, http.StatusUnprocessableEntity, err.Error())
		return nil, false
	}

	outcome, err := h.service.Save(r.Context(), payload)
	if err != nil {
		respondWithDetail(w, http.StatusInternalServerError, saveFailedDetail)
		return nil, false
	}

	logger.Info().Int("rows", outcome.Count).Str("save_id", outcome.SaveID).Msg("Prescription saved")
	return outcome, true
}

// GetSavedData handles GET /get_Saved_data. It always answers 200 with the
// row array; the listing status travels in a header.
func (h *PrescriptionHandler) GetSavedData(w http.ResponseWriter, r *http.Request) {
	listing := h.service.FetchHistory(r.Context())
	w.Header().Set(HistoryStatusHeader, string(listing.Status))
	respondWithJSON(w, http.StatusOK, listing.Rows)
}

// GetHistory handles GET /api/prescriptions/history.
func (h *PrescriptionHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	listing := h.service.FetchHistory(r.Context())
	status := http.StatusOK
	if listing.Status == entities.HistoryStatusUnavailable {
		status = http.StatusServiceUnavailable
	}
	respondWithJSON(w, status, listing)
}
