package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medigrid/backend/internal/api/handlers"
	"github.com/medigrid/backend/internal/domain/entities"
)

type stubExtractionService struct {
	image    []byte
	mimeType string
	location *entities.UserLocation
	result   *entities.ExtractionResult
}

func (s *stubExtractionService) Extract(ctx context.Context, image []byte, mimeType string, location *entities.UserLocation) *entities.ExtractionResult {
	s.image = image
	s.mimeType = mimeType
	s.location = location
	return s.result
}

type stubWarningService struct {
	items []entities.MedicationItem
}

func (s *stubWarningService) Analyze(ctx context.Context, items []entities.MedicationItem) []entities.CriticalWarning {
	s.items = items
	return []entities.CriticalWarning{{Medication: "Warfarin", Severity: "high", Type: "interaction", Message: "Bleeding risk."}}
}

type stubAssistantService struct {
	sessionKey string
	message    string
}

func (s *stubAssistantService) Reply(ctx context.Context, sessionKey, message string) string {
	s.sessionKey = sessionKey
	s.message = message
	return "reply"
}

func newAIHandler() (*handlers.AIHandler, *stubExtractionService, *stubWarningService, *stubAssistantService) {
	extraction := &stubExtractionService{result: &entities.ExtractionResult{
		PatientInfo:      map[string]interface{}{"patient_name": "Jane"},
		PrescriptionInfo: []entities.MedicationItem{{Medications: "Amoxicillin"}},
	}}
	warnings := &stubWarningService{}
	assistant := &stubAssistantService{}
	return handlers.NewAIHandler(extraction, warnings, assistant), extraction, warnings, assistant
}

func multipartRequest(t *testing.T, withImage bool, location string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if withImage {
		part, err := writer.CreateFormFile("image", "rx.png")
		require.NoError(t, err)
		_, err = part.Write([]byte("\x89PNG\r\n\x1a\nfake"))
		require.NoError(t, err)
	}
	if location != "" {
		require.NoError(t, writer.WriteField("user_location", location))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/data_extraction", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestAIHandler_DataExtraction(t *testing.T) {
	handler, extraction, _, _ := newAIHandler()

	w := httptest.NewRecorder()
	handler.DataExtraction(w, multipartRequest(t, true, `{"latitude":1.5,"longitude":2.5}`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", extraction.mimeType)
	require.NotNil(t, extraction.location)
	assert.Equal(t, 1.5, extraction.location.Latitude)

	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.Contains(t, result, "patient_info")
	assert.Contains(t, result, "Prescription_info")
}

func TestAIHandler_DataExtraction_InvalidLocationIgnored(t *testing.T) {
	handler, extraction, _, _ := newAIHandler()

	w := httptest.NewRecorder()
	handler.DataExtraction(w, multipartRequest(t, true, `{broken`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, extraction.location)
	assert.NotEmpty(t, extraction.image)
}

func TestAIHandler_DataExtraction_MissingImage(t *testing.T) {
	handler, extraction, _, _ := newAIHandler()

	w := httptest.NewRecorder()
	handler.DataExtraction(w, multipartRequest(t, false, ""))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Nil(t, extraction.image)
}

func TestAIHandler_CriticalWarnings(t *testing.T) {
	handler, _, warnings, _ := newAIHandler()

	body := `{"Prescription_info":[{"medications":"Warfarin","Dosage":"5mg","Frequency":"od","Duration":"30 days","Map_link":""}]}`
	req := httptest.NewRequest("POST", "/critical_warnings", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler.CriticalWarnings(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, warnings.items, 1)
	assert.Equal(t, "Warfarin", warnings.items[0].Medications)
	assert.Equal(t, "", warnings.items[0].MapLink)

	var out []entities.CriticalWarning
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	assert.Len(t, out, 1)
}

func TestAIHandler_CriticalWarnings_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"Prescription_info":`},
		{"missing list", `{}`},
		{"missing field", `{"Prescription_info":[{"medications":"A","Dosage":"1","Frequency":"od","Duration":"1 day"}]}`},
		{"wrong type", `{"Prescription_info":[{"medications":5,"Dosage":"1","Frequency":"od","Duration":"1 day","Map_link":""}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _, warnings, _ := newAIHandler()

			req := httptest.NewRequest("POST", "/critical_warnings", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler.CriticalWarnings(w, req)

			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
			assert.Nil(t, warnings.items)
		})
	}
}

func TestAIHandler_Chat(t *testing.T) {
	handler, _, _, assistant := newAIHandler()

	req := httptest.NewRequest("POST", "/chat", strings.NewReader(`{"message":"What is amoxicillin?"}`))
	w := httptest.NewRecorder()
	handler.Chat(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"response":"reply"}`, w.Body.String())
	assert.Equal(t, "default_user", assistant.sessionKey)
	assert.Equal(t, "What is amoxicillin?", assistant.message)
}

func TestAIHandler_Chat_SessionKey(t *testing.T) {
	handler, _, _, assistant := newAIHandler()

	req := httptest.NewRequest("POST", "/chat", strings.NewReader(`{"message":"hi","session_key":"tab-42"}`))
	w := httptest.NewRecorder()
	handler.Chat(w, req)

	assert.Equal(t, "tab-42", assistant.sessionKey)
}

func TestAIHandler_Chat_InvalidBody(t *testing.T) {
	handler, _, _, _ := newAIHandler()

	req := httptest.NewRequest("POST", "/chat", strings.NewReader(`not json`))
	w := httptest.NewRecorder()
	handler.Chat(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
