package entities

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MedicationItem is one medication as extracted from a prescription image.
// The JSON keys follow the frontend contract.
type MedicationItem struct {
	Medications string `json:"medications"`
	Dosage      string `json:"Dosage"`
	Frequency   string `json:"Frequency"`
	Duration    string `json:"Duration"`
	MapLink     string `json:"Map_link"`
}

// UserLocation is the optional browser geolocation sent with an image.
type UserLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city,omitempty"`
}

// ExtractionResult is the structured content of one prescription image.
// On failure PatientInfo and PrescriptionInfo are empty and Error is set.
type ExtractionResult struct {
	PatientInfo      map[string]interface{} `json:"patient_info"`
	PrescriptionInfo []MedicationItem       `json:"Prescription_info"`
	Error            string                 `json:"error,omitempty"`
}

// NewFailedExtraction returns an empty result carrying a user-facing message.
func NewFailedExtraction(message string) *ExtractionResult {
	return &ExtractionResult{
		PatientInfo:      map[string]interface{}{},
		PrescriptionInfo: []MedicationItem{},
		Error:            message,
	}
}

// CriticalWarning is a safety finding about one or more medications.
type CriticalWarning struct {
	Medication string `json:"medication"`
	Severity   string `json:"severity"`
	Type       string `json:"type"`
	Message    string `json:"message"`
}

// ParseCriticalWarnings decodes a JSON array of warnings, dropping entries
// without a message and lowercasing severities.
func ParseCriticalWarnings(data []byte) ([]CriticalWarning, error) {
	var raw []CriticalWarning
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse warnings: %w", err)
	}
	warnings := make([]CriticalWarning, 0, len(raw))
	for _, w := range raw {
		if strings.TrimSpace(w.Message) == "" {
			continue
		}
		w.Severity = strings.ToLower(strings.TrimSpace(w.Severity))
		warnings = append(warnings, w)
	}
	return warnings, nil
}

// ChatTurn is one message of an assistant conversation.
type ChatTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

const (
	// ChatRoleUser marks a turn written by the user.
	ChatRoleUser = "user"

	// ChatRoleModel marks a turn written by the assistant.
	ChatRoleModel = "model"
)

// MedicationItemFromMap reads a loosely typed medication object, defaulting
// absent or null fields to NotProvided.
func MedicationItemFromMap(item map[string]interface{}) MedicationItem {
	return MedicationItem{
		Medications: fieldOrDefault(item, "medications"),
		Dosage:      fieldOrDefault(item, "Dosage"),
		Frequency:   fieldOrDefault(item, "Frequency"),
		Duration:    fieldOrDefault(item, "Duration"),
		MapLink:     fieldOrDefault(item, "Map_link"),
	}
}
