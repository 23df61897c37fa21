package entities

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	// UnknownPatient is stored when the payload names no patient.
	UnknownPatient = "Unknown_Patient"

	// NotProvided is stored for every medication field missing from an item.
	NotProvided = "Not provided"

	// SavedSuccessfully is the status reported for a completed save.
	SavedSuccessfully = "Saved_Successfully"

	// SavedAtLayout is the text layout of the Data_Saved column.
	SavedAtLayout = "2006-01-02 15:04:05"
)

// Column names of the Prescription table, in display order.
const (
	ColumnPatientName    = "PATIENT_NAME"
	ColumnMedicationName = "MEDICATION_NAME"
	ColumnDosage         = "DOSAGE"
	ColumnFrequency      = "FREQUENCY"
	ColumnDuration       = "DURATION"
	ColumnMapLink        = "MAP_LINK"
	ColumnSavedAt        = "Data_Saved"
	ColumnSaveID         = "SAVE_ID"
)

// HistoryColumns returns the seven columns of a history listing.
func HistoryColumns() []string {
	return []string{
		ColumnPatientName,
		ColumnMedicationName,
		ColumnDosage,
		ColumnFrequency,
		ColumnDuration,
		ColumnMapLink,
		ColumnSavedAt,
	}
}

// PrescriptionRecord is one persisted medication line of a save event.
type PrescriptionRecord struct {
	PatientName    string `json:"patient_name" db:"PATIENT_NAME"`
	MedicationName string `json:"medication_name" db:"MEDICATION_NAME"`
	Dosage         string `json:"dosage" db:"DOSAGE"`
	Frequency      string `json:"frequency" db:"FREQUENCY"`
	Duration       string `json:"duration" db:"DURATION"`
	MapLink        string `json:"map_link" db:"MAP_LINK"`
	SavedAt        string `json:"saved_at" db:"Data_Saved"`
	SaveID         string `json:"save_id" db:"SAVE_ID"`
}

// GroupKey identifies the save event a record belongs to. Rows written
// before save ids existed fall back to their timestamp.
func (r PrescriptionRecord) GroupKey() string {
	if r.SaveID != "" {
		return r.SaveID
	}
	return r.SavedAt
}

// CompositePayload is the patient-info block plus medication list submitted
// for one save. Both parts are loose mappings as produced by extraction and
// edited by the frontend.
type CompositePayload struct {
	PatientInfo map[string]interface{}
	Medications []map[string]interface{}
}

// ParseCompositePayload reads a composite payload from raw JSON. The
// medication list may be keyed Prescription_info or prescription_info; the
// first non-empty one wins. Entries that are not objects are skipped.
func ParseCompositePayload(data []byte) (*CompositePayload, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("payload must be a JSON object")
	}

	payload := &CompositePayload{}
	if info := root.Get("patient_info"); info.IsObject() {
		payload.PatientInfo, _ = info.Value().(map[string]interface{})
	}

	for _, key := range []string{"Prescription_info", "prescription_info"} {
		list := root.Get(key)
		if !list.IsArray() || len(list.Array()) == 0 {
			continue
		}
		for _, item := range list.Array() {
			if m, ok := item.Value().(map[string]interface{}); ok {
				payload.Medications = append(payload.Medications, m)
			}
		}
		break
	}

	return payload, nil
}

// PatientName resolves the name stored for this payload: patient_name, then
// Name, then UnknownPatient. Blank values (null, "", 0, false, [] and {})
// fall through. true is stored as "True".
func (p *CompositePayload) PatientName() string {
	for _, key := range []string{"patient_name", "Name"} {
		value := p.PatientInfo[key]
		if isBlank(value) {
			continue
		}
		if b, ok := value.(bool); ok && b {
			return "True"
		}
		return textValue(value)
	}
	return UnknownPatient
}

func isBlank(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case bool:
		return !val
	case float64:
		return val == 0
	case []interface{}:
		return len(val) == 0
	case map[string]interface{}:
		return len(val) == 0
	default:
		return false
	}
}

// NewRecord builds the row for one medication item of a save event.
func NewRecord(patientName string, item map[string]interface{}, savedAt time.Time, saveID string) PrescriptionRecord {
	return PrescriptionRecord{
		PatientName:    patientName,
		MedicationName: fieldOrDefault(item, "medications"),
		Dosage:         fieldOrDefault(item, "Dosage"),
		Frequency:      fieldOrDefault(item, "Frequency"),
		Duration:       fieldOrDefault(item, "Duration"),
		MapLink:        fieldOrDefault(item, "Map_link"),
		SavedAt:        savedAt.Format(SavedAtLayout),
		SaveID:         saveID,
	}
}

func fieldOrDefault(item map[string]interface{}, key string) string {
	value, ok := item[key]
	if !ok || value == nil {
		return NotProvided
	}
	return textValue(value)
}

// textValue coerces a decoded JSON value to text. Whole numbers print
// without a decimal point.
func textValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%v", val)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

// SaveOutcome reports a completed save.
type SaveOutcome struct {
	Status  string `json:"status"`
	SaveID  string `json:"save_id,omitempty"`
	SavedAt string `json:"saved_at"`
	Count   int    `json:"count"`
}

// SaveEvent announces a committed save to live history viewers. It carries
// no patient data.
type SaveEvent struct {
	SaveID  string `json:"save_id"`
	SavedAt string `json:"saved_at"`
	Count   int    `json:"count"`
}
