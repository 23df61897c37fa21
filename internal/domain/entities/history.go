package entities

// HistoryStatus tells a caller how to read a HistoryListing.
type HistoryStatus string

const (
	// HistoryStatusOK means the listing holds at least one record.
	HistoryStatusOK HistoryStatus = "ok"

	// HistoryStatusEmpty means the store was read and holds no records.
	HistoryStatusEmpty HistoryStatus = "empty"

	// HistoryStatusUnavailable means the store could not be read.
	HistoryStatusUnavailable HistoryStatus = "unavailable"
)

// HistoryRow is one display row of the history table. A separator row has
// every field blank.
type HistoryRow struct {
	PatientName    string `json:"PATIENT_NAME"`
	MedicationName string `json:"MEDICATION_NAME"`
	Dosage         string `json:"DOSAGE"`
	Frequency      string `json:"FREQUENCY"`
	Duration       string `json:"DURATION"`
	MapLink        string `json:"MAP_LINK"`
	SavedAt        string `json:"Data_Saved"`
}

// IsSeparator reports whether the row is a blank group separator.
func (r HistoryRow) IsSeparator() bool {
	return r == HistoryRow{}
}

// HistoryRowFromRecord drops the storage-only fields of a record.
func HistoryRowFromRecord(rec PrescriptionRecord) HistoryRow {
	return HistoryRow{
		PatientName:    rec.PatientName,
		MedicationName: rec.MedicationName,
		Dosage:         rec.Dosage,
		Frequency:      rec.Frequency,
		Duration:       rec.Duration,
		MapLink:        rec.MapLink,
		SavedAt:        rec.SavedAt,
	}
}

// HistoryListing is the grouped, newest-first history of all saves.
// Rows is never nil.
type HistoryListing struct {
	Status  HistoryStatus `json:"status"`
	Columns []string      `json:"columns"`
	Rows    []HistoryRow  `json:"rows"`
	Reason  string        `json:"reason,omitempty"`
}

// NewEmptyHistory returns a listing with the history columns and no rows.
func NewEmptyHistory(status HistoryStatus, reason string) *HistoryListing {
	return &HistoryListing{
		Status:  status,
		Columns: HistoryColumns(),
		Rows:    []HistoryRow{},
		Reason:  reason,
	}
}
