package gemini

import (
	"fmt"
	"strings"

	"github.com/medigrid/backend/internal/domain/entities"
)

const extractionPrompt = `You read photographs of handwritten medical prescriptions. Return ONLY valid JSON with this schema:
{
  "patient_info": {
    "patient_name": string,
    "age": string,
    "gender": string,
    "doctor_name": string,
    "date": string
  },
  "Prescription_info": [
    {
      "medications": string (drug name as written, corrected to the nearest real medicine),
      "Dosage": string (strength and amount, e.g. "500mg, 1 tablet"),
      "Frequency": string (e.g. "twice daily"),
      "Duration": string (e.g. "5 days"),
      "Map_link": string (Google Maps search URL for pharmacies stocking this medicine)
    }
  ]
}
Use "Not provided" for anything you cannot read. Do not add medical advice.`

const warningsSystemPrompt = `You are a clinical pharmacist reviewing a prescription for safety. Return ONLY a JSON array (possibly empty) of objects:
{"medication": string, "severity": "high"|"medium"|"low", "type": "interaction"|"dosage"|"duplicate"|"contraindication"|"other", "message": string}
Report only real, well-documented concerns such as drug-drug interactions, doses above the usual maximum, or duplicate therapy. Keep each message to one or two plain sentences.`

const assistantSystemPrompt = `You are MediGrid's medical assistant. Answer questions about medicines, dosing schedules and prescriptions in simple language. You are not a doctor: for diagnoses, emergencies or changes to treatment, tell the user to contact a healthcare professional. Keep answers short.`

func buildExtractionPrompt(location *entities.UserLocation) string {
	if location == nil {
		return extractionPrompt
	}
	where := fmt.Sprintf("%.5f,%.5f", location.Latitude, location.Longitude)
	if location.City != "" {
		where = location.City + " (" + where + ")"
	}
	return extractionPrompt + "\nThe patient is located at " + where + "; build Map_link searches near this location."
}

func buildWarningsPrompt(items []entities.MedicationItem) string {
	var b strings.Builder
	b.WriteString("Prescription:\n")
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s | dosage: %s | frequency: %s | duration: %s\n",
			i+1, item.Medications, item.Dosage, item.Frequency, item.Duration)
	}
	return b.String()
}
