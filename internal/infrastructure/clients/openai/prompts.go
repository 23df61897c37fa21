package openai

import (
	"fmt"
	"strings"

	"github.com/medigrid/backend/internal/domain/entities"
)

const warningsSystemPrompt = `You are a clinical pharmacist reviewing a handwritten prescription that was transcribed by OCR. Return ONLY a JSON array (possibly empty) with this schema:
[
  {
    "medication": string (the medicine the warning is about),
    "severity": "high" | "medium" | "low",
    "type": "interaction" | "dosage" | "duplicate" | "contraindication" | "other",
    "message": string (1-2 short sentences, plain language)
  }
]
Only report well-documented concerns. Do not include general advice or disclaimers.`

func buildWarningsUserPrompt(items []entities.MedicationItem) string {
	var b strings.Builder
	b.WriteString("Medications:\n")
	for i, item := range items {
		fmt.Fprintf(&b, "%d. name: %s; dosage: %s; frequency: %s; duration: %s\n",
			i+1, item.Medications, item.Dosage, item.Frequency, item.Duration)
	}
	return b.String()
}
