package handlers

import (
	"encoding/json"
	"net/http"
)

// maxJSONBody caps request bodies decoded by the JSON endpoints.
const maxJSONBody = 1 << 20

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// respondWithDetail writes the {"detail": ...} error body the legacy
// frontend expects.
func respondWithDetail(w http.ResponseWriter, statusCode int, detail string) {
	respondWithJSON(w, statusCode, map[string]string{
		"detail": detail,
	})
}

func readJSONBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}
