package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medigrid/backend/internal/domain/entities"
	"github.com/medigrid/backend/internal/domain/providers"
	"github.com/medigrid/backend/pkg/config"
	apperrors "github.com/medigrid/backend/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(&config.OpenAIConfig{APIKey: "test-key", RateLimitRPM: -1}, nil)
	require.NoError(t, err)
	client.baseURL = server.URL
	return client
}

func outputText(text string) map[string]interface{} {
	return map[string]interface{}{
		"output": []map[string]interface{}{
			{"content": []map[string]string{{"type": "output_text", "text": text}}},
		},
	}
}

var sampleItems = []entities.MedicationItem{
	{Medications: "Warfarin", Dosage: "5mg", Frequency: "once daily", Duration: "30 days"},
	{Medications: "Aspirin", Dosage: "75mg", Frequency: "once daily", Duration: "30 days"},
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(&config.OpenAIConfig{}, nil)
	assert.Error(t, err)

	_, err = NewClient(nil, nil)
	assert.Error(t, err)
}

func TestAnalyzeWarnings_Success(t *testing.T) {
	var captured map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/responses", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(outputText("```json\n[{\"medication\":\"Warfarin\",\"severity\":\"HIGH\",\"type\":\"interaction\",\"message\":\"Aspirin raises bleeding risk.\"}]\n```"))
	})

	warnings, err := client.AnalyzeWarnings(context.Background(), sampleItems)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, "Warfarin", warnings[0].Medication)
	assert.Equal(t, "high", warnings[0].Severity)

	assert.Equal(t, "gpt-4o-mini", captured["model"])
	input := captured["input"].([]interface{})
	user := input[1].(map[string]interface{})
	assert.Contains(t, user["content"], "2. name: Aspirin; dosage: 75mg")
}

func TestAnalyzeWarnings_EmptyListSkipsRequest(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	warnings, err := client.AnalyzeWarnings(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.False(t, called)
}

func TestAnalyzeWarnings_RateLimited(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.AnalyzeWarnings(context.Background(), sampleItems)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeRateLimited))
	assert.ErrorIs(t, err, providers.ErrAIQuotaExceeded)
}

func TestAnalyzeWarnings_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.AnalyzeWarnings(context.Background(), sampleItems)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
}

func TestAnalyzeWarnings_MissingOutputText(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"output":[]}`))
	})

	_, err := client.AnalyzeWarnings(context.Background(), sampleItems)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
}

func TestTokenBucket_WaitHonoursContext(t *testing.T) {
	bucket := newTokenBucketWithRate(1, 1)
	require.NoError(t, bucket.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bucket.Wait(ctx), context.DeadlineExceeded)
}

func TestNewTokenBucket_NegativeDisables(t *testing.T) {
	assert.Nil(t, newTokenBucket(-1, 0))
	assert.NotNil(t, newTokenBucket(0, 0))
}
