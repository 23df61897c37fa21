package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"google.golang.org/genai"

	"github.com/medigrid/backend/internal/domain/entities"
	"github.com/medigrid/backend/internal/domain/providers"
	"github.com/medigrid/backend/internal/infrastructure/observability"
	"github.com/medigrid/backend/pkg/config"
	apperrors "github.com/medigrid/backend/pkg/errors"
	"github.com/medigrid/backend/pkg/utils"
)

const (
	providerName = "gemini"
	defaultModel = "gemini-2.5-flash"
)

// generator is the part of the genai Models service the client uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client talks to Google Gemini for prescription extraction, warnings and
// chat. All calls share one circuit breaker so a failing upstream is not
// hammered by every request.
type Client struct {
	models  generator
	model   string
	breaker *gobreaker.CircuitBreaker
	metrics *observability.Metrics
}

// NewClient creates a new Gemini client.
func NewClient(ctx context.Context, cfg *config.GeminiConfig, metrics *observability.Metrics) (*Client, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return newClient(client.Models, cfg.Model, metrics), nil
}

func newClient(models generator, model string, metrics *observability.Metrics) *Client {
	if model == "" {
		model = defaultModel
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        providerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		models:  models,
		model:   model,
		breaker: breaker,
		metrics: metrics,
	}
}

var (
	_ providers.PrescriptionExtractor = (*Client)(nil)
	_ providers.WarningAnalyzer       = (*Client)(nil)
	_ providers.ChatProvider          = (*Client)(nil)
)

// ExtractPrescription sends the image to the vision model and returns its
// raw text answer.
func (c *Client) ExtractPrescription(ctx context.Context, image []byte, mimeType string, location *entities.UserLocation) (string, error) {
	if len(image) == 0 {
		return "", apperrors.NewValidationError("image is required")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(buildExtractionPrompt(location)),
			genai.NewPartFromBytes(image, mimeType),
		}, genai.RoleUser),
	}

	return c.generate(ctx, "extract_prescription", contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.1),
	})
}

// AnalyzeWarnings asks the model for critical warnings about items.
func (c *Client) AnalyzeWarnings(ctx context.Context, items []entities.MedicationItem) ([]entities.CriticalWarning, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(buildWarningsPrompt(items), genai.RoleUser),
	}

	text, err := c.generate(ctx, "critical_warnings", contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(warningsSystemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0.2),
	})
	if err != nil {
		return nil, err
	}

	warnings, err := entities.ParseCriticalWarnings([]byte(utils.ExtractJSONArray(utils.StripCodeFence(text))))
	if err != nil {
		return nil, apperrors.NewExternalError("gemini returned malformed warnings", err)
	}
	return warnings, nil
}

// Chat continues the conversation in history with message.
func (c *Client) Chat(ctx context.Context, history []entities.ChatTurn, message string) (string, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		var role genai.Role = genai.RoleUser
		if turn.Role == entities.ChatRoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}
	contents = append(contents, genai.NewContentFromText(message, genai.RoleUser))

	text, err := c.generate(ctx, "chat", contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(assistantSystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.4),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (c *Client) generate(ctx context.Context, operation string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	ctx, span := observability.StartSpan(ctx, "gemini."+operation)
	defer span.End()

	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.models.GenerateContent(ctx, c.model, contents, cfg)
		if err != nil {
			return nil, err
		}
		text := resp.Text()
		if strings.TrimSpace(text) == "" {
			return nil, errors.New("gemini response missing text")
		}
		return text, nil
	})
	observability.RecordAIRequest(ctx, c.metrics, providerName, operation, time.Since(start), err)
	if err != nil {
		observability.RecordError(span, err)
		return "", classifyError(err)
	}

	return result.(string), nil
}

// classifyError maps upstream failures onto application error types. Quota
// and rate-limit failures are reported distinctly so callers can tell users
// to come back later.
func classifyError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.NewUnavailableError("gemini temporarily disabled after repeated failures", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewExternalError("gemini request cancelled", err)
	}
	if IsQuotaError(err) {
		return apperrors.NewRateLimitedError("gemini quota exceeded",
			fmt.Errorf("%w: %v", providers.ErrAIQuotaExceeded, err))
	}
	return apperrors.NewExternalError("gemini request failed", err)
}

// IsQuotaError reports whether err looks like an exhausted quota or rate limit.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "quota exceeded") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "resource_exhausted")
}
