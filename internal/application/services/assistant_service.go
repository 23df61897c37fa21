package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/medigrid/backend/internal/domain/entities"
	"github.com/medigrid/backend/internal/domain/providers"
	"github.com/medigrid/backend/internal/infrastructure/observability"
	"github.com/medigrid/backend/pkg/utils"
)

// Assistant replies that are not generated by the model.
const (
	AssistantEmptyMessage   = "Empty message."
	AssistantFailureMessage = "AI service temporarily unavailable."

	// DefaultSessionKey is used when a chat request names no session.
	DefaultSessionKey = "default_user"
)

const (
	chatHistoryTurns  = 20
	chatHistoryTTL    = 24 * 60 * 60
	chatHistoryPrefix = "chat:history:"
)

// AssistantService runs the medical assistant chat with per-session memory.
type AssistantService struct {
	chat  providers.ChatProvider
	cache providers.CacheProvider
}

// NewAssistantService creates a new assistant service. A nil cache disables
// conversation memory.
func NewAssistantService(chat providers.ChatProvider, cache providers.CacheProvider) *AssistantService {
	return &AssistantService{chat: chat, cache: cache}
}

// Reply answers message in the conversation identified by sessionKey.
func (s *AssistantService) Reply(ctx context.Context, sessionKey, message string) string {
	message = strings.TrimSpace(message)
	if message == "" {
		return AssistantEmptyMessage
	}
	if s.chat == nil {
		return AssistantFailureMessage
	}

	logger := observability.LoggerFromContext(ctx)
	key := sessionCacheKey(sessionKey)
	history := s.loadHistory(ctx, key)

	reply, err := s.chat.Chat(ctx, history, message)
	if err != nil {
		logger.Error().Err(err).Str("session", key).Msg("Assistant chat failed")
		return AssistantFailureMessage
	}

	history = append(history,
		entities.ChatTurn{Role: entities.ChatRoleUser, Text: message},
		entities.ChatTurn{Role: entities.ChatRoleModel, Text: reply},
	)
	s.saveHistory(ctx, key, history)
	return reply
}

// Reset forgets the conversation identified by sessionKey.
func (s *AssistantService) Reset(ctx context.Context, sessionKey string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, sessionCacheKey(sessionKey))
}

func sessionCacheKey(sessionKey string) string {
	id := utils.NormalizeIdentifier(sessionKey)
	if id == "" {
		id = DefaultSessionKey
	}
	return chatHistoryPrefix + id
}

func (s *AssistantService) loadHistory(ctx context.Context, key string) []entities.ChatTurn {
	if s.cache == nil {
		return nil
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, providers.ErrCacheMiss) {
			observability.LoggerFromContext(ctx).Warn().Err(err).Msg("Failed to load chat history")
		}
		return nil
	}
	var history []entities.ChatTurn
	if err := json.Unmarshal(data, &history); err != nil {
		return nil
	}
	return history
}

func (s *AssistantService) saveHistory(ctx context.Context, key string, history []entities.ChatTurn) {
	if s.cache == nil {
		return
	}
	if len(history) > chatHistoryTurns {
		history = history[len(history)-chatHistoryTurns:]
	}
	data, err := json.Marshal(history)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, chatHistoryTTL); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Msg("Failed to store chat history")
	}
}
