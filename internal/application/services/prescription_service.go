package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medigrid/backend/internal/domain/entities"
	"github.com/medigrid/backend/internal/domain/providers"
	"github.com/medigrid/backend/internal/domain/repositories"
	"github.com/medigrid/backend/internal/infrastructure/observability"
	apperrors "github.com/medigrid/backend/pkg/errors"
)

const (
	historyCacheKey = "prescriptions:history"
	historyCacheTTL = 300
)

// PrescriptionService saves composite payloads and rebuilds the grouped
// history listing.
type PrescriptionService struct {
	repo     repositories.PrescriptionRepository
	cache    providers.CacheProvider
	eventBus providers.EventBus
	metrics  *observability.Metrics
	now      func() time.Time
	newID    func() string

	// historyGen counts invalidations. A listing read before the latest
	// invalidation is never written back to the cache.
	historyMu  sync.Mutex
	historyGen uint64
}

// NewPrescriptionService creates a new prescription service. cache and
// metrics may be nil.
func NewPrescriptionService(repo repositories.PrescriptionRepository, cache providers.CacheProvider, metrics *observability.Metrics) *PrescriptionService {
	return &PrescriptionService{
		repo:    repo,
		cache:   cache,
		metrics: metrics,
		now:     time.Now,
		newID:   newSaveID,
	}
}

func newSaveID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// SetEventBus enables save announcements for live history viewers.
func (s *PrescriptionService) SetEventBus(eventBus providers.EventBus) {
	s.eventBus = eventBus
}

// EnsureSchema prepares the underlying store.
func (s *PrescriptionService) EnsureSchema(ctx context.Context) error {
	return s.repo.EnsureSchema(ctx)
}

// Save writes one row per medication of payload. All rows share one
// timestamp and save id and are committed together. An empty medication
// list succeeds without touching the store.
func (s *PrescriptionService) Save(ctx context.Context, payload *entities.CompositePayload) (*entities.SaveOutcome, error) {
	if payload == nil {
		payload = &entities.CompositePayload{}
	}

	savedAt := s.now()
	saveID := s.newID()
	patientName := payload.PatientName()

	records := make([]entities.PrescriptionRecord, 0, len(payload.Medications))
	for _, item := range payload.Medications {
		records = append(records, entities.NewRecord(patientName, item, savedAt, saveID))
	}

	outcome := &entities.SaveOutcome{
		Status:  entities.SavedSuccessfully,
		SavedAt: savedAt.Format(entities.SavedAtLayout),
		Count:   len(records),
	}
	if len(records) == 0 {
		return outcome, nil
	}

	if err := s.repo.InsertRecords(ctx, records); err != nil {
		observability.LoggerFromContext(ctx).Error().Err(err).
			Str("save_id", saveID).
			Int("rows", len(records)).
			Msg("Failed to save prescription")
		return nil, err
	}

	observability.RecordPrescriptionsSaved(ctx, s.metrics, len(records))
	s.invalidateHistory(ctx)

	outcome.SaveID = saveID
	s.publishSave(ctx, outcome)
	return outcome, nil
}

func (s *PrescriptionService) publishSave(ctx context.Context, outcome *entities.SaveOutcome) {
	if s.eventBus == nil {
		return
	}
	event := &entities.SaveEvent{
		SaveID:  outcome.SaveID,
		SavedAt: outcome.SavedAt,
		Count:   outcome.Count,
	}
	if err := s.eventBus.Publish(ctx, providers.EventChannelPrescriptionSaved, event); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("save_id", outcome.SaveID).Msg("Failed to publish save event")
	}
}

// FetchHistory returns every saved row newest first, with a blank separator
// row between consecutive save events. It never fails: a store error yields
// an empty listing with status unavailable.
func (s *PrescriptionService) FetchHistory(ctx context.Context) *entities.HistoryListing {
	if cached := s.cachedHistory(ctx); cached != nil {
		return cached
	}

	gen := s.historyGeneration()
	records, err := s.repo.ListRecords(ctx)
	if err != nil {
		observability.LoggerFromContext(ctx).Error().Err(err).Msg("Failed to read prescription history")
		reason := "history store unavailable"
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			reason = appErr.Message
		}
		return entities.NewEmptyHistory(entities.HistoryStatusUnavailable, reason)
	}

	listing := BuildHistory(records)
	s.storeHistory(ctx, gen, listing)
	return listing
}

// BuildHistory groups records, already ordered newest first, into a listing.
// A separator row is inserted wherever the group key changes.
func BuildHistory(records []entities.PrescriptionRecord) *entities.HistoryListing {
	if len(records) == 0 {
		return entities.NewEmptyHistory(entities.HistoryStatusEmpty, "")
	}

	listing := entities.NewEmptyHistory(entities.HistoryStatusOK, "")
	listing.Rows = make([]entities.HistoryRow, 0, len(records)+len(records)/2)
	for i, rec := range records {
		if i > 0 && rec.GroupKey() != records[i-1].GroupKey() {
			listing.Rows = append(listing.Rows, entities.HistoryRow{})
		}
		listing.Rows = append(listing.Rows, entities.HistoryRowFromRecord(rec))
	}
	return listing
}

func (s *PrescriptionService) cachedHistory(ctx context.Context) *entities.HistoryListing {
	if s.cache == nil {
		return nil
	}
	data, err := s.cache.Get(ctx, historyCacheKey)
	if err != nil || len(data) == 0 {
		return nil
	}
	var listing entities.HistoryListing
	if err := json.Unmarshal(data, &listing); err != nil {
		return nil
	}
	if listing.Rows == nil {
		listing.Rows = []entities.HistoryRow{}
	}
	return &listing
}

func (s *PrescriptionService) historyGeneration() uint64 {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	return s.historyGen
}

// storeHistory caches listing unless a save invalidated the history after
// gen was taken.
func (s *PrescriptionService) storeHistory(ctx context.Context, gen uint64, listing *entities.HistoryListing) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(listing)
	if err != nil {
		return
	}

	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	if s.historyGen != gen {
		return
	}
	if err := s.cache.Set(ctx, historyCacheKey, data, historyCacheTTL); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Msg("Failed to cache prescription history")
	}
}

func (s *PrescriptionService) invalidateHistory(ctx context.Context) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	s.historyGen++
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, historyCacheKey); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Msg("Failed to invalidate prescription history cache")
	}
}
