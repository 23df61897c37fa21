package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medigrid/backend/internal/adapters/cache"
	"github.com/medigrid/backend/internal/adapters/events"
	"github.com/medigrid/backend/internal/domain/entities"
	"github.com/medigrid/backend/internal/domain/providers"
	apperrors "github.com/medigrid/backend/pkg/errors"
)

// memoryRepo keeps records in insertion order and lists them like the SQL
// store: Data_Saved DESC, SAVE_ID DESC.
type memoryRepo struct {
	mu        sync.Mutex
	records   []entities.PrescriptionRecord
	insertErr error
	listErr   error
	inserts   int
	lists     int

	// listRead and listRelease, when set, hold ListRecords after it has
	// taken its snapshot.
	listRead    chan struct{}
	listRelease chan struct{}
}

func (m *memoryRepo) EnsureSchema(ctx context.Context) error { return nil }

func (m *memoryRepo) InsertRecords(ctx context.Context, records []entities.PrescriptionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if m.insertErr != nil {
		return m.insertErr
	}
	m.records = append(m.records, records...)
	return nil
}

func (m *memoryRepo) ListRecords(ctx context.Context) ([]entities.PrescriptionRecord, error) {
	m.mu.Lock()
	m.lists++
	if m.listErr != nil {
		m.mu.Unlock()
		return nil, m.listErr
	}
	out := append([]entities.PrescriptionRecord{}, m.records...)
	read, release := m.listRead, m.listRelease
	m.listRead, m.listRelease = nil, nil
	m.mu.Unlock()

	if read != nil {
		close(read)
		<-release
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SavedAt != out[j].SavedAt {
			return out[i].SavedAt > out[j].SavedAt
		}
		return out[i].SaveID > out[j].SaveID
	})
	return out, nil
}

func newTestService(repo *memoryRepo, start time.Time) *PrescriptionService {
	svc := NewPrescriptionService(repo, nil, nil)
	clock := start
	svc.now = func() time.Time {
		t := clock
		clock = clock.Add(time.Minute)
		return t
	}
	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("save-%03d", seq)
	}
	return svc
}

func payloadWith(name string, items ...map[string]interface{}) *entities.CompositePayload {
	return &entities.CompositePayload{
		PatientInfo: map[string]interface{}{"patient_name": name},
		Medications: items,
	}
}

func med(name string) map[string]interface{} {
	return map[string]interface{}{
		"medications": name,
		"Dosage":      "1 tab",
		"Frequency":   "twice daily",
		"Duration":    "5 days",
		"Map_link":    "https://maps.example/" + name,
	}
}

var start = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func TestSave_WritesOneRowPerItemWithSharedTimestamp(t *testing.T) {
	repo := &memoryRepo{}
	svc := newTestService(repo, start)

	outcome, err := svc.Save(context.Background(), payloadWith("A", med("x"), med("y"), med("z")))
	require.NoError(t, err)

	assert.Equal(t, entities.SavedSuccessfully, outcome.Status)
	assert.Equal(t, 3, outcome.Count)
	assert.Equal(t, "save-001", outcome.SaveID)
	assert.Equal(t, "2026-05-01 09:00:00", outcome.SavedAt)

	require.Len(t, repo.records, 3)
	for _, rec := range repo.records {
		assert.Equal(t, "A", rec.PatientName)
		assert.Equal(t, outcome.SavedAt, rec.SavedAt)
		assert.Equal(t, outcome.SaveID, rec.SaveID)
	}
	assert.Equal(t, 1, repo.inserts)

	listing := svc.FetchHistory(context.Background())
	assert.Equal(t, entities.HistoryStatusOK, listing.Status)
	assert.Len(t, listing.Rows, 3)
}

func TestSave_EmptyListSucceedsWithoutInsert(t *testing.T) {
	repo := &memoryRepo{}
	svc := newTestService(repo, start)

	outcome, err := svc.Save(context.Background(), payloadWith("A"))
	require.NoError(t, err)
	assert.Equal(t, entities.SavedSuccessfully, outcome.Status)
	assert.Zero(t, outcome.Count)
	assert.Empty(t, outcome.SaveID)
	assert.Zero(t, repo.inserts)

	outcome, err = svc.Save(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, entities.SavedSuccessfully, outcome.Status)
}

func TestSave_PatientNameResolution(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"patient_name", `{"patient_info":{"patient_name":"A"},"Prescription_info":[{}]}`, "A"},
		{"Name fallback", `{"patient_info":{"Name":"B"},"Prescription_info":[{}]}`, "B"},
		{"no patient_info", `{"Prescription_info":[{}]}`, entities.UnknownPatient},
		{"empty patient_info", `{"patient_info":{},"prescription_info":[{}]}`, entities.UnknownPatient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &memoryRepo{}
			svc := newTestService(repo, start)

			payload, err := entities.ParseCompositePayload([]byte(tt.body))
			require.NoError(t, err)
			_, err = svc.Save(context.Background(), payload)
			require.NoError(t, err)

			require.Len(t, repo.records, 1)
			assert.Equal(t, tt.want, repo.records[0].PatientName)
		})
	}
}

func TestSave_EmptyItemDefaultsEveryField(t *testing.T) {
	repo := &memoryRepo{}
	svc := newTestService(repo, start)

	_, err := svc.Save(context.Background(), payloadWith("A", map[string]interface{}{}))
	require.NoError(t, err)

	rec := repo.records[0]
	for _, v := range []string{rec.MedicationName, rec.Dosage, rec.Frequency, rec.Duration, rec.MapLink} {
		assert.Equal(t, entities.NotProvided, v)
	}
}

func TestSave_InsertFailureIsReturned(t *testing.T) {
	repo := &memoryRepo{insertErr: apperrors.NewInternalError("insert failed", errors.New("disk full"))}
	svc := newTestService(repo, start)

	outcome, err := svc.Save(context.Background(), payloadWith("A", med("x")))
	assert.Nil(t, outcome)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInternal))
	assert.Empty(t, repo.records)
}

func TestFetchHistory_EmptyStore(t *testing.T) {
	svc := newTestService(&memoryRepo{}, start)

	listing := svc.FetchHistory(context.Background())

	assert.Equal(t, entities.HistoryStatusEmpty, listing.Status)
	assert.Equal(t, entities.HistoryColumns(), listing.Columns)
	assert.NotNil(t, listing.Rows)
	assert.Empty(t, listing.Rows)
}

func TestFetchHistory_GroupsNewestFirstWithSeparators(t *testing.T) {
	repo := &memoryRepo{}
	svc := newTestService(repo, start)

	_, err := svc.Save(context.Background(), payloadWith("First", med("a1"), med("a2")))
	require.NoError(t, err)
	_, err = svc.Save(context.Background(), payloadWith("Second", med("b1"), med("b2")))
	require.NoError(t, err)

	rows := svc.FetchHistory(context.Background()).Rows
	require.Len(t, rows, 5)

	assert.Equal(t, "Second", rows[0].PatientName)
	assert.Equal(t, "Second", rows[1].PatientName)
	assert.True(t, rows[2].IsSeparator())
	assert.Equal(t, "First", rows[3].PatientName)
	assert.Equal(t, "First", rows[4].PatientName)
	assert.False(t, rows[0].IsSeparator())
	assert.False(t, rows[4].IsSeparator())
}

func TestFetchHistory_SeparatesSavesWithinOneSecond(t *testing.T) {
	repo := &memoryRepo{}
	svc := newTestService(repo, start)
	svc.now = func() time.Time { return start }

	_, err := svc.Save(context.Background(), payloadWith("First", med("a1")))
	require.NoError(t, err)
	_, err = svc.Save(context.Background(), payloadWith("Second", med("b1")))
	require.NoError(t, err)

	rows := svc.FetchHistory(context.Background()).Rows
	require.Len(t, rows, 3)
	assert.Equal(t, "Second", rows[0].PatientName)
	assert.True(t, rows[1].IsSeparator())
	assert.Equal(t, "First", rows[2].PatientName)
}

func TestFetchHistory_IsIdempotent(t *testing.T) {
	repo := &memoryRepo{}
	svc := newTestService(repo, start)

	for i := 0; i < 3; i++ {
		_, err := svc.Save(context.Background(), payloadWith(fmt.Sprintf("P%d", i), med("x"), med("y")))
		require.NoError(t, err)
	}

	first := svc.FetchHistory(context.Background())
	second := svc.FetchHistory(context.Background())
	assert.Equal(t, first, second)
}

func TestFetchHistory_ReadFailureIsUnavailable(t *testing.T) {
	repo := &memoryRepo{listErr: apperrors.NewInternalError("failed to list prescriptions", errors.New("db locked"))}
	svc := newTestService(repo, start)

	listing := svc.FetchHistory(context.Background())

	assert.Equal(t, entities.HistoryStatusUnavailable, listing.Status)
	assert.Equal(t, "failed to list prescriptions", listing.Reason)
	assert.Equal(t, entities.HistoryColumns(), listing.Columns)
	assert.NotNil(t, listing.Rows)
	assert.Empty(t, listing.Rows)
}

func TestFetchHistory_CachesUntilNextSave(t *testing.T) {
	repo := &memoryRepo{}
	svc := newTestService(repo, start)
	svc.cache = cache.NewMemoryAdapter(16)

	_, err := svc.Save(context.Background(), payloadWith("A", med("x")))
	require.NoError(t, err)

	first := svc.FetchHistory(context.Background())
	second := svc.FetchHistory(context.Background())
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.lists)

	_, err = svc.Save(context.Background(), payloadWith("B", med("y")))
	require.NoError(t, err)

	third := svc.FetchHistory(context.Background())
	assert.Equal(t, 2, repo.lists)
	assert.Len(t, third.Rows, 3)
}

func TestFetchHistory_UnavailableIsNotCached(t *testing.T) {
	repo := &memoryRepo{listErr: errors.New("db locked")}
	svc := newTestService(repo, start)
	svc.cache = cache.NewMemoryAdapter(16)

	assert.Equal(t, entities.HistoryStatusUnavailable, svc.FetchHistory(context.Background()).Status)

	repo.listErr = nil
	assert.Equal(t, entities.HistoryStatusEmpty, svc.FetchHistory(context.Background()).Status)
}

func TestBuildHistory_LegacyRowsGroupByTimestamp(t *testing.T) {
	listing := BuildHistory([]entities.PrescriptionRecord{
		{PatientName: "B", SavedAt: "2026-01-02 00:00:00"},
		{PatientName: "B", SavedAt: "2026-01-02 00:00:00"},
		{PatientName: "A", SavedAt: "2026-01-01 00:00:00"},
	})

	require.Len(t, listing.Rows, 4)
	assert.True(t, listing.Rows[2].IsSeparator())
}

func TestSave_PublishesSaveEvent(t *testing.T) {
	repo := &memoryRepo{}
	svc := newTestService(repo, start)
	bus := events.NewMemoryEventBus()
	svc.SetEventBus(bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := bus.Subscribe(ctx, providers.EventChannelPrescriptionSaved)
	require.NoError(t, err)

	_, err = svc.Save(context.Background(), payloadWith("A"))
	require.NoError(t, err)
	_, err = svc.Save(context.Background(), payloadWith("A", med("x"), med("y")))
	require.NoError(t, err)

	require.Len(t, ch, 1)
	event := <-ch
	assert.Equal(t, "save-002", event.SaveID)
	assert.Equal(t, 2, event.Count)
}

func TestFetchHistory_ReadRacingSaveIsNotCached(t *testing.T) {
	repo := &memoryRepo{
		listRead:    make(chan struct{}),
		listRelease: make(chan struct{}),
	}
	svc := newTestService(repo, start)
	svc.cache = cache.NewMemoryAdapter(16)
	read, release := repo.listRead, repo.listRelease

	done := make(chan *entities.HistoryListing)
	go func() { done <- svc.FetchHistory(context.Background()) }()

	<-read
	_, err := svc.Save(context.Background(), payloadWith("A", med("x")))
	require.NoError(t, err)
	close(release)

	stale := <-done
	assert.Equal(t, entities.HistoryStatusEmpty, stale.Status)

	listing := svc.FetchHistory(context.Background())
	assert.Equal(t, entities.HistoryStatusOK, listing.Status)
	assert.Len(t, listing.Rows, 1)
}
