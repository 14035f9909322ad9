package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-notes/backend/internal/models"
)

const (
	validSummary     = `{"agenda":["Budget"],"decisions":["Ship v2 in May"],"risks":["Vendor delay"]}`
	validActionItems = `[{"text":"Send the budget to finance","owner":"Alice","due_date":"Friday"}]`
)

func sampleTranscriptData() *models.Transcript {
	return &models.Transcript{
		Text:     sampleTranscript,
		Language: "en",
		Duration: 12.5,
		Segments: []models.Segment{
			{Start: 0, End: 6.1, Text: "Alice will send the budget to finance by Friday."},
			{Start: 6.1, End: 12.5, Text: "We agreed to ship version two in May."},
		},
	}
}

// generatorFor answers summarization and extraction prompts independently.
type stageGenerator struct {
	summary *scriptedGenerator
	items   *scriptedGenerator
}

func (g *stageGenerator) Complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	if system == SummaryPrompt {
		return g.summary.Complete(ctx, system, user, jsonMode)
	}
	return g.items.Complete(ctx, system, user, jsonMode)
}

func (g *stageGenerator) callCount() int { return g.summary.callCount() + g.items.callCount() }

type fixture struct {
	store     *memStore
	tr        *stubTranscriber
	gen       *stageGenerator
	publisher *recordingPublisher
	orch      *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		store:     newMemStore(t),
		tr:        &stubTranscriber{transcript: sampleTranscriptData()},
		gen:       &stageGenerator{summary: newGenerator(reply{raw: validSummary}), items: newGenerator(reply{raw: validActionItems})},
		publisher: &recordingPublisher{},
	}
	f.orch = NewOrchestrator(f.store, f.tr, f.gen, Config{}, nil)
	f.orch.SetPublisher(f.publisher)
	return f
}

func TestRunCompletesAllStages(t *testing.T) {
	f := newFixture(t)
	id := f.store.put(models.Meeting{Status: models.MeetingStatusUploaded})

	require.NoError(t, f.orch.Run(context.Background(), id))

	m := f.store.get(id)
	assert.Equal(t, models.MeetingStatusDone, m.Status)
	assert.Equal(t, sampleTranscriptData(), m.Transcript)
	assert.Equal(t, &models.Summary{Agenda: []string{"Budget"}, Decisions: []string{"Ship v2 in May"}, Risks: []string{"Vendor delay"}}, m.Summary)
	assert.Equal(t, []models.ActionItem{{Text: "Send the budget to finance", Owner: "Alice", DueDate: "Friday"}}, m.ActionItems)
	assert.Nil(t, m.FailureReason)

	assert.Equal(t, []string{m.StoragePath}, f.tr.paths)
	assert.Equal(t, sampleTranscript, f.gen.summary.calls[0].user)
	assert.Equal(t, sampleTranscript, f.gen.items.calls[0].user)
	assert.Equal(t, []models.MeetingStatus{
		models.MeetingStatusTranscribed, models.MeetingStatusSummarized, models.MeetingStatusDone,
	}, f.store.statuses)
	assert.Equal(t, f.store.statuses, f.publisher.statuses)
}

func TestRunOnDoneIsNoop(t *testing.T) {
	f := newFixture(t)
	id := f.store.put(models.Meeting{Status: models.MeetingStatusUploaded})
	require.NoError(t, f.orch.Run(context.Background(), id))
	before := f.store.get(id)
	transcribeCalls, genCalls, updates := f.tr.callCount(), f.gen.callCount(), len(f.store.updates)

	require.NoError(t, f.orch.Run(context.Background(), id))
	require.NoError(t, f.orch.Run(context.Background(), id))

	assert.Equal(t, before, f.store.get(id))
	assert.Equal(t, transcribeCalls, f.tr.callCount())
	assert.Equal(t, genCalls, f.gen.callCount())
	assert.Len(t, f.store.updates, updates)
}

func TestRunResumesFromTranscribed(t *testing.T) {
	f := newFixture(t)
	id := f.store.put(models.Meeting{Status: models.MeetingStatusTranscribed, Transcript: sampleTranscriptData()})

	require.NoError(t, f.orch.Run(context.Background(), id))

	m := f.store.get(id)
	assert.Equal(t, models.MeetingStatusDone, m.Status)
	assert.Zero(t, f.tr.callCount(), "transcription must not run again")
	assert.Equal(t, 1, f.gen.summary.callCount())
	assert.Equal(t, 1, f.gen.items.callCount())
	assert.Equal(t, []models.MeetingStatus{models.MeetingStatusSummarized, models.MeetingStatusDone}, f.store.statuses)
}

func TestRunResumesFromSummarized(t *testing.T) {
	f := newFixture(t)
	id := f.store.put(models.Meeting{
		Status:     models.MeetingStatusSummarized,
		Transcript: sampleTranscriptData(),
		Summary:    &models.Summary{Agenda: []string{}, Decisions: []string{}, Risks: []string{}},
	})

	require.NoError(t, f.orch.Run(context.Background(), id))

	assert.Equal(t, models.MeetingStatusDone, f.store.get(id).Status)
	assert.Zero(t, f.tr.callCount())
	assert.Zero(t, f.gen.summary.callCount())
	assert.Equal(t, 1, f.gen.items.callCount())
}

func TestRunUnknownMeeting(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.orch.Run(context.Background(), uuid.New()))
	assert.Zero(t, f.tr.callCount())
	assert.Zero(t, f.gen.callCount())
	assert.Empty(t, f.store.updates)
}

func TestRunTranscriptionFailure(t *testing.T) {
	f := newFixture(t)
	f.tr.err = &CapabilityError{Capability: "whisper", Err: errors.New("quota exceeded")}
	id := f.store.put(models.Meeting{Status: models.MeetingStatusUploaded})

	require.NoError(t, f.orch.Run(context.Background(), id))

	m := f.store.get(id)
	assert.Equal(t, models.MeetingStatusFailed, m.Status)
	require.NotNil(t, m.FailureReason)
	assert.Contains(t, *m.FailureReason, "quota exceeded")
	assert.Nil(t, m.Transcript)
	assert.Nil(t, m.Summary)
	assert.Nil(t, m.ActionItems)
	assert.Zero(t, f.gen.callCount())
	assert.Equal(t, []models.MeetingStatus{models.MeetingStatusFailed}, f.publisher.statuses)
}

func TestRunExtractionExhausted(t *testing.T) {
	f := newFixture(t)
	f.gen.items = newGenerator(reply{raw: "I could not find any"})
	id := f.store.put(models.Meeting{Status: models.MeetingStatusUploaded})

	require.NoError(t, f.orch.Run(context.Background(), id))

	m := f.store.get(id)
	assert.Equal(t, models.MeetingStatusFailed, m.Status)
	require.NotNil(t, m.FailureReason)
	assert.Contains(t, *m.FailureReason, "action item extraction failed")
	assert.Contains(t, *m.FailureReason, "after 3 attempts")
	assert.NotNil(t, m.Transcript, "earlier stages stay committed")
	assert.NotNil(t, m.Summary)
	assert.Nil(t, m.ActionItems)
	assert.Equal(t, DefaultExtractAttempts, f.gen.items.callCount())

	require.NoError(t, f.orch.Run(context.Background(), id), "failed meetings are not retried")
	assert.Equal(t, DefaultExtractAttempts, f.gen.items.callCount())
}

func TestRunSummaryFailureKeepsLaterFieldsNull(t *testing.T) {
	f := newFixture(t)
	f.gen.summary = newGenerator(reply{err: errors.New("503 service unavailable")})
	id := f.store.put(models.Meeting{Status: models.MeetingStatusUploaded})

	require.NoError(t, f.orch.Run(context.Background(), id))

	m := f.store.get(id)
	assert.Equal(t, models.MeetingStatusFailed, m.Status)
	assert.Contains(t, *m.FailureReason, "503 service unavailable")
	assert.NotNil(t, m.Transcript)
	assert.Nil(t, m.Summary)
	assert.Nil(t, m.ActionItems)
	assert.Zero(t, f.gen.items.callCount())
}

func TestRunEmptyExtraction(t *testing.T) {
	f := newFixture(t)
	f.gen.items = newGenerator(reply{raw: "[]"})
	id := f.store.put(models.Meeting{Status: models.MeetingStatusUploaded})

	require.NoError(t, f.orch.Run(context.Background(), id))

	m := f.store.get(id)
	assert.Equal(t, models.MeetingStatusDone, m.Status)
	require.NotNil(t, m.ActionItems)
	assert.Empty(t, m.ActionItems)
}

func TestRunCancelledLeavesMeetingResumable(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.tr.err = context.Canceled
	cancel()
	id := f.store.put(models.Meeting{Status: models.MeetingStatusUploaded})

	err := f.orch.Run(ctx, id)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.MeetingStatusUploaded, f.store.get(id).Status)
	assert.Empty(t, f.store.updates)
}

// staleStore simulates a concurrent run that already advanced the meeting after our read.
type staleStore struct {
	*memStore
	once bool
}

func (s *staleStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error) {
	m, err := s.memStore.GetByID(ctx, id)
	if err != nil || m == nil || s.once {
		return m, err
	}
	s.once = true
	stale := *m
	stale.Status = models.MeetingStatusUploaded
	stale.Transcript = nil
	stale.Summary = nil
	stale.ActionItems = nil
	return &stale, nil
}

func TestRunDoesNotOverwriteNewerState(t *testing.T) {
	mem := newMemStore(t)
	id := mem.put(models.Meeting{
		Status:      models.MeetingStatusDone,
		Transcript:  sampleTranscriptData(),
		Summary:     &models.Summary{Agenda: []string{"a"}, Decisions: []string{}, Risks: []string{}},
		ActionItems: []models.ActionItem{},
	})
	before := mem.get(id)
	tr := &stubTranscriber{transcript: &models.Transcript{Text: "different"}}
	gen := newGenerator(reply{raw: "[]"})
	orch := NewOrchestrator(&staleStore{memStore: mem}, tr, gen, Config{}, nil)

	require.NoError(t, orch.Run(context.Background(), id))

	assert.Equal(t, before, mem.get(id))
	assert.Empty(t, mem.updates)
	assert.Zero(t, gen.callCount())
}

func TestRunStoreErrorIsReturned(t *testing.T) {
	orch := NewOrchestrator(brokenStore{}, &stubTranscriber{}, newGenerator(reply{raw: "[]"}), Config{}, nil)
	err := orch.Run(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

type brokenStore struct{}

func (brokenStore) GetByID(context.Context, uuid.UUID) (*models.Meeting, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func (brokenStore) Update(context.Context, uuid.UUID, models.MeetingUpdate) error {
	return errors.New("dial tcp: connection refused")
}
