package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-notes/backend/internal/models"
)

// Default attempt bounds for the repair loop.
const (
	DefaultSummaryAttempts = 3
	DefaultExtractAttempts = 3
)

// Store is the durable record store the orchestrator reads and advances.
// GetByID returns (nil, nil) when the meeting does not exist. Update is a silent no-op when the
// meeting does not exist or its status no longer equals upd.FromStatus.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error)
	Update(ctx context.Context, id uuid.UUID, upd models.MeetingUpdate) error
}

// Transcriber is the remote transcription capability.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*models.Transcript, error)
}

// StatusPublisher is notified after every committed status change. Optional.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, m *models.Meeting)
}

// Config bounds the repair loop per stage.
type Config struct {
	SummaryAttempts int
	ExtractAttempts int
}

// Orchestrator advances a meeting through transcription, summarization and action-item
// extraction, persisting each stage's output together with its status.
type Orchestrator struct {
	store       Store
	transcriber Transcriber
	extractor   *Extractor
	publisher   StatusPublisher
	cfg         Config
	logger      *zap.Logger
}

// NewOrchestrator wires the pipeline over its collaborators.
func NewOrchestrator(store Store, transcriber Transcriber, gen Generator, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SummaryAttempts <= 0 {
		cfg.SummaryAttempts = DefaultSummaryAttempts
	}
	if cfg.ExtractAttempts <= 0 {
		cfg.ExtractAttempts = DefaultExtractAttempts
	}
	return &Orchestrator{
		store:       store,
		transcriber: transcriber,
		extractor:   NewExtractor(gen, logger),
		cfg:         cfg,
		logger:      logger,
	}
}

// SetPublisher sets the optional status publisher.
func (o *Orchestrator) SetPublisher(p StatusPublisher) { o.publisher = p }

type stage struct {
	name string
	next models.MeetingStatus
	exec func(ctx context.Context, m *models.Meeting) (models.MeetingUpdate, error)
}

func (o *Orchestrator) stageFor(status models.MeetingStatus) (stage, bool) {
	switch status {
	case models.MeetingStatusUploaded:
		return stage{name: "transcription", next: models.MeetingStatusTranscribed, exec: o.transcribe}, true
	case models.MeetingStatusTranscribed:
		return stage{name: "summarization", next: models.MeetingStatusSummarized, exec: o.summarize}, true
	case models.MeetingStatusSummarized:
		return stage{name: "action item extraction", next: models.MeetingStatusDone, exec: o.extractActionItems}, true
	}
	return stage{}, false
}

// Run executes every stage still pending for the meeting, in order. It is safe to call again
// on a partially processed meeting: completed stages are skipped. An unknown id is a no-op.
//
// Stage failures are recorded on the meeting as status failed and are not returned. Run only
// returns an error when the record store fails or ctx is cancelled; in both cases the meeting
// keeps its last committed status and can be resumed.
func (o *Orchestrator) Run(ctx context.Context, id uuid.UUID) error {
	log := o.logger.With(zap.String("meeting_id", id.String()))

	m, err := o.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load meeting: %w", err)
	}
	if m == nil {
		log.Debug("meeting not found, nothing to run")
		return nil
	}

	for {
		st, ok := o.stageFor(m.Status)
		if !ok {
			log.Debug("meeting is terminal", zap.String("status", string(m.Status)))
			return nil
		}
		from := m.Status
		started := time.Now()
		log.Info("stage started", zap.String("stage", st.name))

		upd, err := st.exec(ctx, m)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				log.Warn("run cancelled, leaving meeting resumable", zap.String("stage", st.name), zap.Error(err))
				return ctx.Err()
			}
			return o.fail(ctx, log, m, st, err)
		}

		upd.FromStatus = from
		upd.Status = models.StatusPtr(st.next)
		if err := o.store.Update(ctx, id, upd); err != nil {
			return fmt.Errorf("commit %s: %w", st.name, err)
		}

		// The store is the source of truth; never carry m across a stage.
		m, err = o.store.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("reload meeting: %w", err)
		}
		if m == nil {
			log.Warn("meeting disappeared during run")
			return nil
		}
		if m.Status == from {
			log.Warn("stage result was not applied, stopping", zap.String("stage", st.name))
			return nil
		}
		o.publish(ctx, m)
		log.Info("stage completed",
			zap.String("stage", st.name),
			zap.String("status", string(m.Status)),
			zap.Duration("duration", time.Since(started)))
	}
}

func (o *Orchestrator) transcribe(ctx context.Context, m *models.Meeting) (models.MeetingUpdate, error) {
	t, err := o.transcriber.Transcribe(ctx, m.StoragePath)
	if err != nil {
		return models.MeetingUpdate{}, capabilityErr("transcribe audio", err)
	}
	if t == nil {
		return models.MeetingUpdate{}, &CapabilityError{Capability: "transcribe audio", Err: errors.New("empty transcript")}
	}
	if t.Segments == nil {
		t.Segments = []models.Segment{}
	}
	return models.MeetingUpdate{Transcript: t}, nil
}

func (o *Orchestrator) summarize(ctx context.Context, m *models.Meeting) (models.MeetingUpdate, error) {
	text, err := transcriptText(m)
	if err != nil {
		return models.MeetingUpdate{}, err
	}
	s, err := o.extractor.Summary(ctx, text, o.cfg.SummaryAttempts)
	if err != nil {
		return models.MeetingUpdate{}, err
	}
	return models.MeetingUpdate{Summary: s}, nil
}

func (o *Orchestrator) extractActionItems(ctx context.Context, m *models.Meeting) (models.MeetingUpdate, error) {
	text, err := transcriptText(m)
	if err != nil {
		return models.MeetingUpdate{}, err
	}
	items, err := o.extractor.ActionItems(ctx, text, o.cfg.ExtractAttempts)
	if err != nil {
		return models.MeetingUpdate{}, err
	}
	return models.MeetingUpdate{ActionItems: items}, nil
}

// fail records the stage failure in one update guarded by the status the stage started from.
func (o *Orchestrator) fail(ctx context.Context, log *zap.Logger, m *models.Meeting, st stage, cause error) error {
	reason := fmt.Sprintf("%s failed: %v", st.name, cause)
	log.Error("stage failed", zap.String("stage", st.name), zap.Error(cause))

	// A run timeout still has to be recorded.
	writeCtx := context.WithoutCancel(ctx)
	err := o.store.Update(writeCtx, m.ID, models.MeetingUpdate{
		FromStatus:    m.Status,
		Status:        models.StatusPtr(models.MeetingStatusFailed),
		FailureReason: &reason,
	})
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	if failed, err := o.store.GetByID(writeCtx, m.ID); err == nil && failed != nil {
		o.publish(writeCtx, failed)
	}
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, m *models.Meeting) {
	if o.publisher != nil {
		o.publisher.PublishStatus(ctx, m)
	}
}

func transcriptText(m *models.Meeting) (string, error) {
	if m.Transcript == nil {
		return "", errors.New("meeting has no transcript")
	}
	return m.Transcript.Text, nil
}
