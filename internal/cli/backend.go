package cli

import (
	"context"

	"github.com/google/uuid"

	"github.com/aura-notes/backend/internal/app"
	"github.com/aura-notes/backend/internal/meetings"
	"github.com/aura-notes/backend/internal/models"
	"github.com/aura-notes/backend/internal/worker"
)

// AppBackend adapts the wired application to Backend.
type AppBackend struct {
	app *app.App
}

// NewAppBackend wraps a.
func NewAppBackend(a *app.App) *AppBackend {
	return &AppBackend{app: a}
}

func (b *AppBackend) GetMeeting(ctx context.Context, id uuid.UUID) (*models.Meeting, error) {
	return b.app.Meetings.GetByID(ctx, id)
}

func (b *AppBackend) Enqueue(ctx context.Context, id uuid.UUID) error {
	return b.app.Queue.EnqueueMeetingPipeline(ctx, id)
}

// RunMeeting builds the pipeline on demand so read-only commands need no API keys.
func (b *AppBackend) RunMeeting(ctx context.Context, id uuid.UUID) error {
	p, err := b.app.Processor()
	if err != nil {
		return err
	}
	return p.RunMeeting(ctx, id)
}

func (b *AppBackend) ResumePending(ctx context.Context) (int, error) {
	return worker.ResumePending(ctx, b.app.Meetings, b.app.Queue, meetings.MaxListLimit, b.app.Logger)
}

func (b *AppBackend) Close() { b.app.Close() }
