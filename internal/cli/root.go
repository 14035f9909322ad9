package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aura-notes/backend/internal/models"
)

// Backend is what the operator commands act on.
type Backend interface {
	GetMeeting(ctx context.Context, id uuid.UUID) (*models.Meeting, error)
	Enqueue(ctx context.Context, id uuid.UUID) error
	RunMeeting(ctx context.Context, id uuid.UUID) error
	ResumePending(ctx context.Context) (int, error)
	Close()
}

// Dependencies are injected by main. Connect is called once per command, after flag parsing.
type Dependencies struct {
	Connect func(ctx context.Context) (Backend, error)
	Out     io.Writer
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "meetingctl",
		Short:         "Operate the meeting processing pipeline",
		Long:          "Inspect meetings, enqueue pipeline runs, run a meeting inline and resume unfinished work.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(NewRunCmd(deps))
	rootCmd.AddCommand(NewEnqueueCmd(deps))
	rootCmd.AddCommand(NewGetCmd(deps))
	rootCmd.AddCommand(NewResumeCmd(deps))

	return rootCmd
}

// withBackend connects, runs fn and closes the backend.
func withBackend(cmd *cobra.Command, deps *Dependencies, fn func(ctx context.Context, b Backend) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := deps.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer b.Close()
	return fn(ctx, b)
}

func parseID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid meeting id %q", arg)
	}
	return id, nil
}
