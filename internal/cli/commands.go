package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func NewRunCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "run <meeting-id>",
		Short: "Run the pipeline for a meeting in this process",
		Long:  "Runs every pending stage inline, bypassing the queue. The per-meeting lease is still taken.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withBackend(cmd, deps, func(ctx context.Context, b Backend) error {
				if err := b.RunMeeting(ctx, id); err != nil {
					return err
				}
				m, err := b.GetMeeting(ctx, id)
				if err != nil {
					return err
				}
				if m == nil {
					return fmt.Errorf("meeting %s not found", id)
				}
				if m.FailureReason != nil {
					fmt.Fprintf(deps.Out, "%s %s: %s\n", m.ID, m.Status, *m.FailureReason)
					return nil
				}
				fmt.Fprintf(deps.Out, "%s %s\n", m.ID, m.Status)
				return nil
			})
		},
	}
}

func NewEnqueueCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <meeting-id>",
		Short: "Queue a pipeline run for a meeting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withBackend(cmd, deps, func(ctx context.Context, b Backend) error {
				m, err := b.GetMeeting(ctx, id)
				if err != nil {
					return err
				}
				if m == nil {
					return fmt.Errorf("meeting %s not found", id)
				}
				if m.Status.Terminal() {
					fmt.Fprintf(deps.Out, "%s is %s, nothing to do\n", id, m.Status)
					return nil
				}
				if err := b.Enqueue(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(deps.Out, "enqueued %s\n", id)
				return nil
			})
		},
	}
}

func NewGetCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "get <meeting-id>",
		Short: "Print a meeting record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withBackend(cmd, deps, func(ctx context.Context, b Backend) error {
				m, err := b.GetMeeting(ctx, id)
				if err != nil {
					return err
				}
				if m == nil {
					return fmt.Errorf("meeting %s not found", id)
				}
				enc := json.NewEncoder(deps.Out)
				enc.SetIndent("", "  ")
				return enc.Encode(m)
			})
		},
	}
}

func NewResumeCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Queue every meeting that has not reached done or failed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, deps, func(ctx context.Context, b Backend) error {
				n, err := b.ResumePending(ctx)
				fmt.Fprintf(deps.Out, "enqueued %d meetings\n", n)
				return err
			})
		},
	}
}
