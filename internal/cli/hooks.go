package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/erg0nix/kontekst-governor/internal/app"
	"github.com/erg0nix/kontekst-governor/internal/core"
	"github.com/erg0nix/kontekst-governor/internal/governor"
	grpcsvc "github.com/erg0nix/kontekst-governor/internal/grpc"
	"github.com/erg0nix/kontekst-governor/internal/snapshot"
)

const callTimeout = time.Minute

// withClient dials the daemon and runs fn with a bounded context.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, client *grpcsvc.Client) error) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	client, err := a.dial()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
	defer cancel()

	return reportCallError(a.ServerAddr, fn(ctx, client))
}

// printDirective prints d and turns a Halt into a non-zero exit.
func printDirective(d governor.Directive) error {
	fmt.Println(renderDirective(d))
	return d.Err()
}

func addContinuityFlags(cmd *cobra.Command) {
	cmd.Flags().String("context", "", "task identity, current phase, loaded scope")
	cmd.Flags().String("progress", "", "completed steps, current step, blockers")
	cmd.Flags().String("decisions", "", "key decisions with rationale and reversibility")
	cmd.Flags().String("next", "", "immediate next actions and an alternate path")
}

func continuityFromFlags(cmd *cobra.Command) (snapshot.Snapshot, bool) {
	var snap snapshot.Snapshot
	snap.Context, _ = cmd.Flags().GetString("context")
	snap.Progress, _ = cmd.Flags().GetString("progress")
	snap.Decisions, _ = cmd.Flags().GetString("decisions")
	snap.Next, _ = cmd.Flags().GetString("next")

	set := snap.Context != "" || snap.Progress != "" || snap.Decisions != "" || snap.Next != ""
	return snap, set
}

func parseAmount(arg string, name string) (int64, error) {
	n, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", governor.ErrInvalidInput, name, arg)
	}
	return n, nil
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show budget level and snapshot status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			pid := app.ReadPID(app.PIDFile(a.Config.DataDir))
			if pid == 0 {
				fmt.Println(styledError("governor is not running", "start with: governor serve"))
				return nil
			}

			return withClient(cmd, func(ctx context.Context, client *grpcsvc.Client) error {
				status, err := client.Status(ctx)
				if err != nil {
					return err
				}

				fmt.Println(styleSuccess.Render("running") + " " +
					stylePID.Render(fmt.Sprintf("pid %d", pid)) + " " +
					styleDim.Render(fmt.Sprintf("%s, up %s", a.ServerAddr, time.Duration(status.UptimeSeconds)*time.Second)))
				fmt.Println()
				fmt.Println(renderStatus(status.Status))
				return nil
			})
		},
	}
}

func newUnitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unit <delta>",
		Short: "Record a completed unit of work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := parseAmount(args[0], "delta")
			if err != nil {
				return err
			}

			return withClient(cmd, func(ctx context.Context, client *grpcsvc.Client) error {
				if snap, ok := continuityFromFlags(cmd); ok {
					if err := client.UpdateContinuity(ctx, snap); err != nil {
						return err
					}
				}

				d, err := client.OnUnitComplete(ctx, delta)
				if err != nil {
					return err
				}
				return printDirective(d)
			})
		},
	}

	addContinuityFlags(cmd)
	return cmd
}

func newOutputCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "output <size>",
		Short: "Ask before emitting an output of <size> lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := parseAmount(args[0], "size")
			if err != nil {
				return err
			}

			return withClient(cmd, func(ctx context.Context, client *grpcsvc.Client) error {
				d, err := client.BeforeLargeOutput(ctx, size)
				if err != nil {
					return err
				}
				return printDirective(d)
			})
		},
	}
}

func newCheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Write a continuity snapshot now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, _ := continuityFromFlags(cmd)
			if missing := snap.Missing(); len(missing) > 0 {
				return fmt.Errorf("%w: missing --%s", governor.ErrInvalidInput, missing[0])
			}

			return withClient(cmd, func(ctx context.Context, client *grpcsvc.Client) error {
				d, err := client.Checkpoint(ctx, snap)
				if err != nil {
					return err
				}
				return printDirective(d)
			})
		},
	}

	addContinuityFlags(cmd)
	return cmd
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Start a new session with a fresh budget",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, client *grpcsvc.Client) error {
				status, err := client.Reset(ctx)
				if err != nil {
					return err
				}

				fmt.Println(styleSuccess.Render("started session " + string(status.SessionID)))
				fmt.Println(renderStatus(status.Status))
				return nil
			})
		},
	}
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume [session]",
		Short: "Print the latest snapshot of a session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var sessionID core.SessionID
			if len(args) == 1 {
				sessionID = core.SessionID(args[0])
			}

			return withClient(cmd, func(ctx context.Context, client *grpcsvc.Client) error {
				snap, err := client.ReadLatest(ctx, sessionID)
				if err != nil {
					return err
				}

				fmt.Print(snapshot.Render(snap))
				return nil
			})
		},
	}
}
