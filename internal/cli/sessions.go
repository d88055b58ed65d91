package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/erg0nix/kontekst-governor/internal/app"
	"github.com/erg0nix/kontekst-governor/internal/config"
	"github.com/erg0nix/kontekst-governor/internal/core"
	"github.com/erg0nix/kontekst-governor/internal/session"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect sessions and their snapshots on disk",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsShowCmd())
	cmd.AddCommand(newSessionsLogCmd())
	cmd.AddCommand(newSessionsArchiveCmd())
	cmd.AddCommand(newSessionsDeleteCmd())

	return cmd
}

func catalogFor(cfg config.Config) *session.Catalog {
	roots := []string{cfg.Snapshot.Primary}
	if cfg.Snapshot.Fallback != "" {
		roots = append(roots, cfg.Snapshot.Fallback)
	}
	return &session.Catalog{Roots: roots}
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions with snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			list, err := catalogFor(a.Config).List()
			if err != nil {
				return err
			}

			if len(list) == 0 {
				fmt.Println(styleDim.Render("No sessions found."))
				return nil
			}

			t := newTable("SESSION ID", "SNAPSHOTS", "ARCHIVED", "LATEST", "MODIFIED")
			for _, info := range list {
				latest := string(info.Latest)
				if latest == "" {
					latest = styleDim.Render("-")
				}
				t.Row(
					string(info.ID),
					fmt.Sprintf("%d", info.Snapshots),
					fmt.Sprintf("%d", info.Archived),
					latest,
					formatAge(info.ModifiedAt),
				)
			}
			fmt.Println(t.Render())
			return nil
		},
	}
}

func newSessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session>",
		Short: "Show a session's snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			id := core.SessionID(args[0])
			info, err := catalogFor(a.Config).Get(id)
			if err != nil {
				return err
			}

			store, err := app.NewStore(a.Config.Snapshot)
			if err != nil {
				return err
			}
			ids, err := store.List(id)
			if err != nil {
				return err
			}

			fmt.Println(styleCommand.Render(string(info.ID)))
			if !info.CreatedAt.IsZero() {
				fmt.Println(styleDim.Render("created " + info.CreatedAt.Local().Format(time.DateTime)))
			}
			fmt.Println(styleDim.Render("locations " + strings.Join(info.Locations, ", ")))
			fmt.Println()

			if len(ids) == 0 {
				fmt.Println(styleDim.Render("No snapshots in the primary location."))
				return nil
			}

			t := newTable("", "SNAPSHOT ID")
			for _, snapID := range ids {
				marker := ""
				if snapID == info.Latest {
					marker = styleSuccess.Render("*")
				}
				t.Row(marker, string(snapID))
			}
			fmt.Println(t.Render())
			return nil
		},
	}
}

func newSessionsLogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "log <session>",
		Short: "Show the directives returned to a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			entries, err := session.ReadJournal(a.Config.Snapshot.Primary, core.SessionID(args[0]))
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println(styleDim.Render("No directives recorded."))
				return nil
			}

			t := newTable("TIME", "STEP", "HOOK", "LEVEL", "BUDGET", "ACTION")
			for _, e := range entries {
				t.Row(
					e.At.Local().Format(time.TimeOnly),
					fmt.Sprintf("%d", e.Step),
					e.Hook,
					levelStyle(e.Level).Render(e.Level.String()),
					fmt.Sprintf("%d/%d", min(e.Used, e.Total), e.Total),
					actionStyle(e.Action).Render(string(e.Action)),
				)
			}
			fmt.Println(t.Render())
			return nil
		},
	}
}

func newSessionsArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <session>",
		Short: "Move a session's snapshots into its archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			store, err := app.NewStore(a.Config.Snapshot)
			if err != nil {
				return err
			}

			moved, err := store.Archive(core.SessionID(args[0]))
			if err != nil {
				return err
			}

			fmt.Println(styleSuccess.Render(fmt.Sprintf("archived %d snapshots", moved)))
			return nil
		},
	}
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <session>",
		Aliases: []string{"delete"},
		Short:   "Delete a session and all its snapshots",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			id := core.SessionID(args[0])
			if err := catalogFor(a.Config).Delete(id); err != nil {
				if errors.Is(err, session.ErrNotFound) {
					fmt.Println(styledError("session not found: "+string(id), "list sessions with: governor sessions list"))
				}
				return err
			}

			fmt.Println(styleSuccess.Render("deleted " + string(id)))
			return nil
		},
	}
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Local().Format(time.DateOnly)
	}
}
