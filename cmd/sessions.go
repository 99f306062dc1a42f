package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/internal/config"
	"github.com/xkilldash9x/droidpilot/internal/observability"
	"github.com/xkilldash9x/droidpilot/internal/store"
)

// storeProvider opens the session archive. Tests inject their own.
type storeProvider interface {
	// Open returns the configured archive, or nil when store.type is none.
	Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.Recorder, error)
}

type defaultStoreProvider struct{}

// NewStoreProvider returns the provider backed by store.Open.
func NewStoreProvider() storeProvider {
	return defaultStoreProvider{}
}

func (defaultStoreProvider) Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.Recorder, error) {
	return store.Open(ctx, cfg, logger)
}

// withStore opens the archive for the duration of fn.
func withStore(cmd *cobra.Command, provider storeProvider, fn func(ctx context.Context, s store.Recorder) error) error {
	ctx := cmd.Context()
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}
	logger := observability.GetLogger()

	s, err := provider.Open(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	if s == nil {
		return errors.New("no session store configured (store.type is none)")
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warn("Failed to close session store", zap.Error(err))
		}
	}()
	return fn(ctx, s)
}

func newSessionsCmd(provider storeProvider) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Inspect and manage archived task runs",
	}
	sessionsCmd.AddCommand(
		newSessionsListCmd(provider),
		newSessionsShowCmd(provider),
		newSessionsDeleteCmd(provider),
		newSessionsPruneCmd(provider),
	)
	return sessionsCmd
}

func newSessionsListCmd(provider storeProvider) *cobra.Command {
	var f store.Filter
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Status = store.Status(status)
			return withStore(cmd, provider, func(ctx context.Context, s store.Recorder) error {
				sessions, err := s.ListSessions(ctx, f)
				if err != nil {
					return err
				}
				if len(sessions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No sessions.")
					return nil
				}
				return printSessions(cmd.OutOrStdout(), sessions)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only sessions with this status (running, paused, completed, aborted, exhausted)")
	cmd.Flags().StringVar(&f.Device, "device", "", "only sessions run on this device")
	cmd.Flags().IntVarP(&f.Limit, "limit", "n", 20, "maximum sessions to list (0 for all)")
	return cmd
}

func printSessions(w io.Writer, sessions []store.Session) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSTEPS\tDEVICE\tUPDATED\tTASK")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			s.ID, s.Status, s.StepCount, s.Device, s.UpdatedAt.Local().Format(time.DateTime), truncate(s.Task, 50))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func newSessionsShowCmd(provider storeProvider) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one session and its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, provider, func(ctx context.Context, s store.Recorder) error {
				sess, steps, err := s.GetSession(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOut {
					payload, err := json.MarshalIndent(struct {
						store.Session
						Steps []store.StepRecord `json:"steps"`
					}{sess, steps}, "", "  ")
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s\n", payload)
					return nil
				}

				fmt.Fprintf(out, "Session %s\n", sess.ID)
				fmt.Fprintf(out, "  Task:    %s\n", sess.Task)
				fmt.Fprintf(out, "  Device:  %s\n", sess.Device)
				fmt.Fprintf(out, "  Status:  %s (%d steps)\n", sess.Status, sess.StepCount)
				if sess.Message != "" {
					fmt.Fprintf(out, "  Result:  %s\n", sess.Message)
				}
				if sess.PendingQuestion != "" {
					fmt.Fprintf(out, "  Waiting: %s\n", sess.PendingQuestion)
				}
				for _, st := range steps {
					status := "ok"
					if !st.Outcome.Success {
						status = "failed"
					}
					fmt.Fprintf(out, "  %3d  %-8s %s", st.Step, status, st.Action.Describe())
					if st.LoopWarning != "" {
						fmt.Fprintf(out, "  ! %s", st.LoopWarning)
					}
					fmt.Fprintln(out)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the session as JSON")
	return cmd
}

func newSessionsDeleteCmd(provider storeProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete sessions and their steps",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, provider, func(ctx context.Context, s store.Recorder) error {
				var missing []string
				for _, id := range args {
					ok, err := s.DeleteSession(ctx, id)
					if err != nil {
						return err
					}
					if !ok {
						missing = append(missing, id)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
				}
				if len(missing) > 0 {
					return fmt.Errorf("%w: %v", store.ErrNotFound, missing)
				}
				return nil
			})
		},
	}
}

func newSessionsPruneCmd(provider storeProvider) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete finished sessions older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			return withStore(cmd, provider, func(ctx context.Context, s store.Recorder) error {
				n, err := s.PruneSessions(ctx, olderThan)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d sessions.\n", n)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age cutoff, measured from the last update")
	return cmd
}
