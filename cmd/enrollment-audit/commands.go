package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/24Tech-io/nursepor-stable-sub008/internal/app"
	"github.com/24Tech-io/nursepor-stable-sub008/internal/models"
	"github.com/24Tech-io/nursepor-stable-sub008/pkg/config"
	"github.com/24Tech-io/nursepor-stable-sub008/pkg/events"
	"github.com/24Tech-io/nursepor-stable-sub008/pkg/logger"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "enrollment-audit",
		Short:             "Audit and repair enrollment consistency",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.AddCommand(newCheckCmd())
	root.AddCommand(newRepairCmd())
	root.AddCommand(newCleanupCmd())
	root.AddCommand(newWatchCmd())
	return root
}

func newCheckCmd() *cobra.Command {
	var studentID, courseID string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report divergence between enrollments, progress and access requests",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var (
					report *models.ConsistencyReport
					err    error
				)
				if studentID != "" || courseID != "" {
					report, err = a.Services.Auditor.AuditPair(ctx, studentID, courseID)
				} else {
					report, err = a.Services.Auditor.Audit(ctx)
				}
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().StringVar(&studentID, "student", "", "Limit the audit to one student (requires --course)")
	cmd.Flags().StringVar(&courseID, "course", "", "Limit the audit to one course (requires --student)")
	return cmd
}

func newRepairCmd() *cobra.Command {
	var issuesFile string
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Repair divergence; audits first unless --issues is given",
		RunE: func(cmd *cobra.Command, _ []string) error {
			issues, err := readIssues(issuesFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				summary, err := a.Services.Engine.Repair(ctx, issues)
				if err != nil {
					return err
				}
				if err := writeJSON(cmd.OutOrStdout(), summary); err != nil {
					return err
				}
				if len(summary.Errors) > 0 {
					return fmt.Errorf("%d issues could not be repaired", len(summary.Errors))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&issuesFile, "issues", "", "JSON file with issues to repair, - for stdin")
	return cmd
}

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-orphans",
		Short: "Delete enrollments, progress rows and access requests whose student or course is gone",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				deleted, err := a.Services.Engine.CleanupOrphans(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]int{"deleted_count": deleted})
			})
		},
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream sync events published by the API until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if a.Redis == nil || !a.Cfg.Notifier.RedisEnabled {
					return errors.New("watch requires REDIS_ENABLED=true and ENABLE_REDIS_NOTIFIER=true")
				}
				out := cmd.OutOrStdout()
				return events.Subscribe(ctx, a.Redis, a.Cfg.Notifier.RedisChannel, func(event events.Event) {
					if err := writeJSON(out, event); err != nil {
						a.Log.Warn("failed to write event", zap.String("event_id", event.ID), zap.Error(err))
					}
				})
			})
		},
	}
}

// withApp loads configuration, wires the application and runs fn until it
// returns or the process is interrupted.
func withApp(parent context.Context, fn func(context.Context, *app.App) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	a, err := app.New(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	return fn(ctx, a)
}

func readIssues(path string, stdin io.Reader) ([]models.Issue, error) {
	if path == "" {
		return nil, nil
	}
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open issues file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var payload struct {
		Issues []models.Issue `json:"issues"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode issues: %w", err)
	}
	for _, issue := range payload.Issues {
		if !issue.Kind.Valid() {
			return nil, fmt.Errorf("unknown issue kind %q", issue.Kind)
		}
	}
	return payload.Issues, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}
