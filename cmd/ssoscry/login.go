package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/copyleftdev/ssoscry/internal/flows"
	"github.com/copyleftdev/ssoscry/internal/tasks"
	"github.com/copyleftdev/ssoscry/internal/taskstypes"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func LoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "login <flow>",
		Short:     "Run one SSO login flow and write a report",
		Long:      "Runs a login flow (" + strings.Join(flows.Names(), ", ") + ") in Chrome, answering the PingID prompt with the configured MFA provider.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: flows.Names(),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			task, err := flows.Build(args[0], a.cfg)
			if err != nil {
				return err
			}

			bm, err := a.browserManager(a.mfaRegistry())
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Browser.ShutdownTimeout)
				defer cancel()
				_ = bm.Shutdown(ctx)
			}()

			a.logger.Info("Running login flow", zap.String("flow", task.Name), zap.Stringer("task_id", task.ID))
			task.UpdateStatus(taskstypes.StatusRunning)
			result, runErr := bm.ExecuteTask(cmd.Context(), task, tasks.NopReporter{})
			if result == nil {
				result = &taskstypes.TaskResult{}
			}
			task.Result = result
			status := taskstypes.StatusCompleted
			if runErr != nil {
				status = taskstypes.StatusFailed
				result.Error = runErr.Error()
			}
			task.UpdateStatus(status)
			a.metrics.ObserveLogin(task.Name, string(status))

			printSteps(cmd.OutOrStdout(), result)
			path, err := writeReport(a.cfg.Report.Dir, task, time.Now())
			if err != nil {
				a.logger.Error("Failed to write report", zap.Error(err))
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Report: %s\n", path)
			}
			return runErr
		},
	}
}

func printSteps(w io.Writer, result *taskstypes.TaskResult) {
	for i, s := range result.Steps {
		line := fmt.Sprintf("%2d. [%s] %s (%s)", i+1, s.Status, s.Name, s.Duration.Round(time.Millisecond))
		if s.Error != "" {
			line += ": " + s.Error
		}
		fmt.Fprintln(w, line)
	}
}

// writeReport stores the finished task as <flow>-<timestamp>.json under dir.
func writeReport(dir string, task *taskstypes.Task, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	name := task.Name
	if name == "" {
		name = "task"
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.json", name, now.UTC().Format("20060102T150405Z")))

	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
