package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/copyleftdev/ssoscry/internal/taskstypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := RootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "login", "mfa", "inspect", "check-browser"}, names)
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestLoginCmd_RequiresFlow(t *testing.T) {
	root := RootCmd()
	root.SetArgs([]string{"login"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	assert.Error(t, root.Execute())
}

func TestWriteReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	task := taskstypes.NewTask("fileroom", nil, &taskstypes.Credentials{Username: "qa@example.com", Password: "hunter2"}, taskstypes.TwoFactorAuthInfo{}, "")
	task.UpdateStatus(taskstypes.StatusFailed)
	task.Result = &taskstypes.TaskResult{
		Error: "step \"Click Sign On button\" failed: timeout",
		Steps: []taskstypes.StepReport{{Name: "Click Sign On button", Status: taskstypes.StepFailed}},
	}

	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	path, err := writeReport(dir, task, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "fileroom-20260304T050607Z.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "failed", got["status"])
	assert.Equal(t, task.ID.String(), got["id"])
}

func TestPrintSteps(t *testing.T) {
	var buf bytes.Buffer
	printSteps(&buf, &taskstypes.TaskResult{Steps: []taskstypes.StepReport{
		{Name: "Navigate to Fileroom", Status: taskstypes.StepPassed, Duration: 1500 * time.Millisecond},
		{Name: "Submit email", Status: taskstypes.StepFailed, Error: errors.New("not found").Error()},
	}})
	assert.Equal(t, " 1. [passed] Navigate to Fileroom (1.5s)\n 2. [failed] Submit email (0s): not found\n", buf.String())
}
