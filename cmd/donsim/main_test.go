package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tomasbasham/donsched/internal/sim"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunCmd(t *testing.T) {
	out, err := execute(t, "run", "--policy", "lottery", "--steps", "50", "--threads", "4", "--locks", "2", "--json")
	require.NoError(t, err)

	var report sim.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Equal(t, "lottery", report.Policy)
	require.Equal(t, 50, report.Steps)
	require.Len(t, report.Priorities, 4)
}

func TestRunCmd_Text(t *testing.T) {
	out, err := execute(t, "run", "--steps", "20", "--threads", "2", "--locks", "1")
	require.NoError(t, err)
	require.Contains(t, out, "policy:          priority\n")
	require.Contains(t, out, "thread-00 priority=")
}

func TestRunCmd_UnknownPolicy(t *testing.T) {
	_, err := execute(t, "run", "--policy", "fifo")
	require.ErrorContains(t, err, `unknown policy "fifo"`)
}

func TestScenariosCmd(t *testing.T) {
	out, err := execute(t, "scenarios")
	require.NoError(t, err)
	for _, s := range sim.Scenarios() {
		require.Contains(t, out, s.Name)
	}

	out, err = execute(t, "scenarios", "inversion")
	require.NoError(t, err)
	require.Contains(t, out, "== inversion\n")
	require.Contains(t, out, "x(1/7) <-y:7@0\n")

	_, err = execute(t, "scenarios", "missing")
	require.ErrorContains(t, err, `unknown scenario "missing"`)
}
