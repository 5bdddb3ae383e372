package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/danmuck/busdecode/internal/pipeline"
	"github.com/danmuck/busdecode/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckConfigAppliesOverrides(t *testing.T) {
	testlog.Start(t)
	dir := filepath.Join(t.TempDir(), "drive")
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out

	err := app.Run([]string{"busdecode", "--data-dir", dir, "--workers", "3", "check-config"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), filepath.Join(dir, "merged"))
	assert.Contains(t, out.String(), "workers = 3")
}

func TestExplicitMissingConfigFails(t *testing.T) {
	testlog.Start(t)
	app := newApp()
	app.Writer = &bytes.Buffer{}
	err := app.Run([]string{"busdecode", "--config", filepath.Join(t.TempDir(), "nope.toml"), "check-config"})
	assert.Error(t, err)
}

func TestReportFailuresJoinsFailedOutcomes(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("boom")
	sum := pipeline.RunSummary{Outcomes: []pipeline.FileOutcome{
		{Stage: pipeline.StageDecode, File: "a.log", Status: pipeline.StatusWritten},
		{Stage: pipeline.StageDecode, File: "b.log", Status: pipeline.StatusFailed, Err: boom},
		{Stage: pipeline.StageMerge, File: "c", Status: pipeline.StatusSkipped},
	}}
	err := reportFailures(sum)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "b.log")

	assert.NoError(t, reportFailures(pipeline.RunSummary{}))
}
