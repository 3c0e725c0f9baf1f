package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toothbrush/smartsheet-backup/internal/report"
	"github.com/toothbrush/smartsheet-backup/localdump"
)

// fakeBatch records what the end of a run asked of the downloads.
type fakeBatch struct {
	stats    localdump.Stats
	drainErr error

	calls      []string
	abortCause error
}

func (b *fakeBatch) Abort(cause error) {
	b.calls = append(b.calls, "abort")
	b.abortCause = cause
}

func (b *fakeBatch) Drain() (localdump.Stats, error) {
	b.calls = append(b.calls, "drain")
	return b.stats, b.drainErr
}

func newTestReporter(t *testing.T, policy report.Policy) *report.Reporter {
	t.Helper()
	logger, _ := test.NewNullLogger()
	r, err := report.New(policy, logger, filepath.Join(t.TempDir(), "errors.log"))
	require.NoError(t, err)
	return r
}

func TestFailedWalkStopsDownloadsBeforeDraining(t *testing.T) {
	walkErr := &report.Abort{Err: errors.New("sheet Budget: 404 Not Found")}
	batch := &fakeBatch{stats: localdump.Stats{Posted: 3, Completed: 1}}
	reporter := newTestReporter(t, report.FailFast)

	_, err := finishDownloads(walkErr, batch, reporter, "/backups/x")

	assert.Equal(t, []string{"abort", "drain"}, batch.calls)
	assert.Same(t, walkErr, batch.abortCause)
	assert.Equal(t, 1, exitCode(err))
	assert.ErrorIs(t, err, walkErr)
	// already counted where it happened.
	assert.Zero(t, reporter.ErrorCount())
}

func TestDrainFailureAborts(t *testing.T) {
	batch := &fakeBatch{drainErr: errors.New("attachment plan.pdf: 403 Forbidden")}

	_, err := finishDownloads(nil, batch, newTestReporter(t, report.FailFast), "/backups/x")

	assert.Equal(t, []string{"drain"}, batch.calls)
	assert.Equal(t, 1, exitCode(err))
}

func TestIncompleteDrainUnderFailFast(t *testing.T) {
	batch := &fakeBatch{stats: localdump.Stats{Posted: 4, Completed: 2, TimedOut: true}}
	reporter := newTestReporter(t, report.FailFast)

	_, err := finishDownloads(nil, batch, reporter, "/backups/x")

	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, err.Error(), "only 2 of 4 attachments")
	assert.Equal(t, int64(1), reporter.ErrorCount())
}

func TestIncompleteDrainUnderContinueOnError(t *testing.T) {
	batch := &fakeBatch{stats: localdump.Stats{Posted: 4, Completed: 3, Failed: 1}}
	reporter := newTestReporter(t, report.ContinueOnError)

	stats, err := finishDownloads(nil, batch, reporter, "/backups/x")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Completed)
	assert.Equal(t, int64(1), reporter.ErrorCount())

	assert.Equal(t, 2, exitCode(exitStatus(reporter)))
}

func TestCleanRunExitsZero(t *testing.T) {
	batch := &fakeBatch{stats: localdump.Stats{Posted: 2, Completed: 2}}
	reporter := newTestReporter(t, report.ContinueOnError)

	_, err := finishDownloads(nil, batch, reporter, "/backups/x")
	require.NoError(t, err)

	assert.NoError(t, exitStatus(reporter))
	assert.Equal(t, 0, exitCode(exitStatus(reporter)))
}

func TestArchiveOutputZipsAndRemoves(t *testing.T) {
	root := filepath.Join(t.TempDir(), "2024-03-01_10_00_00")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "ann@example.com", "Sheets"), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "ann@example.com", "Sheets", "Budget.xls"), []byte("xls"), 0640))
	reporter := newTestReporter(t, report.FailFast)
	logger, _ := test.NewNullLogger()

	require.NoError(t, archiveOutput(context.Background(), root, reporter, logger))

	assert.FileExists(t, root+".zip")
	assert.NoDirExists(t, root)
	assert.Zero(t, reporter.ErrorCount())
}

func TestArchiveFailure(t *testing.T) {
	// the parent doesn't exist, so there is nowhere to put the zip.
	root := filepath.Join(t.TempDir(), "missing", "2024-03-01_10_00_00")
	logger, _ := test.NewNullLogger()

	failFast := newTestReporter(t, report.FailFast)
	err := archiveOutput(context.Background(), root, failFast, logger)
	assert.Equal(t, 1, exitCode(err))

	carryOn := newTestReporter(t, report.ContinueOnError)
	require.NoError(t, archiveOutput(context.Background(), root, carryOn, logger))
	assert.Equal(t, int64(1), carryOn.ErrorCount())
	assert.Equal(t, 2, exitCode(exitStatus(carryOn)))
}
