package localdump

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toothbrush/smartsheet-backup/internal/report"
	"github.com/toothbrush/smartsheet-backup/smartsheet"
	"go.uber.org/goleak"
)

func orgFixture() *fakeService {
	svc := newFakeService()
	svc.content.members = []smartsheet.User{
		{ID: 1, Email: "ann@example.com", Status: smartsheet.StatusActive},
		{ID: 2, Email: "bob@example.com", Status: smartsheet.StatusPending},
		{ID: 3, Email: "cyd@example.com", Status: smartsheet.StatusActive},
	}
	svc.content.homes["ann@example.com"] = &smartsheet.Home{Sheets: []smartsheet.Sheet{owned(1, "Ann's plan")}}
	svc.content.homes["cyd@example.com"] = &smartsheet.Home{
		Workspaces: []smartsheet.Workspace{{Folder: smartsheet.Folder{Name: "Ops", Sheets: []smartsheet.Sheet{owned(2, "Rota")}}}},
	}
	return svc
}

func TestBackupOrgToBacksUpActiveMembers(t *testing.T) {
	svc := orgFixture()
	dir := filepath.Join(t.TempDir(), "backup")

	n, err := newTestBackup(t, svc, &recordingPoster{}, report.FailFast).BackupOrgTo(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"ann@example.com", "cyd@example.com"}, svc.content.homeCalls)
	assert.Empty(t, svc.AssumedUser())
	assert.Equal(t, []string{
		"ann@example.com/",
		"ann@example.com/Sheets/",
		"ann@example.com/Sheets/Ann's plan.xls",
		"ann@example.com/Workspaces/",
		"cyd@example.com/",
		"cyd@example.com/Sheets/",
		"cyd@example.com/Workspaces/",
		"cyd@example.com/Workspaces/Ops/",
		"cyd@example.com/Workspaces/Ops/Rota.xls",
	}, tree(t, dir))
}

func TestBackupOrgToMovesPreviousBackupAside(t *testing.T) {
	svc := orgFixture()
	parent := t.TempDir()
	dir := filepath.Join(parent, "backup")
	require.NoError(t, os.MkdirAll(dir, 0750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.txt"), []byte("old"), 0640))

	b := newTestBackup(t, svc, &recordingPoster{}, report.FailFast)
	b.Clock = testclock.NewClock(time.Date(2024, 3, 1, 13, 4, 5, 0, time.UTC))

	_, err := b.BackupOrgTo(context.Background(), dir)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(parent, "backup-2024-03-01_13_04_05", "old.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "old.txt"))
}

func failingSheetDetails(svc *fakeService) smartsheet.Service {
	svc.content.sheetErr = func(int64) error {
		return &smartsheet.ServiceUnavailableError{StatusCode: 503, Status: "503 Service Unavailable"}
	}
	return smartsheet.NewResilientService(svc, smartsheet.RetryOptions{
		MaxRetries: 2,
		Interval:   time.Second,
		Clock:      newInstantClock(),
		Logger:     quietLogger(),
	})
}

func TestBackupOrgToFailFastRaisesSheetFailure(t *testing.T) {
	svc := orgFixture()
	b := newTestBackup(t, failingSheetDetails(svc), &recordingPoster{}, report.FailFast)

	_, err := b.BackupOrgTo(context.Background(), filepath.Join(t.TempDir(), "backup"))

	require.Error(t, err)
	var itemErr *smartsheet.ItemError
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, smartsheet.ItemSheet, itemErr.Type)
	assert.Equal(t, "Ann's plan", itemErr.Name)
	assert.Greater(t, b.Reporter.ErrorCount(), int64(0))
	// aborted during the first member.
	assert.Equal(t, []string{"ann@example.com"}, svc.content.homeCalls)
}

func TestBackupOrgToContinueOnErrorCompletes(t *testing.T) {
	svc := orgFixture()
	b := newTestBackup(t, failingSheetDetails(svc), &recordingPoster{}, report.ContinueOnError)

	n, err := b.BackupOrgTo(context.Background(), filepath.Join(t.TempDir(), "backup"))

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(2), b.Reporter.ErrorCount())
	assert.NotEmpty(t, b.Reporter.ErrorLogPath())
	assert.FileExists(t, b.Reporter.ErrorLogPath())
	assert.Equal(t, []string{"ann@example.com", "cyd@example.com"}, svc.content.homeCalls)
}

func TestBackupRequiresCollaborators(t *testing.T) {
	_, err := (&Backup{}).BackupOrgTo(context.Background(), t.TempDir())
	assert.Error(t, err)
}

func TestFailFastWalkAbortStopsPendingDownloads(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := newFakeService()
	svc.content.members = []smartsheet.User{{ID: 1, Email: "ann@example.com", Status: smartsheet.StatusActive}}
	svc.content.homes["ann@example.com"] = &smartsheet.Home{Sheets: []smartsheet.Sheet{owned(1, "Alpha"), owned(2, "Beta")}}
	svc.content.sheets[1] = &smartsheet.Sheet{
		ID: 1, Name: "Alpha", AccessLevel: smartsheet.AccessOwner,
		Attachments: []smartsheet.Attachment{fileAttachment(10, "slow.pdf")},
	}
	svc.content.sheetErr = func(id int64) error {
		if id == 2 {
			return &smartsheet.HTTPError{StatusCode: 404, Status: "404 Not Found"}
		}
		return nil
	}
	svc.content.blockDownload = true

	reporter := newReporter(t, report.FailFast)
	d, err := NewParallelDownloader(DownloaderOptions{
		Workers:  2,
		Timeout:  time.Hour,
		Retry:    smartsheet.RetryOptions{Clock: newInstantClock()},
		Clock:    testclock.NewClock(time.Now()),
		Reporter: reporter,
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	b := &Backup{Service: svc, Poster: d, Reporter: reporter, Logger: quietLogger()}
	dir := filepath.Join(t.TempDir(), "backup")

	_, walkErr := b.BackupOrgTo(context.Background(), dir)
	var abort *report.Abort
	require.ErrorAs(t, walkErr, &abort)

	d.Abort(walkErr)
	done := make(chan Stats, 1)
	go func() {
		stats, _ := d.Drain()
		done <- stats
	}()

	select {
	case stats := <-done:
		assert.False(t, stats.TimedOut)
		assert.Equal(t, int64(1), stats.Posted)
		assert.Zero(t, stats.Completed)
	case <-time.After(10 * time.Second):
		t.Fatal("downloads kept running after the walk aborted")
	}
	assert.NoFileExists(t, filepath.Join(dir, "ann@example.com", "Sheets", "Alpha - attachments", "slow.pdf"))
	assert.Equal(t, int64(1), reporter.ErrorCount())
}
