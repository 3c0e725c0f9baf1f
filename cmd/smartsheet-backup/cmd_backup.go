/*
Copyright © 2024 paul <paul@denknerd.org>
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/clock"
	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/toothbrush/smartsheet-backup/internal/archive"
	"github.com/toothbrush/smartsheet-backup/internal/report"
	"github.com/toothbrush/smartsheet-backup/internal/termfmt"
	"github.com/toothbrush/smartsheet-backup/localdump"
	"github.com/toothbrush/smartsheet-backup/smartsheet"
	"github.com/vbauerster/mpb/v8"
)

// backupCmd represents the backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the content of every active member of the organization",
	Long: `
Lists every member of the organization, then for each active one saves their sheets (as Excel
files), folders, workspaces and attachments under <output-dir>/<timestamp>/<email>.
`,
	Args: cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBackup(cmd.Context())
	},
}

var (
	OutputDir               string
	DownloadThreads         int
	AllDownloadsDoneTimeout int
	ZipOutputDir            bool
	ContinueOnError         bool
	WithVCR                 bool
	Progress                bool
)

func init() {
	rootCmd.AddCommand(backupCmd)

	backupCmd.Flags().StringVarP(&OutputDir, "output-dir", "o", "", "where backups are written, one timestamped folder per run")
	backupCmd.Flags().IntVar(&DownloadThreads, "download-threads", localdump.DefaultWorkers, "number of parallel attachment downloads")
	backupCmd.Flags().IntVar(&AllDownloadsDoneTimeout, "all-downloads-done-timeout", int(localdump.DefaultDrainTimeout/time.Minute), "minutes to wait for outstanding attachment downloads")
	backupCmd.Flags().BoolVar(&ZipOutputDir, "zip-output-dir", false, "zip the finished backup and remove the folder")
	backupCmd.Flags().BoolVar(&ContinueOnError, "continue-on-error", false, "log failures to an error log and carry on with the next item")
	backupCmd.Flags().BoolVar(&WithVCR, "with-vcr", false, "use go-vcr to record and replay API responses")
	backupCmd.Flags().BoolVar(&Progress, "progress", false, "show a progress bar for attachment downloads")
}

type backupSettings struct {
	outputDir    string
	workers      int
	drainTimeout time.Duration
	policy       report.Policy
}

func validateBackupFlags() (backupSettings, error) {
	if OutputDir == "" {
		return backupSettings{}, &configError{"no output directory set, use --output-dir or set output-dir in your config file"}
	}
	outputDir, err := homedir.Expand(OutputDir)
	if err != nil {
		return backupSettings{}, fmt.Errorf("smartsheet-backup: couldn't expand homedir: %w", err)
	}
	if DownloadThreads < 1 {
		return backupSettings{}, &configError{fmt.Sprintf("download-threads must be at least 1, got %d", DownloadThreads)}
	}
	if AllDownloadsDoneTimeout < 0 {
		return backupSettings{}, &configError{fmt.Sprintf("all-downloads-done-timeout must not be negative, got %d", AllDownloadsDoneTimeout)}
	}

	policy := report.FailFast
	if ContinueOnError {
		policy = report.ContinueOnError
	}

	return backupSettings{
		outputDir:    outputDir,
		workers:      DownloadThreads,
		drainTimeout: time.Duration(AllDownloadsDoneTimeout) * time.Minute,
		policy:       policy,
	}, nil
}

func runBackup(ctx context.Context) error {
	settings, err := validateBackupFlags()
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stopSignals := signal.NotifyContext(ctx, os.Interrupt)
	defer stopSignals()

	started := clock.WallClock.Now()
	stamp := started.Format(localdump.BackupFolderTimestamp)

	if err := os.MkdirAll(settings.outputDir, 0750); err != nil {
		return fmt.Errorf("smartsheet-backup: couldn't create output directory %s: %w", settings.outputDir, err)
	}
	root := filepath.Join(settings.outputDir, stamp)
	errorLog := filepath.Join(settings.outputDir, stamp+"-errors.log")

	logger := logrus.StandardLogger()
	reporter, err := report.New(settings.policy, logger, errorLog)
	if err != nil {
		return err
	}

	api, stopVCR, err := newAPI(WithVCR)
	if err != nil {
		return err
	}
	defer stopVCR()

	retry := smartsheet.DefaultRetryOptions()
	retry.Logger = logger
	svc := smartsheet.NewResilientService(api, retry)

	var progress *mpb.Progress
	if Progress {
		progress = mpb.New(mpb.WithWidth(64))
	}

	downloader, err := localdump.NewParallelDownloader(localdump.DownloaderOptions{
		Workers:  settings.workers,
		Timeout:  settings.drainTimeout,
		Retry:    retry,
		Reporter: reporter,
		Logger:   logger,
		Progress: progress,
	})
	if err != nil {
		return err
	}

	logger.Infof("Backing up to %s (%s mode, %d download threads)", root, settings.policy, settings.workers)

	backup := &localdump.Backup{
		Service:  svc,
		Poster:   downloader,
		Reporter: reporter,
		Logger:   logger,
	}
	members, walkErr := backup.BackupOrgTo(ctx, root)

	stats, err := finishDownloads(walkErr, downloader, reporter, root)
	if progress != nil {
		progress.Wait()
	}
	if err != nil {
		return err
	}

	if ZipOutputDir {
		if err := archiveOutput(ctx, root, reporter, logger); err != nil {
			return err
		}
	}

	elapsed := clock.WallClock.Now().Sub(started)
	printSummary(members, stats, elapsed, reporter)

	return exitStatus(reporter)
}

// downloadBatch is the part of the downloader the end of a run needs.
type downloadBatch interface {
	Abort(cause error)
	Drain() (localdump.Stats, error)
}

// finishDownloads settles the attachment downloads once the walk is over.  A failed walk stops
// them at once; otherwise they get the drain timeout, and an incomplete drain counts as an error.
func finishDownloads(walkErr error, downloads downloadBatch, reporter *report.Reporter, root string) (localdump.Stats, error) {
	if walkErr != nil {
		downloads.Abort(walkErr)
	}
	stats, drainErr := downloads.Drain()

	if walkErr != nil {
		return stats, &exitError{code: 1, err: fmt.Errorf("smartsheet-backup: backup aborted: %w", walkErr)}
	}
	if drainErr != nil {
		return stats, &exitError{code: 1, err: fmt.Errorf("smartsheet-backup: backup aborted: %w", drainErr)}
	}
	if !stats.AllDone() {
		incomplete := fmt.Errorf("smartsheet-backup: only %d of %d attachments were downloaded", stats.Completed, stats.Posted)
		fields := logrus.Fields{"path": root, "failed": stats.Failed, "unfinished": stats.Unfinished()}
		if err := reporter.Handle(report.ScopeDownloads, incomplete, fields); err != nil {
			return stats, &exitError{code: 1, err: err}
		}
	}

	return stats, nil
}

func archiveOutput(ctx context.Context, root string, reporter *report.Reporter, logger logrus.FieldLogger) error {
	if err := zipAndRemove(ctx, root, logger); err != nil {
		if err := reporter.Handle(report.ScopeArchive, err, logrus.Fields{"path": root}); err != nil {
			return &exitError{code: 1, err: err}
		}
	}
	return nil
}

// exitStatus is 2 for a run that completed with errors under continue-on-error.
func exitStatus(reporter *report.Reporter) error {
	if reporter.ErrorCount() > 0 {
		return &exitError{code: 2}
	}
	return nil
}

func zipAndRemove(ctx context.Context, root string, logger logrus.FieldLogger) error {
	dest := root + ".zip"
	if _, err := archive.ZipDir(ctx, root, dest, logger); err != nil {
		return err
	}
	if err := os.RemoveAll(root); err != nil {
		return fmt.Errorf("smartsheet-backup: zipped to %s but couldn't remove %s: %w", dest, root, err)
	}
	return nil
}

func printSummary(members int, stats localdump.Stats, elapsed time.Duration, reporter *report.Reporter) {
	minutes := int(elapsed / time.Minute)
	seconds := int((elapsed % time.Minute) / time.Second)

	fmt.Printf("%v %d member(s) in %d minute(s) %d second(s)\n",
		termfmt.Bold().V("Backed up"), members, minutes, seconds)
	fmt.Printf("  attachments: %d of %d (%s)\n", stats.Completed, stats.Posted, humanize.Bytes(uint64(stats.Bytes)))

	if n := reporter.ErrorCount(); n > 0 {
		fmt.Printf("%v %d error(s), see %s\n", termfmt.Fg(termfmt.Red).Bold().V("Finished with"), n, reporter.ErrorLogPath())
	}
}
