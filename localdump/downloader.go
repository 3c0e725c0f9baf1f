package localdump

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"github.com/toothbrush/smartsheet-backup/internal/report"
	"github.com/toothbrush/smartsheet-backup/smartsheet"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/errgroup"
)

var errDrainTimeout = errors.New("localdump: downloads did not finish in time")

const (
	// AttachmentBufferSize is how much of an attachment we hold in memory on its way to disk.
	AttachmentBufferSize = 64 * 1024

	DefaultWorkers = 4
	// Download URLs live for about two minutes, so waiting much longer than that is pointless.
	DefaultDrainTimeout = 2 * time.Minute
)

// Job downloads one attachment into Target, overwriting whatever is there.
type Job struct {
	// Service acts as Member.
	Service smartsheet.Service
	Member  string

	SheetName      string
	SheetID        int64
	AttachmentName string
	AttachmentID   int64
	Target         string
}

func (j Job) fields() logrus.Fields {
	return logrus.Fields{
		"member":     j.Member,
		"sheet":      j.SheetName,
		"attachment": j.AttachmentName,
		"path":       j.Target,
	}
}

// JobPoster accepts download jobs.  Post must not block on the download itself.
type JobPoster interface {
	Post(ctx context.Context, job Job) error
}

// Stats counts the jobs of one run, from the first Post to Drain.
type Stats struct {
	Posted    int64
	Completed int64
	Failed    int64
	Bytes     int64
	TimedOut  bool
}

func (s Stats) AllDone() bool { return s.Completed == s.Posted }

// Unfinished is how many jobs neither completed nor failed.
func (s Stats) Unfinished() int64 { return s.Posted - s.Completed - s.Failed }

type DownloaderOptions struct {
	Workers int
	// How long Drain waits for outstanding jobs.
	Timeout time.Duration
	// Retry policy for one attachment; every attempt fetches a fresh download URL.
	Retry smartsheet.RetryOptions

	Clock    clock.Clock
	Reporter *report.Reporter
	Logger   logrus.FieldLogger
	// Optional progress display.
	Progress *mpb.Progress
}

// ParallelDownloader runs attachment downloads on a fixed number of workers.
//
// Post and Drain are meant to be called from one goroutine.  After Drain the downloader is empty
// again and can take the next batch.
type ParallelDownloader struct {
	opts DownloaderOptions

	mu  sync.Mutex
	run *downloadRun
}

var _ JobPoster = (*ParallelDownloader)(nil)

type downloadRun struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	grp    *errgroup.Group
	queue  chan Job
	bar    *mpb.Bar

	posted, completed, failed, bytes atomic.Int64
	aborted                          atomic.Bool

	errMu sync.Mutex
	err   error
}

func NewParallelDownloader(opts DownloaderOptions) (*ParallelDownloader, error) {
	if opts.Workers < 1 {
		return nil, fmt.Errorf("localdump: need at least one download worker, got %d", opts.Workers)
	}
	if opts.Timeout < 0 {
		return nil, fmt.Errorf("localdump: drain timeout must not be negative, got %v", opts.Timeout)
	}
	if opts.Reporter == nil {
		return nil, fmt.Errorf("localdump: downloader needs a reporter")
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Retry.Clock == nil {
		opts.Retry.Clock = opts.Clock
	}
	if opts.Retry.Logger == nil {
		opts.Retry.Logger = opts.Logger
	}

	return &ParallelDownloader{opts: opts}, nil
}

// Post queues job and returns without waiting for it to run.  It only blocks while the queue is
// full.  Once a failure has aborted the run, Post returns that failure.
func (d *ParallelDownloader) Post(ctx context.Context, job Job) error {
	d.mu.Lock()
	if d.run == nil {
		d.run = d.start(ctx)
	}
	run := d.run
	d.mu.Unlock()

	if run.ctx.Err() != nil {
		return run.abortErr()
	}

	posted := run.posted.Add(1)
	if run.bar != nil {
		run.bar.SetTotal(posted, false)
	}

	select {
	case run.queue <- job:
		return nil
	case <-run.ctx.Done():
		run.jobFailed()
		return run.abortErr()
	case <-ctx.Done():
		run.jobFailed()
		return ctx.Err()
	}
}

func (d *ParallelDownloader) start(ctx context.Context) *downloadRun {
	ctx, cancel := context.WithCancelCause(ctx)
	grp, gctx := errgroup.WithContext(ctx)

	run := &downloadRun{
		ctx:    gctx,
		cancel: cancel,
		grp:    grp,
		queue:  make(chan Job, d.opts.Workers*100),
	}

	if d.opts.Progress != nil {
		run.bar = d.opts.Progress.AddBar(0,
			mpb.PrependDecorators(
				// display our name with one space on the right
				decor.Name("attachments:", decor.WC{C: decor.DindentRight | decor.DextraSpace}),
			),
			mpb.AppendDecorators(
				decor.CountersNoUnit("(%d/%d) "),
				decor.NewPercentage("%d"),
				decor.Spinner([]string{" /", " -", " \\", " |"}),
			),
		)
	}

	for i := 0; i < d.opts.Workers; i++ {
		grp.Go(func() error {
			for {
				select {
				case job, ok := <-run.queue:
					if !ok {
						// queue closed and empty
						return nil
					}
					if err := d.perform(run, job); err != nil {
						run.setErr(err)
						return err
					}
				case <-run.ctx.Done():
					return nil
				}
			}
		})
	}

	return run
}

// perform runs one job and does the accounting.  It only returns an error if the reporter says
// the whole run has to stop.
func (d *ParallelDownloader) perform(run *downloadRun, job Job) error {
	n, err := d.download(run.ctx, job)
	if err == nil {
		run.completed.Add(1)
		run.bytes.Add(n)
		if run.bar != nil {
			run.bar.Increment()
		}
		logger := d.opts.Logger.WithFields(job.fields())
		logger.Debugf("Downloaded %s", humanize.Bytes(uint64(n)))

		if path, err := addSniffedExtension(job.Target); err != nil {
			logger.Warnf("Couldn't add an extension to the downloaded file: %v", err)
		} else if path != job.Target {
			logger.WithField("path", path).Debug("Renamed after sniffing its content type")
		}
		return nil
	}

	run.jobFailed()
	d.discard(job)
	if run.ctx.Err() != nil {
		// cancelled under our feet: timeout or an abort.  That's reported elsewhere.
		d.opts.Logger.WithFields(job.fields()).Warnf("Download cancelled, nothing saved: %v", context.Cause(run.ctx))
		return nil
	}

	return d.opts.Reporter.Handle(report.ScopeAttachment,
		fmt.Errorf("localdump: couldn't download attachment: %w", err),
		job.fields())
}

// transferError is a failure while moving bytes, worth another go with a fresh URL.
type transferError struct {
	err error
}

func (e *transferError) Error() string { return e.err.Error() }

func (e *transferError) Unwrap() error { return e.err }

func retryableDownload(err error) bool {
	var exhausted *smartsheet.RetriesExhaustedError
	if errors.As(err, &exhausted) {
		// the service already had its retries.
		return false
	}
	var te *transferError
	return errors.As(err, &te) || smartsheet.IsServiceUnavailable(err)
}

func (d *ParallelDownloader) download(ctx context.Context, job Job) (int64, error) {
	var written int64
	err := smartsheet.Retry(ctx, d.opts.Retry, "DownloadAttachment",
		[]any{job.AttachmentName, job.AttachmentID, job.Target},
		retryableDownload,
		func() error {
			n, err := d.downloadOnce(ctx, job)
			written = n
			return err
		})
	return written, err
}

// downloadOnce resolves a fresh download URL and streams it into the target.
func (d *ParallelDownloader) downloadOnce(ctx context.Context, job Job) (int64, error) {
	attachment, err := job.Service.GetAttachment(ctx, job.AttachmentName, job.AttachmentID, job.SheetName, job.SheetID)
	if err != nil {
		return 0, err
	}
	if attachment.URL == "" {
		return 0, fmt.Errorf("localdump: no download URL for attachment %q", job.AttachmentName)
	}

	body, err := job.Service.OpenContent(ctx, attachment.URL)
	if err != nil {
		var httpErr *smartsheet.HTTPError
		if errors.As(err, &httpErr) || smartsheet.IsServiceUnavailable(err) {
			return 0, err
		}
		return 0, &transferError{err: err}
	}
	defer body.Close()

	f, err := os.OpenFile(job.Target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return 0, &FilesystemError{Op: "create file", Path: job.Target, Err: err}
	}
	defer f.Close()

	w := bufio.NewWriterSize(f, AttachmentBufferSize)
	n, err := io.Copy(w, body)
	if err != nil {
		return n, &transferError{err: err}
	}
	if err := w.Flush(); err != nil {
		return n, &FilesystemError{Op: "write", Path: job.Target, Err: err}
	}
	if err := f.Close(); err != nil {
		return n, &FilesystemError{Op: "close file", Path: job.Target, Err: err}
	}

	return n, nil
}

// Drain stops accepting work and waits for the queued jobs, up to the configured timeout.  Jobs
// still running after that are cancelled.  The returned error is the failure that aborted the
// run, if any.
func (d *ParallelDownloader) Drain() (Stats, error) {
	d.mu.Lock()
	run := d.run
	d.run = nil
	d.mu.Unlock()

	if run == nil {
		return Stats{}, nil
	}
	defer run.cancel(nil)

	close(run.queue)

	stats := run.stats()
	if stats.Completed == stats.Posted || stats.Failed == stats.Posted {
		// nothing queued or running, the workers are on their way out.
		err := run.grp.Wait()
		d.finish(run, stats)
		return stats, err
	}

	done := make(chan error, 1)
	go func() {
		done <- run.grp.Wait()
	}()

	var err error
	timedOut := false
	if run.aborted.Load() {
		// nothing left worth waiting for.
		err = <-done
	} else {
		select {
		case err = <-done:
		case <-d.opts.Clock.After(d.opts.Timeout):
			timedOut = true
			run.cancel(errDrainTimeout)
			err = <-done
		}
	}

	stats = run.stats()
	stats.TimedOut = timedOut
	if timedOut {
		d.opts.Logger.Warnf("Not all downloads finished within %v: %d of %d jobs never completed",
			d.opts.Timeout, stats.Posted-stats.Completed, stats.Posted)
	}
	d.finish(run, stats)

	return stats, err
}

// Abort cancels the current batch: running downloads are stopped and queued ones dropped.  Drain
// must still be called, and returns without waiting for the timeout.
func (d *ParallelDownloader) Abort(cause error) {
	d.mu.Lock()
	run := d.run
	d.mu.Unlock()

	if run == nil {
		return
	}
	if cause == nil {
		cause = context.Canceled
	}
	run.aborted.Store(true)
	run.cancel(cause)
}

// discard removes the reserved, possibly half-written, target of a job that won't complete.
func (d *ParallelDownloader) discard(job Job) {
	removeIncomplete(job.Target, d.opts.Logger.WithFields(job.fields()))
}

func (d *ParallelDownloader) finish(run *downloadRun, stats Stats) {
	// the workers are gone, whatever is still queued never started.
	for job := range run.queue {
		d.discard(job)
		d.opts.Logger.WithFields(job.fields()).Warn("Download never started, nothing saved")
	}

	if run.bar != nil {
		if stats.AllDone() {
			run.bar.SetTotal(-1, true)
		} else {
			run.bar.Abort(false)
		}
	}
	d.opts.Logger.Infof("Downloaded %d of %d attachments (%s), %d failed",
		stats.Completed, stats.Posted, humanize.Bytes(uint64(stats.Bytes)), stats.Failed)
}

// Stats of the batch currently being posted.
func (d *ParallelDownloader) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.run == nil {
		return Stats{}
	}
	return d.run.stats()
}

func (run *downloadRun) stats() Stats {
	return Stats{
		Posted:    run.posted.Load(),
		Completed: run.completed.Load(),
		Failed:    run.failed.Load(),
		Bytes:     run.bytes.Load(),
	}
}

func (run *downloadRun) jobFailed() {
	run.failed.Add(1)
	if run.bar != nil {
		run.bar.Increment()
	}
}

func (run *downloadRun) setErr(err error) {
	run.errMu.Lock()
	defer run.errMu.Unlock()
	if run.err == nil {
		run.err = err
	}
}

func (run *downloadRun) abortErr() error {
	run.errMu.Lock()
	defer run.errMu.Unlock()
	if run.err != nil {
		return run.err
	}
	return fmt.Errorf("localdump: downloads were cancelled: %w", context.Cause(run.ctx))
}
