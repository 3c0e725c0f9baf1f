// Package report decides what an unrecovered error means for the run, and keeps count.
//
// In FailFast mode the first error handed to Handle stops everything.  In ContinueOnError mode
// the error is logged, counted, and appended to a durable error log, and the caller moves on to
// the next member, folder, sheet or attachment.
package report

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
)

type Policy int

const (
	FailFast Policy = iota
	ContinueOnError
)

func (p Policy) String() string {
	if p == ContinueOnError {
		return "continue-on-error"
	}
	return "fail-fast"
}

// Scope is the unit of work an error cost us.
type Scope string

const (
	ScopeMember     Scope = "member"
	ScopeFolder     Scope = "folder"
	ScopeSheet      Scope = "sheet"
	ScopeAttachment Scope = "attachment"
	ScopeDownloads  Scope = "downloads"
	ScopeArchive    Scope = "archive"
)

// TimestampFormat is used for both the console and the error log.
const TimestampFormat = "2006-01-02 15:04:05.000 Z07:00"

// Abort is returned by Handle when the run must stop.  It has already been counted and logged,
// so passing it through Handle again is a no-op.
type Abort struct {
	Err error
}

func (a *Abort) Error() string { return a.Err.Error() }

func (a *Abort) Unwrap() error { return a.Err }

type Reporter struct {
	policy       Policy
	logger       logrus.FieldLogger
	errorLogPath string

	errorCount atomic.Int64
}

// New builds a Reporter.  With ContinueOnError and a non-empty errorLogPath, every Error-level
// entry of logger is also appended to that file.
func New(policy Policy, logger *logrus.Logger, errorLogPath string) (*Reporter, error) {
	if logger == nil {
		return nil, fmt.Errorf("report: logger is required")
	}

	r := &Reporter{
		policy: policy,
		logger: logger,
	}

	if policy == ContinueOnError && errorLogPath != "" {
		r.errorLogPath = errorLogPath
		logger.AddHook(lfshook.NewHook(lfshook.PathMap{
			logrus.ErrorLevel: errorLogPath,
			logrus.FatalLevel: errorLogPath,
			logrus.PanicLevel: errorLogPath,
		}, &logrus.TextFormatter{
			TimestampFormat:  TimestampFormat,
			FullTimestamp:    true,
			DisableColors:    true,
			QuoteEmptyFields: true,
		}))
	}

	return r, nil
}

// Handle records err, which cost us the given scope, and says whether to carry on: nil means
// continue with the next sibling, anything else must be returned up the stack.
func (r *Reporter) Handle(scope Scope, err error, fields logrus.Fields) error {
	if err == nil {
		return nil
	}

	var abort *Abort
	if errors.As(err, &abort) {
		return err
	}

	r.errorCount.Add(1)

	entry := r.logger.WithFields(fields).WithField("scope", scope).WithError(err)
	if r.policy == FailFast {
		entry.Errorf("Backup of %s failed, aborting", scope)
		return &Abort{Err: err}
	}
	entry.Errorf("Backup of %s failed, continuing", scope)

	return nil
}

func (r *Reporter) Policy() Policy { return r.policy }

func (r *Reporter) ContinueOnError() bool { return r.policy == ContinueOnError }

func (r *Reporter) ErrorCount() int64 { return r.errorCount.Load() }

// ErrorLogPath is where errors are appended, or "" when there is no error log.
func (r *Reporter) ErrorLogPath() string { return r.errorLogPath }
