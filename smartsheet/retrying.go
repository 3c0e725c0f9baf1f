package smartsheet

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxRetries    = 5
	DefaultRetryInterval = 5 * time.Second

	// NoRetries as MaxRetries makes a single attempt.
	NoRetries = -1
)

type RetryOptions struct {
	// Retries after the first attempt; MaxRetries+1 calls in total.  Zero means
	// DefaultMaxRetries, NoRetries means none.
	MaxRetries int
	// Base of the linear backoff: the n-th retry waits n*Interval.
	Interval time.Duration

	Clock  clock.Clock
	Logger logrus.FieldLogger
}

func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries: DefaultMaxRetries,
		Interval:   DefaultRetryInterval,
	}
}

func (o RetryOptions) withDefaults() RetryOptions {
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.Interval <= 0 {
		o.Interval = DefaultRetryInterval
	}
	if o.Clock == nil {
		o.Clock = clock.WallClock
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

// LinearBackoff waits attempt*interval before each retry: 5s, 10s, 15s... for a 5s interval.
func LinearBackoff(interval time.Duration) func(time.Duration, int) time.Duration {
	return func(_ time.Duration, attempt int) time.Duration {
		return time.Duration(attempt) * interval
	}
}

// Retry calls fn until it succeeds, returns an error retryable rejects, or runs out of attempts.
// Exhaustion is reported as a RetriesExhaustedError carrying op and params.  Errors that are not
// retryable come back untouched.
func Retry(ctx context.Context, opts RetryOptions, op string, params []any, retryable func(error) bool, fn func() error) error {
	opts = opts.withDefaults()
	retries := max(opts.MaxRetries, 0)
	backoff := LinearBackoff(opts.Interval)

	var last error
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			last = fn()
			return last
		},
		IsFatalError: func(err error) bool {
			return ctx.Err() != nil || !retryable(err)
		},
		NotifyFunc: func(err error, attempt int) {
			if attempt > retries {
				return
			}
			opts.Logger.WithFields(logrus.Fields{
				"op":       op,
				"attempt":  attempt,
				"retry_in": backoff(0, attempt),
			}).Warnf("Retrying after transient failure: %v", err)
		},
		Attempts:    retries + 1,
		Delay:       opts.Interval,
		BackoffFunc: backoff,
		Clock:       opts.Clock,
		Stop:        ctx.Done(),
	})

	switch {
	case err == nil:
		return nil
	case retry.IsAttemptsExceeded(err):
		return &RetriesExhaustedError{
			Op:       op,
			Params:   params,
			Attempts: retries + 1,
			Err:      last,
		}
	case ctx.Err() != nil:
		return fmt.Errorf("smartsheet: %s abandoned (last error: %v): %w", op, last, ctx.Err())
	case last != nil:
		return last
	}

	return fmt.Errorf("smartsheet: couldn't run %s: %w", op, err)
}

// RetryingService retries every data fetch of its delegate on ServiceUnavailableError.
type RetryingService struct {
	delegate Service
	opts     RetryOptions
}

var _ Service = (*RetryingService)(nil)

func NewRetryingService(delegate Service, opts RetryOptions) *RetryingService {
	return &RetryingService{
		delegate: delegate,
		opts:     opts.withDefaults(),
	}
}

func retrying[T any](ctx context.Context, s *RetryingService, op string, params []any, fn func() (T, error)) (T, error) {
	var result T
	err := Retry(ctx, s.opts, op, params, IsServiceUnavailable, func() error {
		r, err := fn()
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

func (s *RetryingService) GetUsers(ctx context.Context, opts UsersQuery) (*UsersPage, error) {
	return retrying(ctx, s, "GetUsers", []any{opts.Page, opts.PageSize}, func() (*UsersPage, error) {
		return s.delegate.GetUsers(ctx, opts)
	})
}

func (s *RetryingService) GetHome(ctx context.Context) (*Home, error) {
	return retrying(ctx, s, "GetHome", nil, func() (*Home, error) {
		return s.delegate.GetHome(ctx)
	})
}

func (s *RetryingService) GetSheet(ctx context.Context, name string, id int64) (*Sheet, error) {
	return retrying(ctx, s, "GetSheet", []any{name, id}, func() (*Sheet, error) {
		return s.delegate.GetSheet(ctx, name, id)
	})
}

func (s *RetryingService) GetAttachment(ctx context.Context, name string, id int64, sheetName string, sheetID int64) (*Attachment, error) {
	return retrying(ctx, s, "GetAttachment", []any{name, id, sheetName, sheetID}, func() (*Attachment, error) {
		return s.delegate.GetAttachment(ctx, name, id, sheetName, sheetID)
	})
}

func (s *RetryingService) ExportSheet(ctx context.Context, name string, id int64) (io.ReadCloser, error) {
	return retrying(ctx, s, "ExportSheet", []any{name, id}, func() (io.ReadCloser, error) {
		return s.delegate.ExportSheet(ctx, name, id)
	})
}

// OpenContent is passed straight through: a download URL has to be re-resolved before it is
// tried again, which only the caller can do.
func (s *RetryingService) OpenContent(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	return s.delegate.OpenContent(ctx, rawURL)
}

func (s *RetryingService) AssumeUser(email string) Service {
	opts := s.opts
	if email != "" {
		opts.Logger = opts.Logger.WithField("member", email)
	}
	return &RetryingService{
		delegate: s.delegate.AssumeUser(email),
		opts:     opts,
	}
}

func (s *RetryingService) AssumedUser() string { return s.delegate.AssumedUser() }

func (s *RetryingService) AccessToken() string { return s.delegate.AccessToken() }
