package smartsheet

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
)

// instantClock never sleeps, it only remembers how long it was asked to wait.
type instantClock struct {
	clock.Clock

	mu    sync.Mutex
	waits []time.Duration
}

func newInstantClock() *instantClock {
	return &instantClock{Clock: clock.WallClock}
}

func (c *instantClock) After(d time.Duration) <-chan time.Time {
	c.record(d)
	ch := make(chan time.Time, 1)
	ch <- c.Clock.Now()
	return ch
}

func (c *instantClock) NewTimer(d time.Duration) clock.Timer {
	c.record(d)
	return c.Clock.NewTimer(0)
}

func (c *instantClock) record(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)
}

func (c *instantClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

// stubService answers from funcs; unset funcs return zero values.
type stubService struct {
	assumed string

	getUsers      func(opts UsersQuery) (*UsersPage, error)
	getHome       func() (*Home, error)
	getSheet      func(name string, id int64) (*Sheet, error)
	getAttachment func(name string, id int64) (*Attachment, error)
	exportSheet   func(name string, id int64) (io.ReadCloser, error)
}

func (s *stubService) GetUsers(_ context.Context, opts UsersQuery) (*UsersPage, error) {
	if s.getUsers == nil {
		return &UsersPage{}, nil
	}
	return s.getUsers(opts)
}

func (s *stubService) GetHome(context.Context) (*Home, error) {
	if s.getHome == nil {
		return &Home{}, nil
	}
	return s.getHome()
}

func (s *stubService) GetSheet(_ context.Context, name string, id int64) (*Sheet, error) {
	if s.getSheet == nil {
		return &Sheet{ID: id, Name: name}, nil
	}
	return s.getSheet(name, id)
}

func (s *stubService) GetAttachment(_ context.Context, name string, id int64, _ string, _ int64) (*Attachment, error) {
	if s.getAttachment == nil {
		return &Attachment{ID: id, Name: name}, nil
	}
	return s.getAttachment(name, id)
}

func (s *stubService) ExportSheet(_ context.Context, name string, id int64) (io.ReadCloser, error) {
	if s.exportSheet == nil {
		return io.NopCloser(strings.NewReader("")), nil
	}
	return s.exportSheet(name, id)
}

func (s *stubService) OpenContent(context.Context, string) (io.ReadCloser, error) {
	return nil, io.EOF
}

func (s *stubService) AssumeUser(email string) Service {
	clone := *s
	clone.assumed = email
	return &clone
}

func (s *stubService) AssumedUser() string { return s.assumed }

func (s *stubService) AccessToken() string { return "stub-token" }

func unavailable() error {
	return &ServiceUnavailableError{StatusCode: 503, Status: "503 Service Unavailable"}
}
