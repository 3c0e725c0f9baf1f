package localdump

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/toothbrush/smartsheet-backup/internal/report"
	"github.com/toothbrush/smartsheet-backup/smartsheet"
)

// fakeContent is the service-side state, shared by every identity.
type fakeContent struct {
	mu sync.Mutex

	members []smartsheet.User
	homes   map[string]*smartsheet.Home // by assumed email, "" for the admin
	sheets  map[int64]*smartsheet.Sheet
	files   map[int64]string // attachment id -> bytes

	sheetErr      func(id int64) error
	exportErr     func(id int64) error
	openErr       func(url string) error
	blockDownload bool

	homeCalls    []string
	sheetCalls   []int64
	resolveCalls map[int64]int
	opened       []string
}

type fakeService struct {
	content *fakeContent
	assumed string
}

func newFakeService() *fakeService {
	return &fakeService{content: &fakeContent{
		homes:        map[string]*smartsheet.Home{},
		sheets:       map[int64]*smartsheet.Sheet{},
		files:        map[int64]string{},
		resolveCalls: map[int64]int{},
	}}
}

func (s *fakeService) GetUsers(_ context.Context, opts smartsheet.UsersQuery) (*smartsheet.UsersPage, error) {
	s.content.mu.Lock()
	defer s.content.mu.Unlock()
	return &smartsheet.UsersPage{PageNumber: 1, TotalPages: 1, Data: s.content.members}, nil
}

func (s *fakeService) GetHome(context.Context) (*smartsheet.Home, error) {
	s.content.mu.Lock()
	defer s.content.mu.Unlock()
	s.content.homeCalls = append(s.content.homeCalls, s.assumed)
	home, ok := s.content.homes[s.assumed]
	if !ok {
		return &smartsheet.Home{}, nil
	}
	return home, nil
}

func (s *fakeService) GetSheet(_ context.Context, name string, id int64) (*smartsheet.Sheet, error) {
	s.content.mu.Lock()
	defer s.content.mu.Unlock()
	s.content.sheetCalls = append(s.content.sheetCalls, id)
	if s.content.sheetErr != nil {
		if err := s.content.sheetErr(id); err != nil {
			return nil, err
		}
	}
	sheet, ok := s.content.sheets[id]
	if !ok {
		return &smartsheet.Sheet{ID: id, Name: name, AccessLevel: smartsheet.AccessOwner}, nil
	}
	return sheet, nil
}

func (s *fakeService) GetAttachment(_ context.Context, name string, id int64, _ string, _ int64) (*smartsheet.Attachment, error) {
	s.content.mu.Lock()
	defer s.content.mu.Unlock()
	s.content.resolveCalls[id]++
	return &smartsheet.Attachment{
		ID:             id,
		Name:           name,
		AttachmentType: smartsheet.AttachmentFile,
		URL:            fmt.Sprintf("https://files.example.com/%d?v=%d", id, s.content.resolveCalls[id]),
	}, nil
}

func (s *fakeService) ExportSheet(_ context.Context, name string, id int64) (io.ReadCloser, error) {
	body := io.Reader(strings.NewReader("xls:" + name))
	if s.content.exportErr != nil {
		if err := s.content.exportErr(id); err != nil {
			// the connection drops halfway through the export.
			body = io.MultiReader(body, iotest.ErrReader(err))
		}
	}
	return io.NopCloser(body), nil
}

func (s *fakeService) OpenContent(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	s.content.mu.Lock()
	s.content.opened = append(s.content.opened, rawURL)
	openErr, block := s.content.openErr, s.content.blockDownload
	var id int64
	fmt.Sscanf(rawURL, "https://files.example.com/%d", &id)
	data := s.content.files[id]
	s.content.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if openErr != nil {
		if err := openErr(rawURL); err != nil {
			return nil, err
		}
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func (s *fakeService) AssumeUser(email string) smartsheet.Service {
	return &fakeService{content: s.content, assumed: email}
}

func (s *fakeService) AssumedUser() string { return s.assumed }

func (s *fakeService) AccessToken() string { return "fake-token" }

// recordingPoster keeps jobs instead of running them.
type recordingPoster struct {
	jobs []Job
}

func (p *recordingPoster) Post(_ context.Context, job Job) error {
	p.jobs = append(p.jobs, job)
	return nil
}

// refusingPoster rejects every job, like a downloader whose run was aborted.
type refusingPoster struct {
	err error
}

func (p *refusingPoster) Post(context.Context, Job) error { return p.err }

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
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- c.Clock.Now()
	return ch
}

func (c *instantClock) NewTimer(d time.Duration) clock.Timer {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.mu.Unlock()
	return c.Clock.NewTimer(0)
}

func (c *instantClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

func quietLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func newReporter(t *testing.T, policy report.Policy) *report.Reporter {
	t.Helper()
	r, err := report.New(policy, quietLogger(), filepath.Join(t.TempDir(), "errors.log"))
	require.NoError(t, err)
	return r
}

func owned(id int64, name string) smartsheet.Sheet {
	return smartsheet.Sheet{ID: id, Name: name, AccessLevel: smartsheet.AccessOwner}
}

func fileAttachment(id int64, name string) smartsheet.Attachment {
	return smartsheet.Attachment{ID: id, Name: name, AttachmentType: smartsheet.AttachmentFile}
}

// tree lists every file and folder under root, relative and sorted.
func tree(t *testing.T, root string) []string {
	t.Helper()
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			rel += "/"
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	require.NoError(t, err)
	sort.Strings(paths)
	return paths
}
