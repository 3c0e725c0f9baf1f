package main

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
	"github.com/toothbrush/smartsheet-backup/smartsheet"
	"gopkg.in/dnaeon/go-vcr.v3/cassette"
	"gopkg.in/dnaeon/go-vcr.v3/recorder"
)

const vcrCassette = "fixtures/smartsheet-api"

// newAPI builds the raw client from the persistent flags.  The returned stop func must be called
// once the run is over, it flushes the VCR cassette if one is being recorded.
func newAPI(withVCR bool) (*smartsheet.API, func(), error) {
	token, err := resolveToken()
	if err != nil {
		return nil, nil, err
	}

	opts := []smartsheet.Option{
		smartsheet.WithUserAgent(fmt.Sprintf("smartsheet-backup/%s", shortVersion())),
	}
	if ProxyURL != "" && !withVCR {
		opts = append(opts, smartsheet.WithProxy(ProxyURL))
	}
	if RequestsPerMinute > 0 {
		opts = append(opts, smartsheet.WithRateLimit(RequestsPerMinute))
	}

	stop := func() {}
	if withVCR {
		realTransport := http.DefaultTransport
		if ProxyURL != "" {
			u, err := url.Parse(ProxyURL)
			if err != nil {
				return nil, nil, &configError{fmt.Sprintf("bad proxy-url: %v", err)}
			}
			transport := http.DefaultTransport.(*http.Transport).Clone()
			transport.Proxy = http.ProxyURL(u)
			realTransport = transport
		}

		// set up VCR recordings.
		r, err := recorder.NewWithOptions(&recorder.Options{
			CassetteName:       vcrCassette,
			Mode:               recorder.ModeReplayWithNewEpisodes,
			SkipRequestLatency: true,
			RealTransport:      realTransport,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("smartsheet-backup: couldn't set up go-vcr recording: %w", err)
		}

		// Credentials and identities stay out of the cassette.
		hook := func(i *cassette.Interaction) error {
			delete(i.Request.Headers, "Authorization")
			delete(i.Request.Headers, "Assume-User")
			return nil
		}
		r.AddHook(hook, recorder.AfterCaptureHook)
		r.SetReplayableInteractions(true)

		opts = append(opts, smartsheet.WithHTTPClient(r.GetDefaultClient()))
		stop = func() {
			if err := r.Stop(); err != nil {
				logrus.Warnf("Couldn't save VCR cassette %s: %v", vcrCassette, err)
			}
		}
		logrus.Debugf("Recording HTTP traffic to %s.yaml", vcrCassette)
	}

	api, err := smartsheet.NewAPI(APIBase, token, opts...)
	if err != nil {
		stop()
		return nil, nil, err
	}

	return api, stop, nil
}
