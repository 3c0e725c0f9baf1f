package smartsheet

import (
	"fmt"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://api.smartsheet.com/2.0/"

func NewAPI(baseURL string, token string, opts ...Option) (*API, error) {
	if token == "" {
		return nil, fmt.Errorf("smartsheet: access token is empty, please set --access-token or --auth-token-cmd")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		// endpoints are resolved relative to the base, which only keeps the last path
		// segment if it ends in a slash.
		baseURL += "/"
	}

	u, err := url.ParseRequestURI(baseURL)
	if err != nil {
		return nil, fmt.Errorf("smartsheet: couldn't parse REST API URL: %w", err)
	}

	a := &API{
		BaseURI:   u,
		Client:    &http.Client{},
		UserAgent: fmt.Sprintf("smartsheet-backup (%s/%s; %s)", runtime.GOOS, runtime.GOARCH, runtime.Version()),
		token:     token,
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("smartsheet: bad client option: %w", err)
		}
	}

	return a, nil
}

type API struct {
	// e.g. https://api.smartsheet.com/2.0/
	BaseURI *url.URL

	// An HTTP client - you can substitute VCR or whatnot.
	Client *http.Client

	UserAgent string

	// Shared by every clone, so that assumed identities draw from the same budget.
	limiter *rate.Limiter

	token string
	// Email of the member we act as, empty for the token's own identity.
	assumedUser string
}

type Option func(*API) error

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *API) error {
		if c == nil {
			return fmt.Errorf("nil http client")
		}
		a.Client = c
		return nil
	}
}

// WithProxy routes every request through an HTTP proxy.  Credentials, if any, go in the URL's
// user info.
func WithProxy(proxy string) Option {
	return func(a *API) error {
		if proxy == "" {
			return nil
		}
		u, err := url.Parse(proxy)
		if err != nil {
			return fmt.Errorf("couldn't parse proxy URL: %w", err)
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.Proxy = http.ProxyURL(u)
		a.Client.Transport = transport
		return nil
	}
}

// WithRateLimit caps the number of requests per minute.  Zero means no limit.
func WithRateLimit(perMinute int) Option {
	return func(a *API) error {
		if perMinute < 0 {
			return fmt.Errorf("requests per minute must not be negative, got %d", perMinute)
		}
		if perMinute > 0 {
			a.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
		}
		return nil
	}
}

func WithUserAgent(ua string) Option {
	return func(a *API) error {
		a.UserAgent = ua
		return nil
	}
}

// AssumeUser returns a copy of the client that acts as the member with the given email.  The
// receiver is left untouched; an empty email gives back the token's own identity.
func (api *API) AssumeUser(email string) Service {
	clone := *api
	clone.assumedUser = email
	return &clone
}

func (api *API) AssumedUser() string {
	return api.assumedUser
}

func (api *API) AccessToken() string {
	return api.token
}
