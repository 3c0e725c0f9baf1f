package smartsheet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const (
	acceptJSON  = "application/json"
	acceptExcel = "application/vnd.ms-excel"
)

func (api *API) GetUsers(ctx context.Context, opts UsersQuery) (*UsersPage, error) {
	ep, err := api.getUsersEndpoint(opts)
	if err != nil {
		return nil, fmt.Errorf("smartsheet: couldn't get users endpoint: %w", err)
	}

	var page UsersPage
	if err := api.getJSON(ctx, ep, &page); err != nil {
		return nil, err
	}

	return &page, nil
}

func (api *API) GetHome(ctx context.Context) (*Home, error) {
	ep, err := api.getHomeEndpoint(HomeQuery{})
	if err != nil {
		return nil, fmt.Errorf("smartsheet: couldn't get home endpoint: %w", err)
	}

	var home Home
	if err := api.getJSON(ctx, ep, &home); err != nil {
		return nil, err
	}

	return &home, nil
}

func (api *API) GetSheet(ctx context.Context, name string, id int64) (*Sheet, error) {
	ep, err := api.getSheetEndpoint(SheetQuery{
		ID:      id,
		Include: []string{"attachments", "discussions"},
	})
	if err != nil {
		return nil, fmt.Errorf("smartsheet: couldn't get sheet endpoint: %w", err)
	}

	var sheet Sheet
	if err := api.getJSON(ctx, ep, &sheet); err != nil {
		return nil, err
	}

	return &sheet, nil
}

func (api *API) GetAttachment(ctx context.Context, name string, id int64, sheetName string, sheetID int64) (*Attachment, error) {
	ep, err := api.getAttachmentEndpoint(AttachmentQuery{SheetID: sheetID, ID: id})
	if err != nil {
		return nil, fmt.Errorf("smartsheet: couldn't get attachment endpoint: %w", err)
	}

	var attachment Attachment
	if err := api.getJSON(ctx, ep, &attachment); err != nil {
		return nil, err
	}

	return &attachment, nil
}

func (api *API) ExportSheet(ctx context.Context, name string, id int64) (io.ReadCloser, error) {
	ep, err := api.getSheetEndpoint(SheetQuery{ID: id})
	if err != nil {
		return nil, fmt.Errorf("smartsheet: couldn't get sheet endpoint: %w", err)
	}

	response, err := api.do(ctx, ep, acceptExcel, true)
	if err != nil {
		return nil, err
	}

	return response.Body, nil
}

// OpenContent fetches an attachment download URL.  Those URLs are pre-signed, so no credentials
// are sent along.
func (api *API) OpenContent(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("smartsheet: couldn't parse download URL: %w", err)
	}

	response, err := api.do(ctx, u, "*/*", false)
	if err != nil {
		return nil, err
	}

	return response.Body, nil
}

func (api *API) getJSON(ctx context.Context, ep *url.URL, into any) error {
	response, err := api.do(ctx, ep, acceptJSON, true)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("smartsheet: couldn't read http response body: %w", err)
	}

	if err := json.Unmarshal(body, into); err != nil {
		return fmt.Errorf("smartsheet: couldn't parse json response: %w", err)
	}

	return nil
}

// do performs one GET and classifies the status.  On success the caller owns the response body.
func (api *API) do(ctx context.Context, u *url.URL, accept string, authenticated bool) (*http.Response, error) {
	if api.limiter != nil {
		if err := api.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("smartsheet: rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("smartsheet: couldn't instantiate http request: %w", err)
	}

	req.Header.Set("Accept", accept)
	if api.UserAgent != "" {
		req.Header.Set("User-Agent", api.UserAgent)
	}
	if authenticated {
		req.Header.Set("Authorization", "Bearer "+api.token)
		if api.assumedUser != "" {
			req.Header.Set("Assume-User", url.QueryEscape(api.assumedUser))
		}
	}

	response, err := api.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("smartsheet: couldn't perform http request: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return response, nil
	}

	// error bodies are small; read what's there so the message survives.
	defer response.Body.Close()
	var details errorResponse
	if body, err := io.ReadAll(io.LimitReader(response.Body, 64*1024)); err == nil {
		_ = json.Unmarshal(body, &details)
	}

	switch response.StatusCode {
	case http.StatusServiceUnavailable, http.StatusTooManyRequests:
		return nil, &ServiceUnavailableError{
			StatusCode: response.StatusCode,
			Status:     response.Status,
			Endpoint:   redact(u),
			Message:    details.Message,
		}
	}

	return nil, &HTTPError{
		StatusCode: response.StatusCode,
		Status:     response.Status,
		Endpoint:   redact(u),
		ErrorCode:  details.ErrorCode,
		Message:    details.Message,
	}
}

// redact drops the query string, which for download URLs carries the signature.
func redact(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	return c.String()
}
