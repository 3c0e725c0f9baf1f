package smartsheet

import (
	"fmt"
	"net/url"

	"github.com/google/go-querystring/query"
)

// getUsersEndpoint lists the organization's members, one page at a time:
// https://smartsheet.redoc.ly/tag/users#operation/list-users
func (a *API) getUsersEndpoint(opts UsersQuery) (*url.URL, error) {
	if opts.Page < 0 || opts.PageSize < 0 {
		return nil, fmt.Errorf("smartsheet: page and pageSize must not be negative")
	}

	ep, err := a.resolveEndpoint("users")
	if err != nil {
		return nil, fmt.Errorf("smartsheet: couldn't resolve endpoint: %w", err)
	}

	v, err := query.Values(opts)
	if err != nil {
		return nil, fmt.Errorf("smartsheet: couldn't encode query params: %w", err)
	}
	ep.RawQuery = v.Encode()

	return ep, nil
}

// getHomeEndpoint returns the acting member's whole content tree.
func (a *API) getHomeEndpoint(opts HomeQuery) (*url.URL, error) {
	ep, err := a.resolveEndpoint("home")
	if err != nil {
		return nil, fmt.Errorf("smartsheet: couldn't resolve endpoint: %w", err)
	}

	v, err := query.Values(opts)
	if err != nil {
		return nil, fmt.Errorf("smartsheet: couldn't encode query params: %w", err)
	}
	ep.RawQuery = v.Encode()

	return ep, nil
}

// getSheetEndpoint returns one sheet.  Depending on the Accept header this is either the JSON
// details or an export of the whole sheet:
// https://smartsheet.redoc.ly/tag/sheets#operation/getSheet
func (a *API) getSheetEndpoint(opts SheetQuery) (*url.URL, error) {
	if opts.ID < 1 {
		return nil, fmt.Errorf("smartsheet: please provide ID to get sheet")
	}

	ep, err := a.resolveEndpoint(fmt.Sprintf("sheets/%d", opts.ID))
	if err != nil {
		return nil, fmt.Errorf("smartsheet: couldn't resolve endpoint: %w", err)
	}

	v, err := query.Values(opts)
	if err != nil {
		return nil, fmt.Errorf("smartsheet: couldn't encode query params: %w", err)
	}
	ep.RawQuery = v.Encode()

	return ep, nil
}

// getAttachmentEndpoint returns one attachment's metadata, including a fresh download URL:
// https://smartsheet.redoc.ly/tag/attachments#operation/attachments-get
func (a *API) getAttachmentEndpoint(opts AttachmentQuery) (*url.URL, error) {
	if opts.ID < 1 || opts.SheetID < 1 {
		return nil, fmt.Errorf("smartsheet: please provide sheet ID and attachment ID to get attachment")
	}

	ep, err := a.resolveEndpoint(fmt.Sprintf("sheets/%d/attachments/%d", opts.SheetID, opts.ID))
	if err != nil {
		return nil, fmt.Errorf("smartsheet: couldn't resolve endpoint: %w", err)
	}

	return ep, nil
}

func (a *API) resolveEndpoint(relative string) (*url.URL, error) {
	rel, err := url.Parse(relative)
	if err != nil {
		return nil, fmt.Errorf("smartsheet: couldn't parse endpoint %q: %w", relative, err)
	}
	return a.BaseURI.ResolveReference(rel), nil
}
