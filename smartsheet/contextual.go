package smartsheet

import (
	"context"
	"io"
)

// ContextualizingService wraps every failure of its delegate in an ItemError saying which item
// was being fetched.
type ContextualizingService struct {
	delegate Service
}

var _ Service = (*ContextualizingService)(nil)

func NewContextualizingService(delegate Service) *ContextualizingService {
	return &ContextualizingService{delegate: delegate}
}

func (s *ContextualizingService) GetUsers(ctx context.Context, opts UsersQuery) (*UsersPage, error) {
	page, err := s.delegate.GetUsers(ctx, opts)
	if err != nil {
		return nil, &ItemError{Type: ItemUsers, Name: "page", ID: int64(opts.Page), Err: err}
	}
	return page, nil
}

func (s *ContextualizingService) GetHome(ctx context.Context) (*Home, error) {
	home, err := s.delegate.GetHome(ctx)
	if err != nil {
		return nil, &ItemError{Type: ItemHome, Name: s.delegate.AssumedUser(), Err: err}
	}
	return home, nil
}

func (s *ContextualizingService) GetSheet(ctx context.Context, name string, id int64) (*Sheet, error) {
	sheet, err := s.delegate.GetSheet(ctx, name, id)
	if err != nil {
		return nil, &ItemError{Type: ItemSheet, Name: name, ID: id, Err: err}
	}
	return sheet, nil
}

func (s *ContextualizingService) GetAttachment(ctx context.Context, name string, id int64, sheetName string, sheetID int64) (*Attachment, error) {
	attachment, err := s.delegate.GetAttachment(ctx, name, id, sheetName, sheetID)
	if err != nil {
		return nil, &ItemError{
			Type:       ItemAttachment,
			Name:       name,
			ID:         id,
			ParentType: ItemSheet,
			ParentName: sheetName,
			Err:        err,
		}
	}
	return attachment, nil
}

func (s *ContextualizingService) ExportSheet(ctx context.Context, name string, id int64) (io.ReadCloser, error) {
	body, err := s.delegate.ExportSheet(ctx, name, id)
	if err != nil {
		return nil, &ItemError{Type: ItemSheet, Name: name, ID: id, Err: err}
	}
	return body, nil
}

func (s *ContextualizingService) OpenContent(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	return s.delegate.OpenContent(ctx, rawURL)
}

func (s *ContextualizingService) AssumeUser(email string) Service {
	return &ContextualizingService{delegate: s.delegate.AssumeUser(email)}
}

func (s *ContextualizingService) AssumedUser() string { return s.delegate.AssumedUser() }

func (s *ContextualizingService) AccessToken() string { return s.delegate.AccessToken() }

// NewResilientService stacks the decorators the backup uses: retries outermost, so that each
// attempt's failure already names the item it was about.
func NewResilientService(api Service, opts RetryOptions) Service {
	return NewRetryingService(NewContextualizingService(api), opts)
}
