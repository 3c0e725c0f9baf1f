package smartsheet

import (
	"context"
	"io"
)

// Service is everything the backup needs from the content service.  API talks to the real thing;
// RetryingService and ContextualizingService decorate any Service with one extra concern each.
//
// Names are passed alongside IDs purely so failures can say which item they were about.
type Service interface {
	GetUsers(ctx context.Context, opts UsersQuery) (*UsersPage, error)
	GetHome(ctx context.Context) (*Home, error)
	GetSheet(ctx context.Context, name string, id int64) (*Sheet, error)
	GetAttachment(ctx context.Context, name string, id int64, sheetName string, sheetID int64) (*Attachment, error)

	// ExportSheet streams the sheet rendered as an Excel workbook.
	ExportSheet(ctx context.Context, name string, id int64) (io.ReadCloser, error)
	// OpenContent opens a download URL previously handed out in an Attachment.
	OpenContent(ctx context.Context, rawURL string) (io.ReadCloser, error)

	// AssumeUser returns a Service acting as the given member.  It never changes the receiver.
	AssumeUser(email string) Service
	AssumedUser() string
	AccessToken() string
}

var _ Service = (*API)(nil)
