package smartsheet

// UsersQuery pages through the organization's members.
type UsersQuery struct {
	Page     int `url:"page,omitempty"`
	PageSize int `url:"pageSize,omitempty"`
}

// HomeQuery controls what the home listing includes.
type HomeQuery struct {
	Include []string `url:"include,omitempty" del:","`
}

// SheetQuery identifies one sheet and what to embed in the response.
type SheetQuery struct {
	ID      int64    `url:"-"`
	Include []string `url:"include,omitempty" del:","`
}

// AttachmentQuery identifies one attachment on a sheet.
type AttachmentQuery struct {
	SheetID int64 `url:"-"`
	ID      int64 `url:"-"`
}
