package smartsheet

// UserStatus is the activation state of an organization member.
type UserStatus string

const (
	StatusActive   UserStatus = "ACTIVE"
	StatusPending  UserStatus = "PENDING"
	StatusDeclined UserStatus = "DECLINED"
)

// AccessLevel describes what the acting identity may do with a sheet.
type AccessLevel string

const (
	AccessOwner       AccessLevel = "OWNER"
	AccessAdmin       AccessLevel = "ADMIN"
	AccessEditorShare AccessLevel = "EDITOR_SHARE"
	AccessEditor      AccessLevel = "EDITOR"
	AccessViewer      AccessLevel = "VIEWER"
)

// AttachmentType tells binary uploads apart from links to other services.
type AttachmentType string

const (
	AttachmentFile        AttachmentType = "FILE"
	AttachmentLink        AttachmentType = "LINK"
	AttachmentGoogleDrive AttachmentType = "GOOGLE_DRIVE"
	AttachmentDropbox     AttachmentType = "DROPBOX"
	AttachmentBox         AttachmentType = "BOX_COM"
	AttachmentEvernote    AttachmentType = "EVERNOTE"
	AttachmentEgnyte      AttachmentType = "EGNYTE"
	AttachmentOneDrive    AttachmentType = "ONEDRIVE"
)

type User struct {
	ID        int64      `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Admin     bool       `json:"admin"`
	Status    UserStatus `json:"status"`
}

// Home is the root of one member's content tree.
type Home struct {
	Sheets     []Sheet     `json:"sheets"`
	Folders    []Folder    `json:"folders"`
	Workspaces []Workspace `json:"workspaces"`
}

type Folder struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Sheets  []Sheet  `json:"sheets"`
	Folders []Folder `json:"folders"`
}

// Workspace is a folder that lives at the root of the tree and can be shared as a unit.
type Workspace struct {
	Folder
	AccessLevel AccessLevel `json:"accessLevel"`
}

type Sheet struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	AccessLevel AccessLevel  `json:"accessLevel"`
	Permalink   string       `json:"permalink"`
	Rows        []Row        `json:"rows"`
	Discussions []Discussion `json:"discussions"`
	Attachments []Attachment `json:"attachments"`
}

type Row struct {
	ID          int64        `json:"id"`
	RowNumber   int          `json:"rowNumber"`
	Attachments []Attachment `json:"attachments"`
	Discussions []Discussion `json:"discussions"`
}

type Discussion struct {
	ID                 int64        `json:"id"`
	Title              string       `json:"title"`
	CommentAttachments []Attachment `json:"commentAttachments"`
}

// Attachment metadata.  URL is only valid for a couple of minutes after it is issued, so it has to
// be refreshed with GetAttachment right before the bytes are fetched.
type Attachment struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	AttachmentType AttachmentType `json:"attachmentType"`
	MimeType       string         `json:"mimeType"`
	SizeInKb       int64          `json:"sizeInKb"`
	URL            string         `json:"url"`
	URLExpiresInMs int64          `json:"urlExpiresInMillis"`
}
