package models

import "time"

// FileKind selects how an uploaded file is rendered back to callers.
type FileKind string

const (
	FileKindImage FileKind = "image"
	FileKindVideo FileKind = "video"
)

// Valid reports whether k is one of the supported kinds.
func (k FileKind) Valid() bool {
	return k == FileKindImage || k == FileKindVideo
}

// Account is the remote identity bound to a session.
type Account struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session represents an authenticated identity issued by the remote account service.
type Session struct {
	ID     string    `json:"id"`
	UserID string    `json:"userId"`
	Secret string    `json:"secret,omitempty"`
	Expire time.Time `json:"expire"`
}

// UserRecord is the profile document stored for every account.
type UserRecord struct {
	ID        string `json:"id"`
	AccountID string `json:"accountId"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar"`
}

// VideoPost is a published video with its thumbnail and generation prompt.
type VideoPost struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	ThumbnailURL string    `json:"thumbnail"`
	VideoURL     string    `json:"video"`
	Prompt       string    `json:"prompt"`
	CreatorID    string    `json:"creator"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UploadedAsset describes a binary waiting to be uploaded. URI points at the
// bytes: a local path, file://, s3:// or https:// location.
type UploadedAsset struct {
	Name      string `json:"name"`
	MimeType  string `json:"mimeType"`
	SizeBytes int64  `json:"size"`
	URI       string `json:"uri"`
}

// VideoForm carries the input for publishing a new video post.
type VideoForm struct {
	Title     string         `json:"title"`
	Prompt    string         `json:"prompt"`
	UserID    string         `json:"userId"`
	Thumbnail *UploadedAsset `json:"thumbnail"`
	Video     *UploadedAsset `json:"video"`
}

// Account creation stages at which a partially created account can be left behind.
const (
	StageAvatar         = "avatar"
	StageSignIn         = "sign_in"
	StageCreateDocument = "create_document"
)

// OrphanedAccount records an account whose registration stopped part way.
type OrphanedAccount struct {
	ID         string
	AccountID  string
	Email      string
	Stage      string
	Reason     string
	CreatedAt  time.Time
	ResolvedAt *time.Time
}
