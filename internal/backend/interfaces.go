package backend

import (
	"context"
	"io"
	"time"

	"github.com/aora/backend/internal/appwrite"
	"github.com/aora/backend/internal/models"
)

// Accounts is the identity and session capability of the remote service.
type Accounts interface {
	CreateAccount(ctx context.Context, userID, email, password, name string) (models.Account, error)
	CreateEmailPasswordSession(ctx context.Context, email, password string) (models.Session, error)
	GetAccount(ctx context.Context) (models.Account, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Documents is the document database capability.
type Documents interface {
	CreateDocument(ctx context.Context, databaseID, collectionID, documentID string, data any) (appwrite.Document, error)
	ListDocuments(ctx context.Context, databaseID, collectionID string, queries ...appwrite.Query) (appwrite.DocumentList, error)
}

// Files is the object storage capability.
type Files interface {
	CreateFile(ctx context.Context, bucketID, fileID string, in appwrite.InputFile) (appwrite.File, error)
	FileViewURL(bucketID, fileID string) (string, error)
	FilePreviewURL(bucketID, fileID string, opts appwrite.PreviewOptions) (string, error)
}

// Avatars derives avatar URLs locally.
type Avatars interface {
	InitialsURL(name string) (string, error)
}

// Services groups the remote capabilities used by the Client.
type Services struct {
	Accounts  Accounts
	Documents Documents
	Files     Files
	Avatars   Avatars
}

// ServicesFrom exposes every capability of an Appwrite client.
func ServicesFrom(c *appwrite.Client) Services {
	return Services{Accounts: c, Documents: c, Files: c, Avatars: c}
}

// AssetOpener resolves the bytes behind an UploadedAsset URI. A non-positive
// size means the size is unknown.
type AssetOpener interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, int64, error)
}

// Journal records accounts left without a user document.
type Journal interface {
	Record(ctx context.Context, orphan models.OrphanedAccount) error
}

// Metrics observes completed operations.
type Metrics interface {
	RecordOperation(op string, err error, duration time.Duration)
}
