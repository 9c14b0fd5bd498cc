package backend

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	units "github.com/docker/go-units"

	"github.com/aora/backend/internal/appwrite"
	"github.com/aora/backend/internal/logging"
	"github.com/aora/backend/internal/models"
)

// Image previews are always rendered at these settings.
const (
	previewWidth   = 2000
	previewHeight  = 2000
	previewGravity = "top"
	previewQuality = 100
)

// UploadFile stores the asset in the bucket and returns its display URL. A nil
// asset is not an error: the empty URL means there was nothing to upload.
func (c *Client) UploadFile(ctx context.Context, asset *models.UploadedAsset, kind models.FileKind) (fileURL string, err error) {
	if asset == nil {
		return "", nil
	}

	const op = "uploadFile"
	ctx, done := c.begin(ctx, op)
	defer func() { done(err) }()

	if !kind.Valid() {
		return "", opError(op, ErrUpload, invalidArgument("unsupported file kind %q", kind))
	}
	if strings.TrimSpace(asset.URI) == "" {
		return "", opError(op, ErrUpload, invalidArgument("asset %q has no uri", asset.Name))
	}

	body, size, err := c.opener.Open(ctx, asset.URI)
	if err != nil {
		return "", opError(op, ErrUpload, err)
	}
	defer body.Close()

	if size < 0 {
		size = 0
	}
	name := asset.Name
	if name == "" {
		name = path.Base(asset.URI)
	}

	fileID := c.newID()
	logging.FromContext(ctx).Info("uploading asset",
		"file_id", fileID,
		"name", name,
		"kind", kind,
		"size", units.HumanSize(float64(size)),
	)

	file, err := c.svc.Files.CreateFile(ctx, c.cfg.BucketID, fileID, appwrite.InputFile{
		Name:     name,
		MimeType: asset.MimeType,
		Size:     size,
		Reader:   body,
	})
	if err != nil {
		return "", opError(op, ErrUpload, err)
	}
	if file.ID == "" {
		file.ID = fileID
	}

	fileURL, err = c.GetFilePreview(file.ID, kind)
	if err != nil {
		return "", opError(op, ErrUpload, err)
	}
	return fileURL, nil
}

// GetFilePreview derives the display URL of a stored file: the original for
// videos, a 2000x2000 top-anchored preview for images.
func (c *Client) GetFilePreview(fileID string, kind models.FileKind) (string, error) {
	const op = "getFilePreview"

	if strings.TrimSpace(fileID) == "" {
		return "", opError(op, ErrInvalidArgument, errors.New("file id is required"))
	}

	var (
		fileURL string
		err     error
	)
	switch kind {
	case models.FileKindVideo:
		fileURL, err = c.svc.Files.FileViewURL(c.cfg.BucketID, fileID)
	case models.FileKindImage:
		fileURL, err = c.svc.Files.FilePreviewURL(c.cfg.BucketID, fileID, appwrite.PreviewOptions{
			Width:   previewWidth,
			Height:  previewHeight,
			Gravity: previewGravity,
			Quality: previewQuality,
		})
	default:
		return "", opError(op, ErrInvalidArgument, fmt.Errorf("unsupported file kind %q", kind))
	}
	if err != nil {
		return "", opError(op, ErrPreview, err)
	}
	if fileURL == "" {
		return "", opError(op, ErrPreview, nil)
	}
	return fileURL, nil
}
