package appwrite

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
)

// ErrSizeMismatch indicates a reader that holds more bytes than its declared size.
var ErrSizeMismatch = errors.New("appwrite: file is longer than its declared size")

// InputFile is the content of a file to upload. Size may be zero when unknown,
// in which case the reader is buffered to find it.
type InputFile struct {
	Name     string
	MimeType string
	Size     int64
	Reader   io.Reader
}

// File is the stored file metadata returned by the storage service.
type File struct {
	ID             string `json:"$id"`
	BucketID       string `json:"bucketId"`
	Name           string `json:"name"`
	MimeType       string `json:"mimeType"`
	SizeOriginal   int64  `json:"sizeOriginal"`
	ChunksTotal    int    `json:"chunksTotal"`
	ChunksUploaded int    `json:"chunksUploaded"`
}

// PreviewOptions controls the image transformation applied by the preview endpoint.
type PreviewOptions struct {
	Width   int
	Height  int
	Gravity string
	Quality int
}

// CreateFile uploads in to bucketID under fileID. Files larger than the
// client's chunk size are sent as sequential Content-Range chunks.
func (c *Client) CreateFile(ctx context.Context, bucketID, fileID string, in InputFile) (File, error) {
	if bucketID == "" || fileID == "" {
		return File{}, errors.New("appwrite: bucket id and file id are required")
	}
	if in.Reader == nil {
		return File{}, errors.New("appwrite: file reader is required")
	}

	name := in.Name
	if name == "" {
		name = fileID
	}

	size := in.Size
	reader := in.Reader
	if size <= 0 {
		data, err := io.ReadAll(reader)
		if err != nil {
			return File{}, fmt.Errorf("appwrite: buffer file %s: %w", name, err)
		}
		size = int64(len(data))
		reader = bytes.NewReader(data)
	}
	if size == 0 {
		return File{}, fmt.Errorf("appwrite: file %s is empty", name)
	}

	path := "/storage/buckets/" + url.PathEscape(bucketID) + "/files"
	chunked := size > c.chunkSize
	buf := make([]byte, min(c.chunkSize, size))

	var (
		file     File
		uploadID string
	)
	for offset := int64(0); offset < size; {
		n, err := io.ReadFull(reader, buf[:min(c.chunkSize, size-offset)])
		if err != nil {
			return File{}, fmt.Errorf("appwrite: read %s at offset %d: %w", name, offset, err)
		}
		end := offset + int64(n) - 1
		if end+1 == size {
			if err := expectEOF(reader); err != nil {
				return File{}, fmt.Errorf("appwrite: upload %s: %w", name, err)
			}
		}

		body, contentType, err := multipartChunk(fileID, name, in.MimeType, buf[:n])
		if err != nil {
			return File{}, err
		}

		req, err := c.newRequest(ctx, http.MethodPost, path, nil, body, contentType)
		if err != nil {
			return File{}, err
		}
		if chunked {
			req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, end, size))
			if uploadID != "" {
				req.Header.Set("X-Appwrite-ID", uploadID)
			}
		}

		if _, err := c.send(req, "POST /storage/buckets/{bucketId}/files", &file); err != nil {
			return File{}, err
		}
		uploadID = file.ID
		offset = end + 1
	}

	return file, nil
}

// expectEOF fails unless r is exhausted, so the last chunk is never sent for a
// truncated file.
func expectEOF(r io.Reader) error {
	var extra [1]byte
	n, err := io.ReadFull(r, extra[:])
	switch {
	case n > 0:
		return ErrSizeMismatch
	case errors.Is(err, io.EOF):
		return nil
	default:
		return err
	}
}

func multipartChunk(fileID, name, mimeType string, chunk []byte) (io.Reader, string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	if err := w.WriteField("fileId", fileID); err != nil {
		return nil, "", fmt.Errorf("appwrite: write fileId field: %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(name)))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header.Set("Content-Type", mimeType)

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("appwrite: create file part: %w", err)
	}
	if _, err := part.Write(chunk); err != nil {
		return nil, "", fmt.Errorf("appwrite: write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("appwrite: close multipart body: %w", err)
	}

	return &body, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// FileViewURL returns the URL serving the original file content.
func (c *Client) FileViewURL(bucketID, fileID string) (string, error) {
	if bucketID == "" || fileID == "" {
		return "", errors.New("appwrite: bucket id and file id are required")
	}
	path := fmt.Sprintf("/storage/buckets/%s/files/%s/view", url.PathEscape(bucketID), url.PathEscape(fileID))
	return c.url(path, url.Values{"project": {c.projectID}}), nil
}

// FilePreviewURL returns the URL of a transformed image preview of the file.
func (c *Client) FilePreviewURL(bucketID, fileID string, opts PreviewOptions) (string, error) {
	if bucketID == "" || fileID == "" {
		return "", errors.New("appwrite: bucket id and file id are required")
	}

	query := url.Values{"project": {c.projectID}}
	if opts.Width > 0 {
		query.Set("width", strconv.Itoa(opts.Width))
	}
	if opts.Height > 0 {
		query.Set("height", strconv.Itoa(opts.Height))
	}
	if opts.Gravity != "" {
		query.Set("gravity", opts.Gravity)
	}
	if opts.Quality > 0 {
		query.Set("quality", strconv.Itoa(opts.Quality))
	}

	path := fmt.Sprintf("/storage/buckets/%s/files/%s/preview", url.PathEscape(bucketID), url.PathEscape(fileID))
	return c.url(path, query), nil
}
