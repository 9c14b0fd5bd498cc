package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"github.com/docker/go-units"
	"github.com/go-chi/chi/v5"

	"github.com/aora/backend/internal/logging"
	"github.com/aora/backend/internal/models"
	"github.com/aora/backend/internal/storage"
)

const maxFieldBytes = 64 * 1024

// VideoHandler provides the video post endpoints.
type VideoHandler struct {
	Backends      BackendFactory
	Sanitizer     Sanitizer
	Objects       ObjectPolicy
	MaxUploadSize int64
	TempDir       string
}

// Create handles POST /api/v1/videos with a multipart body carrying title,
// prompt, thumbnail and video parts.
func (h VideoHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.MaxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadSize)
	}

	reader, err := r.MultipartReader()
	if err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "expected multipart/form-data body"})
		return
	}

	form, cleanup, err := h.readForm(reader)
	defer cleanup()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondJSON(ctx, w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": fmt.Sprintf("upload exceeds %s", units.HumanSize(float64(tooLarge.Limit))),
			})
			return
		}
		logger.Warn("invalid video upload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid multipart body"})
		return
	}

	h.publish(w, r, form)
}

// Import handles POST /api/v1/videos/import, publishing assets that already
// live in object storage or behind an https URL.
func (h VideoHandler) Import(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req importRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxFieldBytes)).Decode(&req); err != nil {
		logging.FromContext(ctx).Warn("invalid import payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	for _, asset := range []*models.UploadedAsset{req.Thumbnail, req.Video} {
		if asset == nil {
			continue
		}
		scheme, err := storage.Scheme(asset.URI)
		if err != nil || (scheme != "s3" && scheme != "https") {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "asset uri must use s3:// or https://"})
			return
		}
		if scheme == "s3" && !h.objectAllowed(asset.URI) {
			logging.FromContext(ctx).Warn("refused s3 import", "uri", asset.URI)
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "asset location is not allowed"})
			return
		}
	}

	h.publish(w, r, models.VideoForm{
		Title:     req.Title,
		Prompt:    req.Prompt,
		Thumbnail: req.Thumbnail,
		Video:     req.Video,
	})
}

func (h VideoHandler) objectAllowed(uri string) bool {
	return h.Objects != nil && h.Objects.Check(uri) == nil
}

func (h VideoHandler) publish(w http.ResponseWriter, r *http.Request, form models.VideoForm) {
	ctx := r.Context()
	b, ok := backendFor(ctx, w, h.Backends)
	if !ok {
		return
	}

	user, found := b.GetCurrentUser(ctx)
	if !found {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "no user profile for session"})
		return
	}

	form.UserID = user.ID
	form.Title = h.sanitize(form.Title)
	form.Prompt = h.sanitize(form.Prompt)

	post, err := b.CreateVideoPost(ctx, form)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, postResponse{Post: post})
}

// List handles GET /api/v1/videos. A q parameter turns the listing into a
// title search.
func (h VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	b, ok := backendFor(ctx, w, h.Backends)
	if !ok {
		return
	}

	var (
		posts []models.VideoPost
		err   error
	)
	if r.URL.Query().Has("q") {
		posts, err = b.SearchPosts(ctx, r.URL.Query().Get("q"))
	} else {
		posts, err = b.ListAllPosts(ctx)
	}
	h.respondPosts(w, r, posts, err)
}

// Latest handles GET /api/v1/videos/latest.
func (h VideoHandler) Latest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	b, ok := backendFor(ctx, w, h.Backends)
	if !ok {
		return
	}
	posts, err := b.ListLatestPosts(ctx)
	h.respondPosts(w, r, posts, err)
}

// ByUser handles GET /api/v1/users/{userID}/videos.
func (h VideoHandler) ByUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	b, ok := backendFor(ctx, w, h.Backends)
	if !ok {
		return
	}
	posts, err := b.ListUserPosts(ctx, chi.URLParam(r, "userID"))
	h.respondPosts(w, r, posts, err)
}

func (h VideoHandler) respondPosts(w http.ResponseWriter, r *http.Request, posts []models.VideoPost, err error) {
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	if posts == nil {
		posts = []models.VideoPost{}
	}
	respondJSON(r.Context(), w, http.StatusOK, postsResponse{Posts: posts})
}

func (h VideoHandler) sanitize(raw string) string {
	if h.Sanitizer == nil {
		return strings.TrimSpace(raw)
	}
	return h.Sanitizer.Sanitize(raw)
}

// readForm spools file parts to temporary files. The returned cleanup removes
// them and is always safe to call.
func (h VideoHandler) readForm(reader *multipart.Reader) (models.VideoForm, func(), error) {
	var (
		form  models.VideoForm
		paths []string
	)
	cleanup := func() {
		for _, path := range paths {
			_ = os.Remove(path)
		}
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return form, cleanup, nil
		}
		if err != nil {
			return form, cleanup, err
		}

		switch name := part.FormName(); name {
		case "title", "prompt":
			value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
			if err != nil {
				return form, cleanup, err
			}
			if name == "title" {
				form.Title = string(value)
			} else {
				form.Prompt = string(value)
			}
		case "thumbnail", "video":
			asset, err := h.spool(part)
			if asset != nil {
				paths = append(paths, asset.URI)
			}
			if err != nil {
				return form, cleanup, err
			}
			if name == "thumbnail" {
				form.Thumbnail = asset
			} else {
				form.Video = asset
			}
		}
		_ = part.Close()
	}
}

func (h VideoHandler) spool(part *multipart.Part) (*models.UploadedAsset, error) {
	file, err := os.CreateTemp(h.TempDir, "aora-upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	asset := &models.UploadedAsset{
		Name:     part.FileName(),
		MimeType: part.Header.Get("Content-Type"),
		URI:      file.Name(),
	}
	if asset.Name == "" {
		asset.Name = part.FormName()
	}
	if mediaType, _, err := mime.ParseMediaType(asset.MimeType); err == nil {
		asset.MimeType = mediaType
	}

	n, err := io.Copy(file, part)
	closeErr := file.Close()
	if err != nil {
		return asset, err
	}
	if closeErr != nil {
		return asset, closeErr
	}
	asset.SizeBytes = n
	return asset, nil
}

type importRequest struct {
	Title     string                `json:"title"`
	Prompt    string                `json:"prompt"`
	Thumbnail *models.UploadedAsset `json:"thumbnail"`
	Video     *models.UploadedAsset `json:"video"`
}

type postResponse struct {
	Post models.VideoPost `json:"post"`
}

type postsResponse struct {
	Posts []models.VideoPost `json:"posts"`
}
