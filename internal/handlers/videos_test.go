package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/aora/backend/internal/models"
	"github.com/aora/backend/internal/security"
)

var recordAda = models.UserRecord{ID: "user-1", AccountID: "user-1", Email: "a@example.com", Username: "ada"}

type filePart struct {
	field, name, mimeType, content string
}

func multipartBody(t *testing.T, fields map[string]string, files ...filePart) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, f := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="`+f.name+`"`)
		header.Set("Content-Type", f.mimeType)
		part, err := w.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write([]byte(f.content)); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func TestVideoHandlerCreate(t *testing.T) {
	b := &fakeBackend{user: &recordAda}
	dir := t.TempDir()
	handler := VideoHandler{
		Backends:      b.factory(),
		Sanitizer:     security.NewTextSanitizer(),
		MaxUploadSize: 1 << 20,
		TempDir:       dir,
	}

	body, contentType := multipartBody(t,
		map[string]string{"title": "<b>Sunset</b> drive", "prompt": "a car at dusk"},
		filePart{"thumbnail", "thumb.png", "image/png", "png-bytes"},
		filePart{"video", "clip.mp4", "video/mp4", "mp4-bytes"},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/videos", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if len(b.forms) != 1 {
		t.Fatalf("expected one post to be created, got %d", len(b.forms))
	}
	form := b.forms[0]
	if form.Title != "Sunset drive" {
		t.Fatalf("expected sanitized title, got %q", form.Title)
	}
	if form.UserID != recordAda.ID {
		t.Fatalf("expected creator %q got %q", recordAda.ID, form.UserID)
	}
	if form.Thumbnail.MimeType != "image/png" || form.Thumbnail.SizeBytes != int64(len("png-bytes")) {
		t.Fatalf("unexpected thumbnail %+v", form.Thumbnail)
	}
	if b.contents["thumb.png"] != "png-bytes" || b.contents["clip.mp4"] != "mp4-bytes" {
		t.Fatalf("unexpected spooled contents %v", b.contents)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected spooled files to be removed, found %d", len(entries))
	}

	var resp postResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Post.VideoURL == "" || resp.Post.ThumbnailURL == "" {
		t.Fatalf("expected urls in response, got %+v", resp.Post)
	}
}

func TestVideoHandlerCreateMissingVideo(t *testing.T) {
	b := &fakeBackend{user: &recordAda}
	handler := VideoHandler{Backends: b.factory(), TempDir: t.TempDir()}

	body, contentType := multipartBody(t,
		map[string]string{"title": "t"},
		filePart{"thumbnail", "thumb.png", "image/png", "png"},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/videos", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestVideoHandlerCreateTooLarge(t *testing.T) {
	b := &fakeBackend{user: &recordAda}
	handler := VideoHandler{Backends: b.factory(), TempDir: t.TempDir(), MaxUploadSize: 512}

	body, contentType := multipartBody(t, nil,
		filePart{"thumbnail", "thumb.png", "image/png", "png"},
		filePart{"video", "clip.mp4", "video/mp4", strings.Repeat("x", 4096)},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/videos", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413 got %d", rec.Code)
	}
	if len(b.forms) != 0 {
		t.Fatal("no post should be created for an oversized upload")
	}
}

func TestVideoHandlerCreateRequiresProfile(t *testing.T) {
	b := &fakeBackend{}
	handler := VideoHandler{Backends: b.factory(), TempDir: t.TempDir()}

	body, contentType := multipartBody(t, map[string]string{"title": "t"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/videos", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 got %d", rec.Code)
	}
}

func TestVideoHandlerImport(t *testing.T) {
	cases := []struct {
		name     string
		videoURI string
		want     int
	}{
		{name: "s3", videoURI: "s3://media/clip.mp4", want: http.StatusCreated},
		{name: "https", videoURI: "https://media.example.com/clip.mp4", want: http.StatusCreated},
		{name: "local path", videoURI: "/etc/passwd", want: http.StatusBadRequest},
		{name: "file scheme", videoURI: "file:///etc/passwd", want: http.StatusBadRequest},
		{name: "plain http", videoURI: "http://media.example.com/clip.mp4", want: http.StatusBadRequest},
		{name: "unlisted bucket", videoURI: "s3://terraform-state/prod/terraform.tfstate", want: http.StatusBadRequest},
		{name: "key escape", videoURI: "s3://media/../company-private-backups/dump.sql", want: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := &fakeBackend{user: &recordAda}
			router := newTestRouter(b, nil)

			rec := doJSON(t, router, http.MethodPost, "/api/v1/videos/import", "secret-1", importRequest{
				Title:     "Imported",
				Thumbnail: &models.UploadedAsset{Name: "t.png", MimeType: "image/png", URI: "s3://media/t.png"},
				Video:     &models.UploadedAsset{Name: "v.mp4", MimeType: "video/mp4", URI: tc.videoURI},
			})
			if rec.Code != tc.want {
				t.Fatalf("expected status %d got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
			if tc.want != http.StatusCreated && len(b.forms) != 0 {
				t.Fatal("rejected import must not reach the backend")
			}
		})
	}
}

func TestVideoHandlerImportWithoutPolicyRefusesS3(t *testing.T) {
	b := &fakeBackend{user: &recordAda}
	r := chi.NewRouter()
	r.Post("/import", VideoHandler{Backends: b.factory()}.Import)

	rec := doJSON(t, r, http.MethodPost, "/import", "", importRequest{
		Title:     "Imported",
		Thumbnail: &models.UploadedAsset{Name: "t.png", MimeType: "image/png", URI: "https://media.example.com/t.png"},
		Video:     &models.UploadedAsset{Name: "v.mp4", MimeType: "video/mp4", URI: "s3://media/clip.mp4"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d: %s", rec.Code, rec.Body.String())
	}
	if len(b.forms) != 0 {
		t.Fatal("rejected import must not reach the backend")
	}
}

func TestVideoHandlerListing(t *testing.T) {
	posts := []models.VideoPost{
		{ID: "p1", Title: "one", CreatorID: "user-1"},
		{ID: "p2", Title: "two", CreatorID: "user-2"},
	}
	b := &fakeBackend{posts: posts}
	router := newTestRouter(b, nil)

	decode := func(rec *httptest.ResponseRecorder) []models.VideoPost {
		t.Helper()
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
		}
		var resp postsResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		return resp.Posts
	}

	if got := decode(doJSON(t, router, http.MethodGet, "/api/v1/videos", "", nil)); len(got) != 2 {
		t.Fatalf("expected 2 posts got %d", len(got))
	}
	if got := decode(doJSON(t, router, http.MethodGet, "/api/v1/videos/latest", "", nil)); len(got) != 2 {
		t.Fatalf("expected 2 posts got %d", len(got))
	}

	decode(doJSON(t, router, http.MethodGet, "/api/v1/videos?q=sunset", "", nil))
	if len(b.searched) != 1 || b.searched[0] != "sunset" {
		t.Fatalf("expected search for sunset, got %v", b.searched)
	}

	got := decode(doJSON(t, router, http.MethodGet, "/api/v1/users/user-2/videos", "", nil))
	if len(got) != 1 || got[0].ID != "p2" {
		t.Fatalf("expected only p2, got %+v", got)
	}

	rec := doJSON(t, router, http.MethodGet, "/api/v1/users/nobody/videos", "", nil)
	if strings.TrimSpace(rec.Body.String()) != `{"posts":[]}` {
		t.Fatalf("expected empty list, got %s", rec.Body.String())
	}
}
