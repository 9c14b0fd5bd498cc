package handlers

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/aora/backend/internal/backend"
	"github.com/aora/backend/internal/models"
)

type fakeBackend struct {
	mu       sync.Mutex
	secret   string
	session  *models.Session
	user     *models.UserRecord
	posts    []models.VideoPost
	err      error
	forms    []models.VideoForm
	contents map[string]string
	searched []string
}

func (f *fakeBackend) factory() BackendFactory {
	return func(secret string) (Backend, error) {
		f.mu.Lock()
		f.secret = secret
		f.mu.Unlock()
		return f, nil
	}
}

func (f *fakeBackend) CreateAccount(_ context.Context, email, _, username string) (models.UserRecord, error) {
	if f.err != nil {
		return models.UserRecord{}, f.err
	}
	f.session = &models.Session{ID: "sess-1", UserID: "user-1", Secret: "secret-1"}
	user := models.UserRecord{ID: "user-1", AccountID: "user-1", Email: email, Username: username}
	f.user = &user
	return user, nil
}

func (f *fakeBackend) SignIn(_ context.Context, _, _ string) (models.Session, error) {
	if f.err != nil {
		return models.Session{}, f.err
	}
	f.session = &models.Session{ID: "sess-2", UserID: "user-1", Secret: "secret-2"}
	return *f.session, nil
}

func (f *fakeBackend) GetCurrentAccount(context.Context) (models.Account, error) {
	if f.err != nil {
		return models.Account{}, f.err
	}
	return models.Account{ID: "user-1", Email: "a@example.com", Name: "ada"}, nil
}

func (f *fakeBackend) GetCurrentUser(context.Context) (models.UserRecord, bool) {
	if f.user == nil {
		return models.UserRecord{}, false
	}
	return *f.user, true
}

func (f *fakeBackend) SignOut(context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.session = nil
	return nil
}

func (f *fakeBackend) Session() (models.Session, bool) {
	if f.session == nil {
		return models.Session{}, false
	}
	return *f.session, true
}

func (f *fakeBackend) CreateVideoPost(_ context.Context, form models.VideoForm) (models.VideoPost, error) {
	f.forms = append(f.forms, form)
	if f.err != nil {
		return models.VideoPost{}, f.err
	}
	if form.Thumbnail == nil || form.Video == nil {
		return models.VideoPost{}, &backend.Error{Op: "CreateVideoPost", Kind: backend.ErrPostCreation, Err: backend.ErrInvalidArgument}
	}

	// read spooled uploads while they still exist
	f.contents = map[string]string{}
	for _, asset := range []*models.UploadedAsset{form.Thumbnail, form.Video} {
		if _, err := os.Stat(asset.URI); err != nil {
			continue
		}
		file, err := os.Open(asset.URI)
		if err != nil {
			return models.VideoPost{}, err
		}
		data, _ := io.ReadAll(file)
		_ = file.Close()
		f.contents[asset.Name] = string(data)
	}

	return models.VideoPost{
		ID:           fmt.Sprintf("post-%d", len(f.forms)),
		Title:        form.Title,
		Prompt:       form.Prompt,
		CreatorID:    form.UserID,
		ThumbnailURL: "https://cdn.example/thumb",
		VideoURL:     "https://cdn.example/video",
	}, nil
}

func (f *fakeBackend) ListAllPosts(context.Context) ([]models.VideoPost, error) {
	return f.posts, f.err
}

func (f *fakeBackend) ListLatestPosts(context.Context) ([]models.VideoPost, error) {
	return f.posts, f.err
}

func (f *fakeBackend) ListUserPosts(_ context.Context, userID string) ([]models.VideoPost, error) {
	if userID == "" {
		return nil, &backend.Error{Op: "ListUserPosts", Kind: backend.ErrRemoteCall, Err: backend.ErrInvalidArgument}
	}
	var out []models.VideoPost
	for _, p := range f.posts {
		if p.CreatorID == userID {
			out = append(out, p)
		}
	}
	return out, f.err
}

func (f *fakeBackend) SearchPosts(_ context.Context, query string) ([]models.VideoPost, error) {
	f.searched = append(f.searched, query)
	return f.posts, f.err
}

type trackerStub struct {
	remembered []models.Session
	revoked    []string
}

func (s *trackerStub) Remember(_ context.Context, session models.Session) error {
	s.remembered = append(s.remembered, session)
	return nil
}

func (s *trackerStub) Revoke(_ context.Context, secret string) {
	s.revoked = append(s.revoked, secret)
}

type denyLimiter struct{ keys []string }

func (l *denyLimiter) Allow(key string) bool {
	l.keys = append(l.keys, key)
	return false
}
