package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aora/backend/internal/appwrite"
	"github.com/aora/backend/internal/logging"
	"github.com/aora/backend/internal/models"
)

const (
	// LatestPostsLimit bounds ListLatestPosts.
	LatestPostsLimit = 7

	listPageSize  = 100
	createdAtAttr = "$createdAt"
	titleAttr     = "title"
	creatorAttr   = "creator"
)

type postDocument struct {
	ID        string     `json:"$id,omitempty"`
	CreatedAt time.Time  `json:"$createdAt,omitempty"`
	Title     string     `json:"title"`
	Thumbnail string     `json:"thumbnail"`
	Video     string     `json:"video"`
	Prompt    string     `json:"prompt"`
	Creator   creatorRef `json:"creator"`
}

func (d postDocument) post() models.VideoPost {
	return models.VideoPost{
		ID:           d.ID,
		Title:        d.Title,
		ThumbnailURL: d.Thumbnail,
		VideoURL:     d.Video,
		Prompt:       d.Prompt,
		CreatorID:    string(d.Creator),
		CreatedAt:    d.CreatedAt,
	}
}

// creatorRef is the id of a post's creator. The remote returns either the bare
// id or, when the relationship is expanded, the user document.
type creatorRef string

func (r *creatorRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*r = ""
		return nil
	case len(data) > 0 && data[0] == '{':
		var doc struct {
			ID string `json:"$id"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("decode creator: %w", err)
		}
		*r = creatorRef(doc.ID)
		return nil
	default:
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return fmt.Errorf("decode creator: %w", err)
		}
		*r = creatorRef(id)
		return nil
	}
}

// CreateVideoPost uploads the thumbnail and the video concurrently and stores
// the post once both URLs are known. The first failed upload cancels the other
// and no document is written.
func (c *Client) CreateVideoPost(ctx context.Context, form models.VideoForm) (post models.VideoPost, err error) {
	const op = "createVideoPost"
	ctx, done := c.begin(ctx, op)
	defer func() { done(err) }()

	title := strings.TrimSpace(form.Title)
	switch {
	case title == "":
		return models.VideoPost{}, opError(op, ErrPostCreation, invalidArgument("title is required"))
	case strings.TrimSpace(form.UserID) == "":
		return models.VideoPost{}, opError(op, ErrPostCreation, invalidArgument("creator is required"))
	case form.Thumbnail == nil:
		return models.VideoPost{}, opError(op, ErrPostCreation, invalidArgument("thumbnail is required"))
	case form.Video == nil:
		return models.VideoPost{}, opError(op, ErrPostCreation, invalidArgument("video is required"))
	}

	var thumbnailURL, videoURL string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := c.UploadFile(gctx, form.Thumbnail, models.FileKindImage)
		thumbnailURL = u
		return err
	})
	g.Go(func() error {
		u, err := c.UploadFile(gctx, form.Video, models.FileKindVideo)
		videoURL = u
		return err
	})
	if err := g.Wait(); err != nil {
		return models.VideoPost{}, opError(op, ErrPostCreation, err)
	}

	attrs := postDocument{
		Title:     title,
		Thumbnail: thumbnailURL,
		Video:     videoURL,
		Prompt:    strings.TrimSpace(form.Prompt),
		Creator:   creatorRef(form.UserID),
	}
	doc, err := c.svc.Documents.CreateDocument(ctx, c.cfg.DatabaseID, c.cfg.VideoCollectionID, c.newID(), newPostAttributes(attrs))
	if err != nil {
		return models.VideoPost{}, opError(op, ErrPostCreation, err)
	}

	stored := attrs
	if err := doc.Decode(&stored); err != nil {
		logging.FromContext(ctx).Warn("post document payload unreadable", "document_id", doc.ID, "error", err)
		stored = attrs
	}
	stored.ID = doc.ID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = doc.CreatedAt
	}
	if stored.Creator == "" {
		stored.Creator = attrs.Creator
	}
	return stored.post(), nil
}

type postAttributes struct {
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
	Video     string `json:"video"`
	Prompt    string `json:"prompt"`
	Creator   string `json:"creator"`
}

func newPostAttributes(d postDocument) postAttributes {
	return postAttributes{
		Title:     d.Title,
		Thumbnail: d.Thumbnail,
		Video:     d.Video,
		Prompt:    d.Prompt,
		Creator:   string(d.Creator),
	}
}

// ListAllPosts returns every post, most recent first.
func (c *Client) ListAllPosts(ctx context.Context) (posts []models.VideoPost, err error) {
	const op = "listAllPosts"
	ctx, done := c.begin(ctx, op)
	defer func() { done(err) }()

	posts = []models.VideoPost{}
	cursor := ""
	for {
		queries := []appwrite.Query{appwrite.OrderDesc(createdAtAttr), appwrite.Limit(listPageSize)}
		if cursor != "" {
			queries = append(queries, appwrite.CursorAfter(cursor))
		}

		page, err := c.listPosts(ctx, queries...)
		if err != nil {
			return nil, opError(op, ErrRemoteCall, err)
		}
		posts = append(posts, page...)
		if len(page) < listPageSize {
			return posts, nil
		}
		cursor = page[len(page)-1].ID
	}
}

// ListLatestPosts returns the most recent posts, at most LatestPostsLimit.
func (c *Client) ListLatestPosts(ctx context.Context) (posts []models.VideoPost, err error) {
	const op = "listLatestPosts"
	ctx, done := c.begin(ctx, op)
	defer func() { done(err) }()

	posts, err = c.listPosts(ctx, appwrite.OrderDesc(createdAtAttr), appwrite.Limit(LatestPostsLimit))
	if err != nil {
		return nil, opError(op, ErrRemoteCall, err)
	}
	if len(posts) > LatestPostsLimit {
		posts = posts[:LatestPostsLimit]
	}
	return posts, nil
}

// ListUserPosts returns the posts created by userID.
func (c *Client) ListUserPosts(ctx context.Context, userID string) (posts []models.VideoPost, err error) {
	const op = "listUserPosts"
	ctx, done := c.begin(ctx, op)
	defer func() { done(err) }()

	if strings.TrimSpace(userID) == "" {
		return nil, opError(op, ErrInvalidArgument, errors.New("user id is required"))
	}

	posts, err = c.listPosts(ctx, appwrite.Equal(creatorAttr, userID))
	if err != nil {
		return nil, opError(op, ErrRemoteCall, err)
	}
	return posts, nil
}

// SearchPosts returns the posts whose title matches query. No match yields an
// empty slice.
func (c *Client) SearchPosts(ctx context.Context, query string) (posts []models.VideoPost, err error) {
	const op = "searchPosts"
	ctx, done := c.begin(ctx, op)
	defer func() { done(err) }()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, opError(op, ErrInvalidArgument, errors.New("search query is required"))
	}

	posts, err = c.listPosts(ctx, appwrite.Search(titleAttr, query))
	if err != nil {
		return nil, opError(op, ErrRemoteCall, err)
	}
	return posts, nil
}

func (c *Client) listPosts(ctx context.Context, queries ...appwrite.Query) ([]models.VideoPost, error) {
	list, err := c.svc.Documents.ListDocuments(ctx, c.cfg.DatabaseID, c.cfg.VideoCollectionID, queries...)
	if err != nil {
		return nil, err
	}

	posts := make([]models.VideoPost, 0, len(list.Documents))
	for _, doc := range list.Documents {
		var attrs postDocument
		if err := doc.Decode(&attrs); err != nil {
			return nil, fmt.Errorf("decode post %s: %w", doc.ID, err)
		}
		attrs.ID = doc.ID
		if attrs.CreatedAt.IsZero() {
			attrs.CreatedAt = doc.CreatedAt
		}
		posts = append(posts, attrs.post())
	}
	return posts, nil
}
