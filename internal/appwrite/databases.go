package appwrite

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Document is a stored record. Meta attributes are decoded into fields; the
// full payload is kept so callers can decode their own attributes.
type Document struct {
	ID           string    `json:"$id"`
	CollectionID string    `json:"$collectionId"`
	DatabaseID   string    `json:"$databaseId"`
	CreatedAt    time.Time `json:"$createdAt"`
	UpdatedAt    time.Time `json:"$updatedAt"`

	raw json.RawMessage
}

// UnmarshalJSON keeps the raw payload next to the decoded meta attributes.
func (d *Document) UnmarshalJSON(data []byte) error {
	type meta Document
	var m meta
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*d = Document(m)
	d.raw = append(json.RawMessage(nil), data...)
	return nil
}

// Decode unmarshals the document attributes into v.
func (d Document) Decode(v any) error {
	if len(d.raw) == 0 {
		return fmt.Errorf("appwrite: document %q has no payload", d.ID)
	}
	return json.Unmarshal(d.raw, v)
}

// DocumentList is one page of a listing.
type DocumentList struct {
	Total     int        `json:"total"`
	Documents []Document `json:"documents"`
}

// CreateDocument stores data as a new document with the given id.
func (c *Client) CreateDocument(ctx context.Context, databaseID, collectionID, documentID string, data any) (Document, error) {
	path, err := documentsPath(databaseID, collectionID)
	if err != nil {
		return Document{}, err
	}

	req, err := c.newJSONRequest(ctx, http.MethodPost, path, map[string]any{
		"documentId": documentID,
		"data":       data,
	})
	if err != nil {
		return Document{}, err
	}

	var doc Document
	if _, err := c.send(req, "POST /databases/{databaseId}/collections/{collectionId}/documents", &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// ListDocuments returns the documents matching queries.
func (c *Client) ListDocuments(ctx context.Context, databaseID, collectionID string, queries ...Query) (DocumentList, error) {
	path, err := documentsPath(databaseID, collectionID)
	if err != nil {
		return DocumentList{}, err
	}

	values := url.Values{}
	for _, q := range queries {
		values.Add("queries[]", q.String())
	}

	req, err := c.newRequest(ctx, http.MethodGet, path, values, nil, "")
	if err != nil {
		return DocumentList{}, err
	}

	var list DocumentList
	if _, err := c.send(req, "GET /databases/{databaseId}/collections/{collectionId}/documents", &list); err != nil {
		return DocumentList{}, err
	}
	if list.Documents == nil {
		list.Documents = []Document{}
	}
	return list, nil
}

func documentsPath(databaseID, collectionID string) (string, error) {
	if databaseID == "" || collectionID == "" {
		return "", fmt.Errorf("appwrite: database id and collection id are required")
	}
	return fmt.Sprintf("/databases/%s/collections/%s/documents", url.PathEscape(databaseID), url.PathEscape(collectionID)), nil
}
