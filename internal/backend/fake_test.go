package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aora/backend/internal/appwrite"
	"github.com/aora/backend/internal/models"
)

type fakeAccount struct {
	account  models.Account
	password string
}

type fakeDocument struct {
	id        string
	createdAt time.Time
	attrs     map[string]any
}

// fakeRemote is an in-memory stand-in for the four remote services.
type fakeRemote struct {
	mu sync.Mutex

	accounts map[string]*fakeAccount
	current  string
	nextSeq  int

	documents map[string][]fakeDocument
	files     map[string][]byte
	clock     time.Time

	previewOpts []appwrite.PreviewOptions
	listCalls   int
	calls       int

	signInErr      error
	createDocErr   error
	bareDocuments  bool
	uploadErrs     map[string]error
	blockUploads   map[string]bool
	previewMissing bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		accounts:     make(map[string]*fakeAccount),
		documents:    make(map[string][]fakeDocument),
		files:        make(map[string][]byte),
		clock:        time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		uploadErrs:   make(map[string]error),
		blockUploads: make(map[string]bool),
	}
}

func (f *fakeRemote) services() Services {
	return Services{Accounts: f, Documents: f, Files: f, Avatars: f}
}

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeRemote) unauthorized() error {
	return &appwrite.Error{Code: http.StatusUnauthorized, Type: "general_unauthorized_scope", Message: "missing scope (account)"}
}

func (f *fakeRemote) CreateAccount(_ context.Context, userID, email, password, name string) (models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if _, exists := f.accounts[email]; exists {
		return models.Account{}, &appwrite.Error{Code: http.StatusConflict, Type: "user_already_exists", Message: "user already exists"}
	}
	acc := models.Account{ID: userID, Email: email, Name: name, CreatedAt: f.clock}
	f.accounts[email] = &fakeAccount{account: acc, password: password}
	return acc, nil
}

func (f *fakeRemote) CreateEmailPasswordSession(_ context.Context, email, password string) (models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if f.signInErr != nil {
		return models.Session{}, f.signInErr
	}
	acc, ok := f.accounts[email]
	if !ok || acc.password != password {
		return models.Session{}, &appwrite.Error{Code: http.StatusUnauthorized, Type: "user_invalid_credentials", Message: "invalid credentials"}
	}
	f.nextSeq++
	f.current = email
	return models.Session{
		ID:     fmt.Sprintf("session-%d", f.nextSeq),
		UserID: acc.account.ID,
		Secret: fmt.Sprintf("secret-%d", f.nextSeq),
		Expire: f.clock.Add(365 * 24 * time.Hour),
	}, nil
}

func (f *fakeRemote) GetAccount(context.Context) (models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if f.current == "" {
		return models.Account{}, f.unauthorized()
	}
	return f.accounts[f.current].account, nil
}

func (f *fakeRemote) DeleteSession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if sessionID != "current" || f.current == "" {
		return f.unauthorized()
	}
	f.current = ""
	return nil
}

func (f *fakeRemote) CreateDocument(_ context.Context, databaseID, collectionID, documentID string, data any) (appwrite.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if f.createDocErr != nil {
		return appwrite.Document{}, f.createDocErr
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return appwrite.Document{}, err
	}
	attrs := map[string]any{}
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return appwrite.Document{}, err
	}

	f.clock = f.clock.Add(time.Second)
	doc := fakeDocument{id: documentID, createdAt: f.clock, attrs: attrs}
	key := databaseID + "/" + collectionID
	f.documents[key] = append(f.documents[key], doc)
	if f.bareDocuments {
		return appwrite.Document{ID: documentID, CreatedAt: f.clock}, nil
	}
	return doc.toDocument()
}

func (d fakeDocument) toDocument() (appwrite.Document, error) {
	payload := map[string]any{"$id": d.id, "$createdAt": d.createdAt.Format(time.RFC3339Nano)}
	for k, v := range d.attrs {
		payload[k] = v
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return appwrite.Document{}, err
	}
	var doc appwrite.Document
	err = json.Unmarshal(raw, &doc)
	return doc, err
}

func (f *fakeRemote) ListDocuments(_ context.Context, databaseID, collectionID string, queries ...appwrite.Query) (appwrite.DocumentList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.listCalls++

	docs := append([]fakeDocument(nil), f.documents[databaseID+"/"+collectionID]...)
	limit := 25
	cursor := ""
	for _, q := range queries {
		switch q.Method {
		case "equal":
			docs = filterDocs(docs, func(d fakeDocument) bool {
				return fmt.Sprint(d.attrs[q.Attribute]) == fmt.Sprint(q.Values[0])
			})
		case "search":
			term := strings.ToLower(fmt.Sprint(q.Values[0]))
			docs = filterDocs(docs, func(d fakeDocument) bool {
				return strings.Contains(strings.ToLower(fmt.Sprint(d.attrs[q.Attribute])), term)
			})
		case "orderDesc":
			sort.SliceStable(docs, func(i, j int) bool { return docs[i].createdAt.After(docs[j].createdAt) })
		case "limit":
			limit = q.Values[0].(int)
		case "cursorAfter":
			cursor = q.Values[0].(string)
		default:
			return appwrite.DocumentList{}, fmt.Errorf("fake: unsupported query %s", q.Method)
		}
	}

	if cursor != "" {
		for i, d := range docs {
			if d.id == cursor {
				docs = docs[i+1:]
				break
			}
		}
	}
	total := len(docs)
	if len(docs) > limit {
		docs = docs[:limit]
	}

	list := appwrite.DocumentList{Total: total, Documents: []appwrite.Document{}}
	for _, d := range docs {
		doc, err := d.toDocument()
		if err != nil {
			return appwrite.DocumentList{}, err
		}
		list.Documents = append(list.Documents, doc)
	}
	return list, nil
}

func filterDocs(docs []fakeDocument, keep func(fakeDocument) bool) []fakeDocument {
	out := docs[:0:0]
	for _, d := range docs {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

func (f *fakeRemote) CreateFile(ctx context.Context, bucketID, fileID string, in appwrite.InputFile) (appwrite.File, error) {
	f.mu.Lock()
	f.calls++
	uploadErr := f.uploadErrs[in.Name]
	block := f.blockUploads[in.Name]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return appwrite.File{}, ctx.Err()
	}
	if uploadErr != nil {
		return appwrite.File{}, uploadErr
	}

	// Like the real service, a declared size is trusted as the length to read.
	var data []byte
	if in.Size > 0 {
		data = make([]byte, in.Size)
		if _, err := io.ReadFull(in.Reader, data); err != nil {
			return appwrite.File{}, err
		}
	} else {
		var err error
		if data, err = io.ReadAll(in.Reader); err != nil {
			return appwrite.File{}, err
		}
	}

	f.mu.Lock()
	f.files[fileID] = data
	f.mu.Unlock()
	return appwrite.File{ID: fileID, BucketID: bucketID, Name: in.Name, MimeType: in.MimeType, SizeOriginal: int64(len(data))}, nil
}

func (f *fakeRemote) FileViewURL(bucketID, fileID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.previewMissing {
		return "", nil
	}
	return fmt.Sprintf("https://fake.test/v1/storage/buckets/%s/files/%s/view", bucketID, fileID), nil
}

func (f *fakeRemote) FilePreviewURL(bucketID, fileID string, opts appwrite.PreviewOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.previewOpts = append(f.previewOpts, opts)
	if f.previewMissing {
		return "", nil
	}
	return fmt.Sprintf("https://fake.test/v1/storage/buckets/%s/files/%s/preview?width=%d", bucketID, fileID, opts.Width), nil
}

func (f *fakeRemote) InitialsURL(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return "https://fake.test/v1/avatars/initials?name=" + name, nil
}

// memOpener serves asset bytes from memory.
type memOpener struct {
	mu    sync.Mutex
	files map[string]string
	opens int
}

func (m *memOpener) Open(_ context.Context, uri string) (io.ReadCloser, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	content, ok := m.files[uri]
	if !ok {
		return nil, 0, fmt.Errorf("open %s: no such asset", uri)
	}
	return io.NopCloser(strings.NewReader(content)), int64(len(content)), nil
}

// streamOpener serves a single body without knowing its length.
type streamOpener struct {
	content string
}

func (s streamOpener) Open(context.Context, string) (io.ReadCloser, int64, error) {
	return io.NopCloser(strings.NewReader(s.content)), -1, nil
}

type journalStub struct {
	mu      sync.Mutex
	orphans []models.OrphanedAccount
}

func (j *journalStub) Record(_ context.Context, orphan models.OrphanedAccount) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.orphans = append(j.orphans, orphan)
	return nil
}

type metricsStub struct {
	mu  sync.Mutex
	ops map[string]int
}

func (m *metricsStub) RecordOperation(op string, _ error, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ops == nil {
		m.ops = make(map[string]int)
	}
	m.ops[op]++
}
