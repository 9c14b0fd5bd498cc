package backend

import (
	"context"
	"strings"
	"time"

	"github.com/aora/backend/internal/appwrite"
	"github.com/aora/backend/internal/logging"
	"github.com/aora/backend/internal/models"
)

type userDocument struct {
	ID        string `json:"$id,omitempty"`
	AccountID string `json:"accountId"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	Avatar    string `json:"avatar"`
}

func (d userDocument) record() models.UserRecord {
	return models.UserRecord{
		ID:        d.ID,
		AccountID: d.AccountID,
		Email:     d.Email,
		Username:  d.Username,
		AvatarURL: d.Avatar,
	}
}

// CreateAccount registers an account, signs it in and stores its user
// document. A failure after the account exists leaves it without a document;
// such accounts are reported to the journal, never rolled back.
func (c *Client) CreateAccount(ctx context.Context, email, password, username string) (user models.UserRecord, err error) {
	const op = "createAccount"
	ctx, done := c.begin(ctx, op)
	defer func() { done(err) }()

	email = strings.TrimSpace(email)
	username = strings.TrimSpace(username)
	if email == "" || password == "" || username == "" {
		return models.UserRecord{}, opError(op, ErrAccountCreation, invalidArgument("email, password and username are required"))
	}

	account, err := c.svc.Accounts.CreateAccount(ctx, c.newID(), email, password, username)
	if err != nil {
		return models.UserRecord{}, opError(op, ErrAccountCreation, err)
	}

	avatarURL, err := c.svc.Avatars.InitialsURL(username)
	if err != nil {
		c.recordOrphan(ctx, account, models.StageAvatar, err)
		return models.UserRecord{}, opError(op, ErrAccountCreation, err)
	}

	if _, err := c.SignIn(ctx, email, password); err != nil {
		c.recordOrphan(ctx, account, models.StageSignIn, err)
		return models.UserRecord{}, opError(op, ErrAccountCreation, err)
	}

	attrs := userDocument{
		AccountID: account.ID,
		Email:     email,
		Username:  username,
		Avatar:    avatarURL,
	}
	doc, err := c.svc.Documents.CreateDocument(ctx, c.cfg.DatabaseID, c.cfg.UserCollectionID, c.newID(), attrs)
	if err != nil {
		c.recordOrphan(ctx, account, models.StageCreateDocument, err)
		return models.UserRecord{}, opError(op, ErrAccountCreation, err)
	}

	stored := attrs
	if err := doc.Decode(&stored); err != nil {
		logging.FromContext(ctx).Warn("user document payload unreadable", "document_id", doc.ID, "error", err)
		stored = attrs
	}
	stored.ID = doc.ID
	return stored.record(), nil
}

func (c *Client) recordOrphan(ctx context.Context, account models.Account, stage string, cause error) {
	logger := logging.FromContext(ctx)
	logger.Error("account left without user document",
		"account_id", account.ID,
		"stage", stage,
		"error", cause,
	)
	if c.journal == nil {
		return
	}

	orphan := models.OrphanedAccount{
		AccountID: account.ID,
		Email:     account.Email,
		Stage:     stage,
		Reason:    cause.Error(),
		CreatedAt: time.Now().UTC(),
	}
	// the entry must land even when the caller has gone away
	if err := c.journal.Record(context.WithoutCancel(ctx), orphan); err != nil {
		logger.Error("record orphaned account", "account_id", account.ID, "error", err)
	}
}

// SignIn exchanges credentials for a session, which becomes the client's
// active session.
func (c *Client) SignIn(ctx context.Context, email, password string) (session models.Session, err error) {
	const op = "signIn"
	ctx, done := c.begin(ctx, op)
	defer func() { done(err) }()

	session, err = c.svc.Accounts.CreateEmailPasswordSession(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return models.Session{}, opError(op, ErrAuth, err)
	}
	c.setSession(&session)
	return session, nil
}

// GetCurrentAccount returns the account bound to the active session.
func (c *Client) GetCurrentAccount(ctx context.Context) (account models.Account, err error) {
	const op = "getCurrentAccount"
	ctx, done := c.begin(ctx, op)
	defer func() { done(err) }()

	account, err = c.svc.Accounts.GetAccount(ctx)
	if err != nil {
		return models.Account{}, opError(op, ErrAuth, err)
	}
	return account, nil
}

// GetCurrentUser returns the user document of the active account. It reports
// false when there is no session, no document, or any call fails; the cause is
// logged and never returned.
func (c *Client) GetCurrentUser(ctx context.Context) (models.UserRecord, bool) {
	const op = "getCurrentUser"
	ctx, done := c.begin(ctx, op)
	var failure error
	defer func() { done(failure) }()

	logger := logging.FromContext(ctx)

	account, err := c.svc.Accounts.GetAccount(ctx)
	if err != nil {
		if appwrite.IsUnauthorized(err) {
			logger.Info("no active session", "error", err)
		} else {
			logger.Warn("resolve current account", "error", err)
			failure = opError(op, ErrRemoteCall, err)
		}
		return models.UserRecord{}, false
	}

	list, err := c.svc.Documents.ListDocuments(ctx, c.cfg.DatabaseID, c.cfg.UserCollectionID,
		appwrite.Equal("accountId", account.ID),
		appwrite.Limit(1),
	)
	if err != nil {
		logger.Warn("query user document", "account_id", account.ID, "error", err)
		failure = opError(op, ErrRemoteCall, err)
		return models.UserRecord{}, false
	}
	if len(list.Documents) == 0 {
		logger.Info("account has no user document", "account_id", account.ID)
		return models.UserRecord{}, false
	}

	var doc userDocument
	if err := list.Documents[0].Decode(&doc); err != nil {
		logger.Warn("decode user document", "document_id", list.Documents[0].ID, "error", err)
		failure = opError(op, ErrRemoteCall, err)
		return models.UserRecord{}, false
	}
	doc.ID = list.Documents[0].ID
	return doc.record(), true
}

// SignOut deletes the current session.
func (c *Client) SignOut(ctx context.Context) (err error) {
	const op = "signOut"
	ctx, done := c.begin(ctx, op)
	defer func() { done(err) }()

	if err := c.svc.Accounts.DeleteSession(ctx, "current"); err != nil {
		return opError(op, ErrAuth, err)
	}
	c.setSession(nil)
	return nil
}
