package appwrite

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/aora/backend/internal/models"
)

// ErrSessionSecretMissing indicates a session was created but no secret could be
// recovered from the response.
var ErrSessionSecretMissing = errors.New("appwrite: session secret missing from response")

type userPayload struct {
	ID        string    `json:"$id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"$createdAt"`
}

func (p userPayload) account() models.Account {
	return models.Account{ID: p.ID, Email: p.Email, Name: p.Name, CreatedAt: p.CreatedAt}
}

type sessionPayload struct {
	ID     string    `json:"$id"`
	UserID string    `json:"userId"`
	Expire time.Time `json:"expire"`
	Secret string    `json:"secret"`
}

// CreateAccount registers a new account under userID.
func (c *Client) CreateAccount(ctx context.Context, userID, email, password, name string) (models.Account, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/account", map[string]string{
		"userId":   userID,
		"email":    email,
		"password": password,
		"name":     name,
	})
	if err != nil {
		return models.Account{}, err
	}

	var payload userPayload
	if _, err := c.send(req, "POST /account", &payload); err != nil {
		return models.Account{}, err
	}
	if payload.ID == "" {
		return models.Account{}, errors.New("appwrite: account response missing id")
	}
	return payload.account(), nil
}

// CreateEmailPasswordSession exchanges credentials for a session and caches
// its secret on the client.
func (c *Client) CreateEmailPasswordSession(ctx context.Context, email, password string) (models.Session, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/account/sessions/email", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return models.Session{}, err
	}

	var payload sessionPayload
	resp, err := c.send(req, "POST /account/sessions/email", &payload)
	if err != nil {
		return models.Session{}, err
	}

	secret := payload.Secret
	if secret == "" {
		secret = c.secretFromResponse(resp)
	}
	if secret == "" {
		return models.Session{}, ErrSessionSecretMissing
	}
	c.session.set(secret)

	return models.Session{
		ID:     payload.ID,
		UserID: payload.UserID,
		Secret: secret,
		Expire: payload.Expire,
	}, nil
}

// secretFromResponse recovers the session secret from the session cookie, or
// from the X-Fallback-Cookies header used by clients without a cookie jar.
func (c *Client) secretFromResponse(resp *http.Response) string {
	name := "a_session_" + c.projectID
	for _, cookie := range resp.Cookies() {
		if cookie.Name == name || cookie.Name == name+"_legacy" {
			if value, err := url.QueryUnescape(cookie.Value); err == nil && value != "" {
				return value
			}
			return cookie.Value
		}
	}

	fallback := resp.Header.Get("X-Fallback-Cookies")
	if fallback == "" {
		return ""
	}
	var cookies map[string]string
	if err := json.Unmarshal([]byte(fallback), &cookies); err != nil {
		c.logger.Warn("unreadable fallback cookies header", "error", err)
		return ""
	}
	if value := cookies[name]; value != "" {
		return value
	}
	return cookies[name+"_legacy"]
}

// GetAccount returns the account bound to the cached session.
func (c *Client) GetAccount(ctx context.Context) (models.Account, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/account", nil, nil, "")
	if err != nil {
		return models.Account{}, err
	}

	var payload userPayload
	if _, err := c.send(req, "GET /account", &payload); err != nil {
		return models.Account{}, err
	}
	return payload.account(), nil
}

// DeleteSession revokes a session. Use "current" for the cached session, which
// is then dropped from the client.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		sessionID = "current"
	}
	req, err := c.newRequest(ctx, http.MethodDelete, "/account/sessions/"+url.PathEscape(sessionID), nil, nil, "")
	if err != nil {
		return err
	}

	if _, err := c.send(req, "DELETE /account/sessions/{sessionId}", nil); err != nil {
		return err
	}
	if sessionID == "current" {
		c.session.set("")
	}
	return nil
}
