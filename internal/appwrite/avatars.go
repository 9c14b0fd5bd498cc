package appwrite

import (
	"errors"
	"net/url"
	"strings"
)

// InitialsURL returns the URL of an avatar image rendered from the initials of
// name. The URL is computed locally; nothing is stored remotely.
func (c *Client) InitialsURL(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("appwrite: avatar name is required")
	}
	return c.url("/avatars/initials", url.Values{
		"name":    {name},
		"project": {c.projectID},
	}), nil
}
