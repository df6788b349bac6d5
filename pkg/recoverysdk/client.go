package recoverysdk

import (
	"net/http"
	"strings"
	"time"
)

// CSRFHeader carries the magic link's anti-forgery token on every
// flow-scoped request. The server rejects requests where it is missing or
// does not match the link.
const CSRFHeader = "X-Pwd-Csrf-Token"

// Client is a client for the recovery endpoints of the auth server.
// It provides unauthenticated operations and creates flow-scoped Sessions.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a recovery client for the given server base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Session binds a Client to one magic-link recovery flow. The identity, the
// magic-link id and the anti-forgery token are immutable for the lifetime of
// the flow instance.
type Session struct {
	client      *Client
	identityID  string
	magicLinkID string
	csrfToken   string
}

// NewSession creates a flow-scoped session for the given identity and
// magic link.
func (c *Client) NewSession(identityID, magicLinkID, csrfToken string) *Session {
	return &Session{
		client:      c,
		identityID:  identityID,
		magicLinkID: magicLinkID,
		csrfToken:   csrfToken,
	}
}

// IdentityID returns the identity this session acts for.
func (s *Session) IdentityID() string { return s.identityID }
