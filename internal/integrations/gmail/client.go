// Package gmail adapts the Gmail REST API to the narrow surface the archiver
// needs: refresh-token authentication, paginated listing and full message
// retrieval.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"gmail-archiver/internal/domain"
)

const (
	DefaultUserID   = "me"
	DefaultPageSize = 500
	maxPageSize     = 500
)

// ErrMissingCredentials is returned by Resolve when a required secret is empty.
var ErrMissingCredentials = errors.New("gmail: missing credentials")

// StatusError carries the upstream HTTP status of a failed Gmail or token call.
type StatusError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gmail: %s: status %d: %v", e.Op, e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client resolves credentials into an authenticated Mailbox.
type Client struct {
	endpoint   oauth2.Endpoint
	userID     string
	pageSize   int64
	httpClient *http.Client
	svcOpts    []option.ClientOption
	log        *slog.Logger
}

type Option func(*Client)

// WithUserID sets the mailbox owner; "me" means the authenticated account.
func WithUserID(userID string) Option {
	return func(c *Client) {
		if userID = strings.TrimSpace(userID); userID != "" {
			c.userID = userID
		}
	}
}

// WithPageSize bounds the number of ids requested per list call.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 && n <= maxPageSize {
			c.pageSize = int64(n)
		}
	}
}

// WithTokenEndpoint overrides the OAuth2 token endpoint.
func WithTokenEndpoint(endpoint oauth2.Endpoint) Option {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// WithHTTPClient sets the base client used for both token refresh and API calls.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithServiceOptions appends options passed to the Gmail service constructor.
func WithServiceOptions(opts ...option.ClientOption) Option {
	return func(c *Client) {
		c.svcOpts = append(c.svcOpts, opts...)
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		endpoint: google.Endpoint,
		userID:   DefaultUserID,
		pageSize: DefaultPageSize,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve exchanges the refresh token for an access token and returns a
// Mailbox bound to it. The exchange happens eagerly so that a revoked or
// expired refresh token fails here rather than on the first list call.
func (c *Client) Resolve(ctx context.Context, creds domain.Credentials) (*Mailbox, error) {
	switch {
	case strings.TrimSpace(creds.ClientID) == "":
		return nil, fmt.Errorf("%w: client id", ErrMissingCredentials)
	case strings.TrimSpace(creds.ClientSecret) == "":
		return nil, fmt.Errorf("%w: client secret", ErrMissingCredentials)
	case strings.TrimSpace(creds.RefreshToken) == "":
		return nil, fmt.Errorf("%w: refresh token", ErrMissingCredentials)
	}

	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	cfg := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     c.endpoint,
		Scopes:       []string{gmailapi.GmailReadonlyScope},
	}
	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classify("refresh access token", err)
	}
	c.log.DebugContext(ctx, "access token refreshed", "expiry", tok.Expiry)

	httpClient := oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src))
	httpClient.Transport = &loggingTransport{base: httpClient.Transport, log: c.log}

	opts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, c.svcOpts...)
	svc, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gmail: create service: %w", err)
	}
	return &Mailbox{svc: svc, userID: c.userID, pageSize: c.pageSize}, nil
}

// Mailbox is an authenticated view of one Gmail account.
type Mailbox struct {
	svc      *gmailapi.Service
	userID   string
	pageSize int64
}

// Messages returns the ids matching filter. The sequence follows
// nextPageToken until the listing is exhausted; every range over it starts
// again from the first page. A failed page yields one error and ends the
// sequence.
func (m *Mailbox) Messages(ctx context.Context, filter string) iter.Seq2[domain.MessageRef, error] {
	return func(yield func(domain.MessageRef, error) bool) {
		pageToken := ""
		for {
			call := m.svc.Users.Messages.List(m.userID).Q(filter).MaxResults(m.pageSize)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			res, err := call.Context(ctx).Do()
			if err != nil {
				yield(domain.MessageRef{}, classify("list messages", err))
				return
			}
			for _, msg := range res.Messages {
				if !yield(domain.MessageRef{ID: msg.Id, ThreadID: msg.ThreadId}, nil) {
					return
				}
			}
			if res.NextPageToken == "" {
				return
			}
			pageToken = res.NextPageToken
		}
	}
}

// Get fetches the full representation of one message.
func (m *Mailbox) Get(ctx context.Context, id string) (domain.MessageRecord, error) {
	msg, err := m.svc.Users.Messages.Get(m.userID, id).Format("full").Context(ctx).Do()
	if err != nil {
		return domain.MessageRecord{}, classify(fmt.Sprintf("get message %q", id), err)
	}
	rec, err := toRecord(msg)
	if err != nil {
		return domain.MessageRecord{}, fmt.Errorf("gmail: convert message %q: %w", id, err)
	}
	return rec, nil
}

func classify(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &StatusError{Op: op, StatusCode: apiErr.Code, Err: err}
	}
	// A rejected refresh, either up front or mid-run inside the transport.
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return &StatusError{Op: op, StatusCode: http.StatusUnauthorized, Err: err}
	}
	return fmt.Errorf("gmail: %s: %w", op, err)
}
