package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/nerrad567/ptl-core/internal/infrastructure/config"
)

// EventPath is appended to the configured base URL.
const EventPath = "wfevent/executeEvent"

// DefaultTimeout bounds one confirmation when the config sets none.
const DefaultTimeout = 2000 * time.Millisecond

// Result codes for failures without an HTTP status.
const (
	CodeTimeout           = "TIMEOUT"
	CodeConnectionRefused = "CONNECTION_REFUSED"
	CodeRequestFailed     = "REQUEST_FAILED"
)

// Confirmation is what the caller knows about a completed movement.
type Confirmation struct {
	ExternalID int64
	Quantity   int
	Movement   any
}

// Result is the persisted outcome of a confirmation attempt.
type Result struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// eventBody is the wire format of a confirmation.
type eventBody struct {
	EventName  string `json:"eventName"`
	Client     string `json:"client"`
	ExternalID int64  `json:"externalId"`
	Quantity   int    `json:"quantity"`
	UserID     string `json:"userId"`
	Movement   any    `json:"movement"`
}

// Client posts confirmations to the external system.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	url        string
	eventName  string
	client     string
	userID     string
	user       string
	password   string
	httpClient *http.Client
}

// New creates a client from configuration.
//
// Parameters:
//   - cfg: External system section of config.yaml
//
// Returns:
//   - *Client: Ready to use; no connection is made until Confirm
//   - error: ErrNotConfigured if the URL is empty
func New(cfg config.ExternalConfig) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, ErrNotConfigured
	}
	url := cfg.URL
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		url:        url + EventPath,
		eventName:  cfg.EventName,
		client:     cfg.Client,
		userID:     cfg.UserID,
		user:       cfg.HTTPUser,
		password:   cfg.HTTPPassword,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// URL returns the full event endpoint.
func (c *Client) URL() string { return c.url }

// Confirm reports a completed movement.
//
// Parameters:
//   - ctx: Context for cancellation
//   - conf: The movement being confirmed
//
// Returns:
//   - Result: Status code and text to persist, for success and failure alike
//   - error: nil on a 2xx answer, ErrUnreachable for a timeout or refused
//     connection, ErrRejected otherwise
func (c *Client) Confirm(ctx context.Context, conf Confirmation) (Result, error) {
	body, err := json.Marshal(eventBody{
		EventName:  c.eventName,
		Client:     c.client,
		ExternalID: conf.ExternalID,
		Quantity:   conf.Quantity,
		UserID:     c.userID,
		Movement:   conf.Movement,
	})
	if err != nil {
		return Result{Code: CodeRequestFailed, Message: err.Error()}, fmt.Errorf("%w: encoding event: %w", ErrRejected, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Result{Code: CodeRequestFailed, Message: err.Error()}, fmt.Errorf("%w: %w", ErrRejected, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" && c.password != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(err)
	}
	defer resp.Body.Close()
	// Drain body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	res := Result{Code: strconv.Itoa(resp.StatusCode), Message: http.StatusText(resp.StatusCode)}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return res, fmt.Errorf("%w: HTTP %d", ErrRejected, resp.StatusCode)
	}
	return res, nil
}

// classify maps a transport error to a result and a retry class.
func classify(err error) (Result, error) {
	var netErr net.Error
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return Result{Code: CodeConnectionRefused, Message: err.Error()}, fmt.Errorf("%w: %w", ErrUnreachable, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled),
		errors.As(err, &netErr) && netErr.Timeout():
		return Result{Code: CodeTimeout, Message: err.Error()}, fmt.Errorf("%w: %w", ErrUnreachable, err)
	default:
		return Result{Code: CodeRequestFailed, Message: err.Error()}, fmt.Errorf("%w: %w", ErrRejected, err)
	}
}
