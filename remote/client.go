// Package remote talks to a collabcanvas server: the object API over HTTP and
// the change feed over a websocket.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"collabcanvas/core"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	objectsPath = "/api/objects"
	feedPath    = "/realtime"

	// clientIDHeader must match the server's objects.ClientIDHeader.
	clientIDHeader = "X-Client-ID"
)

// StatusError is a server reply that maps to no core error.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithClientID(id string) Option {
	return func(c *Client) { c.clientID = id }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) { c.log = log }
}

// Client implements core.RemoteStore against a collabcanvas server.
type Client struct {
	base     *url.URL
	http     *http.Client
	dialer   *websocket.Dialer
	clientID string
	log      logrus.FieldLogger
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		base:     base,
		http:     &http.Client{Timeout: 15 * time.Second},
		dialer:   websocket.DefaultDialer,
		clientID: uuid.NewString(),
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ClientID is sent with every write and comes back as the Origin of the
// change events those writes produce.
func (c *Client) ClientID() string {
	return c.clientID
}

func (c *Client) Insert(ctx context.Context, object *core.CanvasObject) error {
	return c.do(ctx, http.MethodPost, objectsPath+"/", object, nil)
}

func (c *Client) UpdateFields(ctx context.Context, id string, patch *core.ObjectPatch) error {
	return c.do(ctx, http.MethodPatch, objectsPath+"/"+url.PathEscape(id), patch, nil)
}

func (c *Client) DeleteMany(ctx context.Context, ids []string) error {
	return c.do(ctx, http.MethodPost, objectsPath+"/delete", map[string][]string{"ids": ids}, nil)
}

func (c *Client) ListAll(ctx context.Context) ([]*core.CanvasObject, error) {
	var objects []*core.CanvasObject
	if err := c.do(ctx, http.MethodGet, objectsPath+"/", nil, &objects); err != nil {
		return nil, err
	}
	return objects, nil
}

// SubscribeChanges dials the change feed of table. The returned channel is
// closed when the connection drops or ctx is done.
func (c *Client) SubscribeChanges(ctx context.Context, table string) (<-chan core.ChangeEvent, error) {
	feed := *c.base
	feed.Scheme = "ws"
	if c.base.Scheme == "https" {
		feed.Scheme = "wss"
	}
	feed.Path = c.base.Path + feedPath + "/" + url.PathEscape(table)

	header := http.Header{}
	header.Set(clientIDHeader, c.clientID)
	conn, resp, err := c.dialer.DialContext(ctx, feed.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial change feed: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial change feed: %w", err)
	}

	log := c.log.WithField("table", table)
	out := make(chan core.ChangeEvent)
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	go func() {
		defer close(out)
		defer stop()
		defer conn.Close()

		for {
			var ev core.ChangeEvent
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() == nil {
					log.WithError(err).Debug("Change feed closed")
				}
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, into any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(clientIDHeader, c.clientID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if into == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError maps an error reply back onto the core error kinds.
func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return &core.ValidationError{Reason: body.Error}
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", core.ErrNotFound, body.Error)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", core.ErrConflict, body.Error)
	default:
		return &StatusError{Code: resp.StatusCode, Message: body.Error}
	}
}
