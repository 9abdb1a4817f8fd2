// Package client talks to the smartmarks HTTP API and holds the state the
// command-line dashboard and trash views work on.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/mikepea/smartmarks/pkg/smartmarks/apikeys"
	"github.com/mikepea/smartmarks/pkg/smartmarks/auth"
	"github.com/mikepea/smartmarks/pkg/smartmarks/importexport"
	"github.com/mikepea/smartmarks/pkg/smartmarks/metadata"
	"github.com/mikepea/smartmarks/pkg/smartmarks/models"
)

const requestTimeout = 30 * time.Second

var ErrUnauthorized = errors.New("not signed in")

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

// Is makes a 401 match ErrUnauthorized.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type errorBody struct {
	Error string `json:"error"`
}

// ListQuery narrows and orders the active list on the server.
type ListQuery struct {
	Query string
	Sort  string
	Fuzzy bool
}

// Client is a thin API wrapper. The zero token means anonymous.
type Client struct {
	http   *resty.Client
	stream *resty.Client
}

// New creates a client for the server at baseURL.
func New(baseURL, token string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	c := &Client{
		http:   resty.New().SetBaseURL(baseURL).SetTimeout(requestTimeout),
		stream: resty.New().SetBaseURL(baseURL),
	}
	c.SetToken(token)
	return c
}

// SetToken replaces the credentials sent with each request.
func (c *Client) SetToken(token string) {
	c.http.SetAuthToken(token)
	c.stream.SetAuthToken(token)
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx).SetError(&errorBody{})
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	if !resp.IsError() {
		return nil
	}
	return apiError(resp)
}

func apiError(resp *resty.Response) *APIError {
	e := &APIError{Status: resp.StatusCode()}
	if body, ok := resp.Error().(*errorBody); ok && body != nil {
		e.Message = body.Error
	}
	return e
}

// Signup creates an account and returns its first session.
func (c *Client) Signup(ctx context.Context, email, password, name string) (*auth.AuthResponse, error) {
	var out auth.AuthResponse
	resp, err := c.request(ctx).
		SetBody(auth.SignupRequest{Email: email, Password: password, Name: name}).
		SetResult(&out).
		Post("/api/auth/signup")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, email, password string) (*auth.AuthResponse, error) {
	var out auth.AuthResponse
	resp, err := c.request(ctx).
		SetBody(auth.LoginRequest{Email: email, Password: password}).
		SetResult(&out).
		Post("/api/auth/login")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return check(c.request(ctx).Post("/api/auth/logout"))
}

// Session returns the signed-in user, or ErrUnauthorized.
func (c *Client) Session(ctx context.Context) (*auth.UserResponse, error) {
	var out auth.SessionResponse
	resp, err := c.request(ctx).SetResult(&out).Get("/api/auth/session")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// GoogleAuthURL starts Google sign-in. The server redirects to returnURL
// with the token once the user has signed in.
func (c *Client) GoogleAuthURL(ctx context.Context, returnURL string) (string, error) {
	var out struct {
		AuthURL string `json:"auth_url"`
	}
	resp, err := c.request(ctx).
		SetQueryParam("return_url", returnURL).
		SetResult(&out).
		Get("/api/auth/google")
	if err := check(resp, err); err != nil {
		return "", err
	}
	return out.AuthURL, nil
}

func (c *Client) List(ctx context.Context, q ListQuery) ([]models.Bookmark, error) {
	var out []models.Bookmark
	req := c.request(ctx).SetResult(&out)
	if q.Query != "" {
		req.SetQueryParam("q", q.Query)
	}
	if q.Sort != "" {
		req.SetQueryParam("sort", q.Sort)
	}
	if q.Fuzzy {
		req.SetQueryParam("match", "fuzzy")
	}
	if err := check(req.Get("/api/bookmarks")); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, id string) (*models.Bookmark, error) {
	var out models.Bookmark
	resp, err := c.request(ctx).SetResult(&out).SetPathParam("id", id).Get("/api/bookmarks/{id}")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create adds a bookmark. An empty title is filled in by the server.
func (c *Client) Create(ctx context.Context, title, rawURL string) (*models.Bookmark, error) {
	var out models.Bookmark
	resp, err := c.request(ctx).
		SetBody(map[string]string{"title": title, "url": rawURL}).
		SetResult(&out).
		Post("/api/bookmarks")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update changes the non-nil fields.
func (c *Client) Update(ctx context.Context, id string, title, rawURL *string) (*models.Bookmark, error) {
	body := map[string]string{}
	if title != nil {
		body["title"] = *title
	}
	if rawURL != nil {
		body["url"] = *rawURL
	}
	var out models.Bookmark
	resp, err := c.request(ctx).
		SetBody(body).
		SetResult(&out).
		SetPathParam("id", id).
		Patch("/api/bookmarks/{id}")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete moves a bookmark to the trash.
func (c *Client) Delete(ctx context.Context, id string) error {
	return check(c.request(ctx).SetPathParam("id", id).Delete("/api/bookmarks/{id}"))
}

// Reorder moves the bookmark at source to destination in the manual,
// unfiltered list and returns the new order.
func (c *Client) Reorder(ctx context.Context, source, destination int) ([]models.Bookmark, error) {
	var out []models.Bookmark
	resp, err := c.request(ctx).
		SetBody(map[string]int{"source": source, "destination": destination}).
		SetResult(&out).
		Post("/api/bookmarks/reorder")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Trash(ctx context.Context) ([]models.Bookmark, error) {
	var out []models.Bookmark
	resp, err := c.request(ctx).SetResult(&out).Get("/api/trash")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Restore(ctx context.Context, id string) (*models.Bookmark, error) {
	var out models.Bookmark
	resp, err := c.request(ctx).SetResult(&out).SetPathParam("id", id).Post("/api/trash/{id}/restore")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// Purge deletes a trashed bookmark forever.
func (c *Client) Purge(ctx context.Context, id string) error {
	return check(c.request(ctx).SetPathParam("id", id).Delete("/api/trash/{id}"))
}

// FetchMeta asks the server to scrape title and favicon from rawURL.
func (c *Client) FetchMeta(ctx context.Context, rawURL string) (*metadata.Meta, error) {
	var out metadata.Meta
	resp, err := c.request(ctx).SetQueryParam("url", rawURL).SetResult(&out).Get("/api/fetch-meta")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// Export downloads the active list as "json" or "html".
func (c *Client) Export(ctx context.Context, format string) ([]byte, error) {
	resp, err := c.request(ctx).SetQueryParam("format", format).Get("/api/export")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

// ImportHTML uploads a Netscape bookmark file.
func (c *Client) ImportHTML(ctx context.Context, doc []byte) (*importexport.ImportResult, error) {
	var out importexport.ImportResult
	resp, err := c.request(ctx).
		SetHeader("Content-Type", "text/html").
		SetBody(doc).
		SetResult(&out).
		Post("/api/import")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateAPIKey(ctx context.Context, description string) (*apikeys.CreateAPIKeyResponse, error) {
	var out apikeys.CreateAPIKeyResponse
	resp, err := c.request(ctx).
		SetBody(apikeys.CreateAPIKeyRequest{Description: description}).
		SetResult(&out).
		Post("/api/api-keys")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListAPIKeys(ctx context.Context) ([]apikeys.APIKeyResponse, error) {
	var out []apikeys.APIKeyResponse
	resp, err := c.request(ctx).SetResult(&out).Get("/api/api-keys")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteAPIKey(ctx context.Context, id uint) error {
	return check(c.request(ctx).SetPathParam("id", strconv.FormatUint(uint64(id), 10)).Delete("/api/api-keys/{id}"))
}

// Watch follows the change stream and calls onList with every snapshot,
// starting with the current list. It returns when ctx is cancelled or the
// stream ends.
func (c *Client) Watch(ctx context.Context, onList func([]models.Bookmark)) error {
	resp, err := c.stream.R().
		SetContext(ctx).
		SetHeader("Accept", "text/event-stream").
		SetDoNotParseResponse(true).
		Get("/api/bookmarks/stream")
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.Wrap(err, "open stream")
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return &APIError{Status: resp.StatusCode()}
	}

	r := bufio.NewReader(body)
	for {
		ev, err := readEvent(r)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "read stream")
		}
		switch ev.name {
		case "bookmarks":
			var list []models.Bookmark
			if err := json.Unmarshal([]byte(ev.data), &list); err != nil {
				return errors.Wrap(err, "decode snapshot")
			}
			onList(list)
		case "error":
			var e errorBody
			_ = json.Unmarshal([]byte(ev.data), &e)
			return &APIError{Status: http.StatusInternalServerError, Message: e.Error}
		}
	}
}

type event struct {
	name string
	data string
}

// readEvent reads one text/event-stream record.
func readEvent(r *bufio.Reader) (event, error) {
	var ev event
	var data []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return ev, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if ev.name == "" && len(data) == 0 {
				continue
			}
			ev.data = strings.Join(data, "\n")
			return ev, nil
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.name = value
		case "data":
			data = append(data, value)
		}
	}
}
