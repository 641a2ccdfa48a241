package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/drblury/actuator/internal/runtime/jsoncodec"
)

// DefaultBaseURL is the management base path of a locally running service.
const DefaultBaseURL = "http://localhost:8081/actuator"

const maxResponseBytes = 4 << 20

// APIError is a non-2xx answer from the management API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("actuator: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("actuator: %d %s", e.Status, e.Message)
}

// NotFound reports whether err is a 404 from the management API.
func NotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client talks to the management API of one service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client rooted at baseURL. A nil httpClient gets a
// client with a 30 second timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Index returns the endpoint index with its invocation stats.
func (c *Client) Index(ctx context.Context) (map[string]any, error) {
	out := map[string]any{}
	return out, c.getJSON(ctx, "", &out)
}

// List returns every snapshot of endpoint keyed by name.
func (c *Client) List(ctx context.Context, endpoint string) (map[string]any, error) {
	out := map[string]any{}
	return out, c.getJSON(ctx, "/"+url.PathEscape(endpoint), &out)
}

// Get returns one snapshot.
func (c *Client) Get(ctx context.Context, endpoint, name string) (map[string]any, error) {
	out := map[string]any{}
	return out, c.getJSON(ctx, "/"+url.PathEscape(endpoint)+"/"+url.PathEscape(name), &out)
}

// Update patches the named object with form-encoded values.
func (c *Client) Update(ctx context.Context, endpoint, name string, values url.Values) error {
	_, err := c.do(ctx, http.MethodPost, "/"+url.PathEscape(endpoint)+"/"+url.PathEscape(name), values)
	return err
}

// Action invokes action on the named object, or on every object of the
// endpoint when name is empty.
func (c *Client) Action(ctx context.Context, endpoint, name, action string) error {
	path := "/" + url.PathEscape(endpoint)
	if name != "" {
		path += "/" + url.PathEscape(name)
	}
	_, err := c.do(ctx, http.MethodPost, path+"/actions/"+url.PathEscape(action), nil)
	return err
}

// ConfigDump returns the text dump of the configuration layers matching
// selector, or of every layer when selector is empty.
func (c *Client) ConfigDump(ctx context.Context, selector string) (string, error) {
	path := "/configuration"
	if selector != "" {
		path += "?layer=" + url.QueryEscape(selector)
	}
	body, err := c.do(ctx, http.MethodGet, path, nil)
	return string(body), err
}

// ConfigGet returns the effective value of key. ok is false when no layer
// defines it.
func (c *Client) ConfigGet(ctx context.Context, key string) (value string, ok bool, err error) {
	body, err := c.do(ctx, http.MethodGet, "/configuration/"+url.PathEscape(key), nil)
	if err != nil || len(body) == 0 {
		return "", false, err
	}
	return strings.TrimSuffix(string(body), "\n"), true, nil
}

// ConfigSearch returns the key=value lines matching pattern under operator.
func (c *Client) ConfigSearch(ctx context.Context, pattern, operator string) (string, error) {
	path := "/configuration/" + url.PathEscape(pattern) + "?operator=" + url.QueryEscape(operator)
	body, err := c.do(ctx, http.MethodGet, path, nil)
	return string(body), err
}

// ConfigPut writes name=value into layer.
func (c *Client) ConfigPut(ctx context.Context, layer, name, value string) error {
	_, err := c.do(ctx, http.MethodPost, "/configuration/"+url.PathEscape(layer), url.Values{
		"name":  {name},
		"value": {value},
	})
	return err
}

// ConfigDelete removes key from layer, or clears the whole layer when key
// is empty.
func (c *Client) ConfigDelete(ctx context.Context, layer, key string) error {
	path := "/configuration/" + url.PathEscape(layer)
	if key != "" {
		path += "/" + url.PathEscape(key)
	}
	_, err := c.do(ctx, http.MethodDelete, path, nil)
	return err
}

// ConfigAction runs a store action such as refreshBeans or reload.
func (c *Client) ConfigAction(ctx context.Context, action string) error {
	_, err := c.do(ctx, http.MethodPost, "/configuration/actions/"+url.PathEscape(action), nil)
	return err
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	if err := jsoncodec.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values) ([]byte, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json, text/plain")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
		}
		if jsoncodec.Unmarshal(data, &payload) == nil {
			apiErr.Message = payload.Error
		}
		return nil, apiErr
	}
	return data, nil
}
