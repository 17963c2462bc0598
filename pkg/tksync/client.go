package tksync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/oapi-codegen/runtime"
	"golang.org/x/time/rate"

	"github.com/wurt83ow/tablekeeper/pkg/appcontext"
	"github.com/wurt83ow/tablekeeper/pkg/models"
)

const DefaultResource = "users"

// RequestEditorFn  is the function signature for the RequestEditor callback function
type RequestEditorFn func(ctx context.Context, req *http.Request) error

// HttpRequestDoer performs HTTP requests.
//
// The standard http.Client implements this interface.
type HttpRequestDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to a REST collection such as https://jsonplaceholder.typicode.com/users.
type Client struct {
	// The endpoint of the server, with scheme. The collection path is
	// appended to it, so it may carry a prefix such as https://host/api.
	Server string

	// Resource is the collection name, "users" by default.
	Resource string

	// Doer for performing requests, typically a *http.Client with any
	// customized settings, such as timeouts.
	Client HttpRequestDoer

	// A list of callbacks for modifying requests which are generated before sending over
	// the network.
	RequestEditors []RequestEditorFn

	columns []models.Column
	rules   []FieldRule
	limiter *rate.Limiter
}

// ClientOption allows setting custom parameters during construction
type ClientOption func(*Client) error

// NewClient creates a new Client, with reasonable defaults
func NewClient(server string, opts ...ClientOption) (*Client, error) {
	client := Client{
		Server:         server,
		Resource:       DefaultResource,
		RequestEditors: []RequestEditorFn{RequestIDEditor},
		columns:        models.DefaultColumns,
		rules:          DefaultRules,
	}
	for _, o := range opts {
		if err := o(&client); err != nil {
			return nil, err
		}
	}
	// ensure the server URL always has a trailing slash
	if !strings.HasSuffix(client.Server, "/") {
		client.Server += "/"
	}
	if client.Client == nil {
		client.Client = &http.Client{}
	}
	return &client, nil
}

// WithHTTPClient allows overriding the default Doer, which is
// automatically created using http.Client. This is useful for tests.
func WithHTTPClient(doer HttpRequestDoer) ClientOption {
	return func(c *Client) error {
		c.Client = doer
		return nil
	}
}

// WithRequestEditorFn allows setting up a callback function, which will be
// called right before sending the request. This can be used to mutate the request.
func WithRequestEditorFn(fn RequestEditorFn) ClientOption {
	return func(c *Client) error {
		c.RequestEditors = append(c.RequestEditors, fn)
		return nil
	}
}

func WithResource(resource string) ClientOption {
	return func(c *Client) error {
		resource = strings.Trim(resource, "/")
		if resource == "" {
			return fmt.Errorf("empty resource name")
		}
		c.Resource = resource
		return nil
	}
}

// WithColumns sets the canonical schema upstream records are normalized into.
func WithColumns(columns []models.Column) ClientOption {
	return func(c *Client) error {
		c.columns = columns
		return nil
	}
}

// WithFieldRules replaces the alias and default table used during normalization.
func WithFieldRules(rules []FieldRule) ClientOption {
	return func(c *Client) error {
		c.rules = rules
		return nil
	}
}

// WithRateLimit throttles outgoing requests to rps per second. Zero disables it.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) error {
		if rps <= 0 {
			c.limiter = nil
			return nil
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		return nil
	}
}

// RequestIDEditor stamps X-Request-ID with the id carried on ctx, or a fresh one.
func RequestIDEditor(ctx context.Context, req *http.Request) error {
	if req.Header.Get("X-Request-ID") != "" {
		return nil
	}
	_, id := appcontext.EnsureRequestID(ctx)
	req.Header.Set("X-Request-ID", id)
	return nil
}

// ListParams defines parameters for GetItems.
type ListParams struct {
	Page  int
	Limit int
	Sort  *string
	Order *string
	Q     *string
}

// GetItems request
func (c *Client) GetItems(ctx context.Context, params *ListParams, reqEditors ...RequestEditorFn) (*http.Response, error) {
	req, err := NewGetItemsRequest(c.Server, c.Resource, params)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, req, reqEditors)
}

// PostItem request
func (c *Client) PostItem(ctx context.Context, body map[string]string, reqEditors ...RequestEditorFn) (*http.Response, error) {
	req, err := NewPostItemRequest(c.Server, c.Resource, body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, req, reqEditors)
}

// PutItem request
func (c *Client) PutItem(ctx context.Context, id int, body map[string]string, reqEditors ...RequestEditorFn) (*http.Response, error) {
	req, err := NewWriteItemRequest(c.Server, c.Resource, http.MethodPut, id, body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, req, reqEditors)
}

// PatchItem request
func (c *Client) PatchItem(ctx context.Context, id int, body map[string]string, reqEditors ...RequestEditorFn) (*http.Response, error) {
	req, err := NewWriteItemRequest(c.Server, c.Resource, http.MethodPatch, id, body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, req, reqEditors)
}

// DeleteItem request
func (c *Client) DeleteItem(ctx context.Context, id int, reqEditors ...RequestEditorFn) (*http.Response, error) {
	req, err := NewDeleteItemRequest(c.Server, c.Resource, id)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, req, reqEditors)
}

func (c *Client) do(ctx context.Context, req *http.Request, reqEditors []RequestEditorFn) (*http.Response, error) {
	req = req.WithContext(ctx)
	if err := c.applyEditors(ctx, req, reqEditors); err != nil {
		return nil, err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNetworkUnavailable, err)
		}
	}
	rsp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetworkUnavailable, err)
	}
	return rsp, nil
}

func (c *Client) applyEditors(ctx context.Context, req *http.Request, additionalEditors []RequestEditorFn) error {
	for _, r := range c.RequestEditors {
		if err := r(ctx, req); err != nil {
			return err
		}
	}
	for _, r := range additionalEditors {
		if err := r(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// NewGetItemsRequest generates requests for GetItems
func NewGetItemsRequest(server string, resource string, params *ListParams) (*http.Request, error) {
	queryURL, err := itemsURL(server, resource, nil)
	if err != nil {
		return nil, err
	}

	if params != nil {
		queryValues := queryURL.Query()
		add := func(name string, value any) error {
			queryFrag, err := runtime.StyleParamWithLocation("form", true, name, runtime.ParamLocationQuery, value)
			if err != nil {
				return err
			}
			parsed, err := url.ParseQuery(queryFrag)
			if err != nil {
				return err
			}
			for k, v := range parsed {
				for _, v2 := range v {
					queryValues.Add(k, v2)
				}
			}
			return nil
		}

		if err := add("_page", params.Page); err != nil {
			return nil, err
		}
		if err := add("_limit", params.Limit); err != nil {
			return nil, err
		}
		if params.Sort != nil {
			if err := add("_sort", *params.Sort); err != nil {
				return nil, err
			}
			if params.Order != nil {
				if err := add("_order", *params.Order); err != nil {
					return nil, err
				}
			}
		}
		if params.Q != nil {
			if err := add("q", *params.Q); err != nil {
				return nil, err
			}
		}
		queryURL.RawQuery = queryValues.Encode()
	}

	req, err := http.NewRequest(http.MethodGet, queryURL.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// NewPostItemRequest generates requests for PostItem with application/json body
func NewPostItemRequest(server string, resource string, body map[string]string) (*http.Request, error) {
	queryURL, err := itemsURL(server, resource, nil)
	if err != nil {
		return nil, err
	}
	return newJSONRequest(http.MethodPost, queryURL, body)
}

// NewWriteItemRequest generates PUT or PATCH requests for a single item with application/json body
func NewWriteItemRequest(server string, resource string, method string, id int, body map[string]string) (*http.Request, error) {
	queryURL, err := itemsURL(server, resource, &id)
	if err != nil {
		return nil, err
	}
	return newJSONRequest(method, queryURL, body)
}

// NewDeleteItemRequest generates requests for DeleteItem
func NewDeleteItemRequest(server string, resource string, id int) (*http.Request, error) {
	queryURL, err := itemsURL(server, resource, &id)
	if err != nil {
		return nil, err
	}
	return http.NewRequest(http.MethodDelete, queryURL.String(), nil)
}

func newJSONRequest(method string, queryURL *url.URL, body map[string]string) (*http.Request, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(method, queryURL.String(), bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Add("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func itemsURL(server string, resource string, id *int) (*url.URL, error) {
	pathParam0, err := runtime.StyleParamWithLocation("simple", false, "resource", runtime.ParamLocationPath, resource)
	if err != nil {
		return nil, err
	}
	operationPath := fmt.Sprintf("/%s", pathParam0)

	if id != nil {
		pathParam1, err := runtime.StyleParamWithLocation("simple", false, "id", runtime.ParamLocationPath, *id)
		if err != nil {
			return nil, err
		}
		operationPath += "/" + pathParam1
	}

	serverURL, err := url.Parse(server)
	if err != nil {
		return nil, err
	}
	if operationPath[0] == '/' {
		operationPath = "." + operationPath
	}
	return serverURL.Parse(operationPath)
}

// GetItemsResponse is the parsed answer to GetItems.
type GetItemsResponse struct {
	Body         []byte
	HTTPResponse *http.Response
	JSON200      *[]map[string]any
}

// Status returns HTTPResponse.Status
func (r GetItemsResponse) Status() string {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.Status
	}
	return http.StatusText(0)
}

// StatusCode returns HTTPResponse.StatusCode
func (r GetItemsResponse) StatusCode() int {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.StatusCode
	}
	return 0
}

// ItemResponse is the parsed answer to a single-item write.
type ItemResponse struct {
	Body         []byte
	HTTPResponse *http.Response
	JSON2XX      *map[string]any
}

// Status returns HTTPResponse.Status
func (r ItemResponse) Status() string {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.Status
	}
	return http.StatusText(0)
}

// StatusCode returns HTTPResponse.StatusCode
func (r ItemResponse) StatusCode() int {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.StatusCode
	}
	return 0
}

// ParseGetItemsResponse parses an HTTP response from a GetItems call
func ParseGetItemsResponse(rsp *http.Response) (*GetItemsResponse, error) {
	bodyBytes, err := io.ReadAll(rsp.Body)
	defer func() { _ = rsp.Body.Close() }()
	if err != nil {
		return nil, err
	}

	response := &GetItemsResponse{
		Body:         bodyBytes,
		HTTPResponse: rsp,
	}

	switch {
	case strings.Contains(rsp.Header.Get("Content-Type"), "json") && rsp.StatusCode == 200:
		var dest []map[string]any
		if err := json.Unmarshal(bodyBytes, &dest); err != nil {
			return nil, err
		}
		response.JSON200 = &dest
	}

	return response, nil
}

// ParseItemResponse parses an HTTP response from PostItem, PutItem, PatchItem or DeleteItem
func ParseItemResponse(rsp *http.Response) (*ItemResponse, error) {
	bodyBytes, err := io.ReadAll(rsp.Body)
	defer func() { _ = rsp.Body.Close() }()
	if err != nil {
		return nil, err
	}

	response := &ItemResponse{
		Body:         bodyBytes,
		HTTPResponse: rsp,
	}

	switch {
	case strings.Contains(rsp.Header.Get("Content-Type"), "json") && rsp.StatusCode/100 == 2 && len(bytes.TrimSpace(bodyBytes)) > 0:
		var dest map[string]any
		if err := json.Unmarshal(bodyBytes, &dest); err != nil {
			return nil, err
		}
		response.JSON2XX = &dest
	}

	return response, nil
}
