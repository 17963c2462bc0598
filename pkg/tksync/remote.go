package tksync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/wurt83ow/tablekeeper/pkg/models"
)

var ErrNetworkUnavailable = errors.New("network unavailable")

// StatusError is returned when the remote resource answers with a non-2xx status.
type StatusError struct {
	Method     string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Method, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Method, e.StatusCode, e.Body)
}

// RemotePage is one page as the remote resource reported it.
type RemotePage struct {
	Entries []models.Entry
	Total   int
}

// FetchPage lists one page of the collection, normalized to the client's columns.
func (c *Client) FetchPage(ctx context.Context, filters models.Filters) (RemotePage, error) {
	filters = filters.Normalized()
	params := &ListParams{Page: filters.Page, Limit: filters.Limit}
	if filters.SortBy != "" {
		sort, order := filters.SortBy, string(filters.SortOrder)
		params.Sort, params.Order = &sort, &order
	}
	if filters.Search != "" {
		q := filters.Search
		params.Q = &q
	}

	rsp, err := c.GetItems(ctx, params)
	if err != nil {
		return RemotePage{}, err
	}
	parsed, err := ParseGetItemsResponse(rsp)
	if err != nil {
		return RemotePage{}, fmt.Errorf("failed to decode page: %w", err)
	}
	if parsed.JSON200 == nil {
		return RemotePage{}, statusError(http.MethodGet, parsed.StatusCode(), parsed.Body)
	}

	page := RemotePage{Entries: make([]models.Entry, 0, len(*parsed.JSON200))}
	for _, raw := range *parsed.JSON200 {
		if e, ok := Normalize(raw, c.columns, c.rules); ok {
			page.Entries = append(page.Entries, e)
		}
	}
	page.Total = len(*parsed.JSON200)
	if n, err := strconv.Atoi(rsp.Header.Get("X-Total-Count")); err == nil && n >= 0 {
		page.Total = n
	}
	return page, nil
}

// Create posts fields without any id. The returned entry holds what the server echoed
// back, without defaults; its ID is the server's and zero when none was sent.
func (c *Client) Create(ctx context.Context, fields map[string]string) (models.Entry, error) {
	body := make(map[string]string, len(fields))
	for k, v := range fields {
		if k == "id" {
			continue
		}
		body[k] = v
	}

	rsp, err := c.PostItem(ctx, body)
	if err != nil {
		return models.Entry{}, err
	}
	return c.parseWrite(http.MethodPost, rsp)
}

// Update replaces the item with PUT and retries once with PATCH when that fails.
func (c *Client) Update(ctx context.Context, id int, fields map[string]string) (models.Entry, error) {
	body := make(map[string]string, len(fields))
	for k, v := range fields {
		if k == "id" {
			continue
		}
		body[k] = v
	}

	e, putErr := c.write(ctx, http.MethodPut, id, body)
	if putErr == nil {
		return e, nil
	}
	e, patchErr := c.write(ctx, http.MethodPatch, id, body)
	if patchErr != nil {
		return models.Entry{}, errors.Join(putErr, patchErr)
	}
	return e, nil
}

func (c *Client) Delete(ctx context.Context, id int) error {
	rsp, err := c.DeleteItem(ctx, id)
	if err != nil {
		return err
	}
	parsed, err := ParseItemResponse(rsp)
	if err != nil {
		return err
	}
	if parsed.StatusCode()/100 != 2 {
		return statusError(http.MethodDelete, parsed.StatusCode(), parsed.Body)
	}
	return nil
}

func (c *Client) write(ctx context.Context, method string, id int, body map[string]string) (models.Entry, error) {
	var rsp *http.Response
	var err error
	if method == http.MethodPatch {
		rsp, err = c.PatchItem(ctx, id, body)
	} else {
		rsp, err = c.PutItem(ctx, id, body)
	}
	if err != nil {
		return models.Entry{}, err
	}
	e, err := c.parseWrite(method, rsp)
	if err != nil {
		return models.Entry{}, err
	}
	if e.ID == 0 {
		e.ID = id
	}
	return e, nil
}

func (c *Client) parseWrite(method string, rsp *http.Response) (models.Entry, error) {
	parsed, err := ParseItemResponse(rsp)
	if err != nil {
		return models.Entry{}, fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if parsed.StatusCode()/100 != 2 {
		return models.Entry{}, statusError(method, parsed.StatusCode(), parsed.Body)
	}
	if parsed.JSON2XX == nil {
		return models.Entry{Fields: map[string]string{}}, nil
	}
	return Extract(*parsed.JSON2XX, c.columns), nil
}

func statusError(method string, code int, body []byte) error {
	const maxBody = 200
	text := string(body)
	if len(text) > maxBody {
		text = text[:maxBody]
	}
	return &StatusError{Method: method, StatusCode: code, Body: text}
}
