package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotFound    = errors.New("catalog item not found")
	ErrBadStatus   = errors.New("catalog bad status")
	ErrUnavailable = errors.New("catalog unavailable")
	ErrDecode      = errors.New("catalog decode failed")
)

// Client talks to the remote catalog service. It holds no cache and
// performs no retries; both belong to the caller.
type Client struct {
	BaseURL string
	Client  *http.Client
}

func NewClient(baseURL string) *Client {
	if u, err := url.Parse(baseURL); err == nil && u.Scheme != "" && u.Host != "" {
		baseURL = strings.TrimRight(baseURL, "/")
	}
	return &Client{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// ListItems fetches one page of the catalog. A non-empty title narrows
// the listing to matching items; an empty title is omitted from the
// request entirely.
func (c *Client) ListItems(ctx context.Context, offset, limit int, title string) ([]Item, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	if title != "" {
		q.Set("title", title)
	}

	body, err := c.get(ctx, fmt.Sprintf("%s/items?%s", c.BaseURL, q.Encode()))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var wire []wireItem
	if err := json.NewDecoder(body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	items := make([]Item, 0, len(wire))
	for _, w := range wire {
		it, err := w.toItem()
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

// GetItem fetches a single item by its server-assigned identifier.
func (c *Client) GetItem(ctx context.Context, id int) (Item, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/items/%d", c.BaseURL, id))
	if err != nil {
		return Item{}, err
	}
	defer body.Close()

	var w wireItem
	if err := json.NewDecoder(body).Decode(&w); err != nil {
		return Item{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return w.toItem()
}

func (c *Client) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp.Body, nil
	case resp.StatusCode == http.StatusNotFound:
		drain(resp.Body)
		return nil, ErrNotFound
	default:
		drain(resp.Body)
		return nil, fmt.Errorf("%w: status=%d", ErrBadStatus, resp.StatusCode)
	}
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

// wireItem is the payload shape. Required fields are pointers so a
// field that is absent altogether, not just zero, fails decoding.
type wireItem struct {
	ID          *int     `json:"id"`
	Title       *string  `json:"title"`
	Price       *float64 `json:"price"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
}

func (w wireItem) toItem() (Item, error) {
	switch {
	case w.ID == nil || *w.ID == 0:
		return Item{}, fmt.Errorf("%w: missing id", ErrDecode)
	case w.Title == nil || *w.Title == "":
		return Item{}, fmt.Errorf("%w: missing title for id=%d", ErrDecode, *w.ID)
	case w.Price == nil:
		return Item{}, fmt.Errorf("%w: missing price for id=%d", ErrDecode, *w.ID)
	case *w.Price < 0:
		return Item{}, fmt.Errorf("%w: negative price for id=%d", ErrDecode, *w.ID)
	}

	return Item{
		ID:          *w.ID,
		Title:       *w.Title,
		Price:       *w.Price,
		Description: w.Description,
		Images:      w.Images,
	}, nil
}
