package apicore

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
)

// ErrNoNextPage is returned by NextPage when the current page is the last
// one. Check HasNextPage before advancing.
var ErrNoNextPage = errors.New("no next page available")

// PageInfo describes how to reach the next page: either a full URL or a set
// of query parameters to merge into the current request. Exactly one of the
// two must be set.
type PageInfo struct {
	URL    string
	Params map[string]any
}

// PageModel is implemented by API-specific page shapes. PageItems returns
// the decoded items; NextPageInfo returns nil when the page is the last.
type PageModel[T any] interface {
	PageItems() []T
	NextPageInfo() *PageInfo
}

// Page is one fetched page of a list endpoint, bound to the client and
// request options that produced it so traversal can continue from it.
type Page[T any] struct {
	client *Client
	opts   *RequestOptions
	model  PageModel[T]
	fetch  func(ctx context.Context, opts *RequestOptions) (PageModel[T], error)
}

// GetAPIList fetches the first page of a list endpoint, decoding the
// response into a fresh M per page. M's pointer type must implement
// PageModel[T]:
//
//	page, err := apicore.GetAPIList[User, UserPage](ctx, client, opts)
func GetAPIList[T any, M any, PM interface {
	*M
	PageModel[T]
}](ctx context.Context, c *Client, opts *RequestOptions) (*Page[T], error) {
	fetch := func(ctx context.Context, opts *RequestOptions) (PageModel[T], error) {
		model := PM(new(M))
		if err := c.Do(ctx, opts, model); err != nil {
			return nil, err
		}
		c.metrics.RecordPageFetch(opts.URL)
		return model, nil
	}
	return fetchFirstPage(ctx, c, opts, fetch)
}

// GetAPIListAsync starts the first-page fetch on its own goroutine and
// returns a Future for it.
func GetAPIListAsync[T any, M any, PM interface {
	*M
	PageModel[T]
}](ctx context.Context, c *Client, opts *RequestOptions) *Future[*Page[T]] {
	f := newFuture[*Page[T]]()
	go func() {
		f.resolve(GetAPIList[T, M, PM](ctx, c, opts))
	}()
	return f
}

func fetchFirstPage[T any](ctx context.Context, c *Client, opts *RequestOptions, fetch func(context.Context, *RequestOptions) (PageModel[T], error)) (*Page[T], error) {
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}
	model, err := fetch(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Page[T]{client: c, opts: opts, model: model, fetch: fetch}, nil
}

// Items returns the current page's items.
func (p *Page[T]) Items() []T {
	return p.model.PageItems()
}

// HasNextPage reports whether NextPage can advance. A page with no items is
// always terminal, whatever its next-page marker says.
func (p *Page[T]) HasNextPage() bool {
	if len(p.model.PageItems()) == 0 {
		return false
	}
	return p.model.NextPageInfo() != nil
}

// NextPage fetches the following page. It returns ErrNoNextPage when called
// past the end.
func (p *Page[T]) NextPage(ctx context.Context) (*Page[T], error) {
	if !p.HasNextPage() {
		return nil, ErrNoNextPage
	}
	opts, err := p.nextPageOptions(p.model.NextPageInfo())
	if err != nil {
		return nil, err
	}
	model, err := p.fetch(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Page[T]{client: p.client, opts: opts, model: model, fetch: p.fetch}, nil
}

// NextPageAsync starts fetching the following page on its own goroutine and
// returns a Future for it. The guard behavior matches NextPage.
func (p *Page[T]) NextPageAsync(ctx context.Context) *Future[*Page[T]] {
	f := newFuture[*Page[T]]()
	go func() {
		f.resolve(p.NextPage(ctx))
	}()
	return f
}

// nextPageOptions translates a PageInfo into the request options for the
// next fetch. Parameter-style info merges over the current query; URL-style
// info replaces the URL outright, with the query carried in the URL itself.
func (p *Page[T]) nextPageOptions(info *PageInfo) (*RequestOptions, error) {
	opts := p.opts.clone()
	switch {
	case info.Params != nil && info.URL != "":
		return nil, newConfigError("page info must set exactly one of URL or Params, got both")
	case info.Params != nil:
		opts.Query = mergeMaps(opts.Query, info.Params)
		return opts, nil
	case info.URL != "":
		if _, err := url.Parse(info.URL); err != nil {
			return nil, newConfigError("invalid next page URL %q: %v", info.URL, err)
		}
		opts.URL = info.URL
		opts.Query = nil
		return opts, nil
	default:
		return nil, newConfigError("page info must set exactly one of URL or Params, got neither")
	}
}

// Pages iterates the current and all following pages. Iteration stops at the
// first fetch error, which is yielded with a nil page.
func (p *Page[T]) Pages(ctx context.Context) iter.Seq2[*Page[T], error] {
	return func(yield func(*Page[T], error) bool) {
		page := p
		for {
			if !yield(page, nil) {
				return
			}
			if !page.HasNextPage() {
				return
			}
			next, err := page.NextPage(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			page = next
		}
	}
}

// All iterates every item across the current and all following pages,
// fetching lazily. A fetch error is yielded with a zero item and ends the
// iteration.
func (p *Page[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for page, err := range p.Pages(ctx) {
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			for _, item := range page.Items() {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// JSONPageConfig addresses the page structure of a JSON list response by
// gjson path. ItemsPath is required. Set NextURLPath for APIs that return a
// full next-page URL, or CursorPath plus CursorParam for cursor-style APIs.
type JSONPageConfig struct {
	ItemsPath   string
	NextURLPath string
	CursorPath  string
	CursorParam string
}

// JSONPage is a PageModel driven by JSONPageConfig instead of a dedicated
// struct type. It decodes items and the next-page marker straight from the
// raw response body.
type JSONPage[T any] struct {
	cfg   JSONPageConfig
	items []T
	next  *PageInfo
}

// BuildFromResponse decodes the page from the raw body per the configured
// paths.
func (p *JSONPage[T]) BuildFromResponse(resp *http.Response, data []byte) error {
	items := gjson.GetBytes(data, p.cfg.ItemsPath)
	if items.Exists() && !items.IsArray() {
		return errors.New("items path does not address a JSON array")
	}
	p.items = nil
	var firstErr error
	items.ForEach(func(_, value gjson.Result) bool {
		var item T
		if err := json.Unmarshal([]byte(value.Raw), &item); err != nil {
			firstErr = err
			return false
		}
		p.items = append(p.items, item)
		return true
	})
	if firstErr != nil {
		return firstErr
	}

	p.next = nil
	if p.cfg.NextURLPath != "" {
		if next := gjson.GetBytes(data, p.cfg.NextURLPath); next.Exists() && next.String() != "" {
			p.next = &PageInfo{URL: next.String()}
			return nil
		}
	}
	if p.cfg.CursorPath != "" && p.cfg.CursorParam != "" {
		if cursor := gjson.GetBytes(data, p.cfg.CursorPath); cursor.Exists() && cursor.String() != "" {
			p.next = &PageInfo{Params: map[string]any{p.cfg.CursorParam: cursor.String()}}
		}
	}
	return nil
}

// PageItems returns the decoded items.
func (p *JSONPage[T]) PageItems() []T { return p.items }

// NextPageInfo returns the next-page marker, or nil on the last page.
func (p *JSONPage[T]) NextPageInfo() *PageInfo { return p.next }

// GetJSONList fetches the first page of a list endpoint whose shape is
// described by cfg rather than a dedicated page type.
func GetJSONList[T any](ctx context.Context, c *Client, opts *RequestOptions, cfg JSONPageConfig) (*Page[T], error) {
	if cfg.ItemsPath == "" {
		return nil, newConfigError("JSONPageConfig.ItemsPath is required")
	}
	fetch := func(ctx context.Context, opts *RequestOptions) (PageModel[T], error) {
		model := &JSONPage[T]{cfg: cfg}
		if err := c.Do(ctx, opts, model); err != nil {
			return nil, err
		}
		c.metrics.RecordPageFetch(opts.URL)
		return model, nil
	}
	return fetchFirstPage(ctx, c, opts, fetch)
}
