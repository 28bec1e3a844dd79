package apicore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Omit marks a header or query value for removal while merging. A key mapped
// to Omit never appears in the final mapping, even when a default supplies it.
const Omit = "\x00omit\x00"

// RequestOptions describes one logical request. It is built once and treated
// as immutable while in flight: every retry rebuilds the wire request from
// the same options. The only field written after construction is the
// idempotency key, generated at most once and reused across attempts.
type RequestOptions struct {
	Method string
	// URL is an absolute URL or a path resolved against the client base URL.
	URL     string
	Query   map[string]any
	Headers map[string]string

	// Body is any JSON-encodable value. RawBody takes precedence when set.
	// For multipart requests Body must be a flat mapping.
	Body    any
	RawBody []byte
	// Files are additional multipart file parts, sent alongside the
	// stringified Body fields.
	Files []FilePart
	// ExtraBody is merged over Body when Body is a mapping (or absent).
	ExtraBody map[string]any

	// Timeout overrides the client timeout for this call; zero means default.
	Timeout time.Duration
	// MaxRetries caps retries for this call; nil means the client default.
	MaxRetries *int

	// IdempotencyKey is sent on mutating requests so the server can
	// deduplicate retried attempts. Generated when left empty.
	IdempotencyKey string
}

// RequestOption mutates a RequestOptions during construction.
type RequestOption func(*RequestOptions)

// NewRequestOptions builds options for one logical request.
func NewRequestOptions(method, url string, opts ...RequestOption) *RequestOptions {
	o := &RequestOptions{Method: strings.ToUpper(method), URL: url}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithHeader sets a per-call header. Use Omit as the value to suppress a
// default header.
func WithHeader(key, value string) RequestOption {
	return func(o *RequestOptions) {
		if o.Headers == nil {
			o.Headers = map[string]string{}
		}
		o.Headers[key] = value
	}
}

// WithHeaders merges a header mapping into the per-call headers.
func WithHeaders(headers map[string]string) RequestOption {
	return func(o *RequestOptions) {
		if o.Headers == nil {
			o.Headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			o.Headers[k] = v
		}
	}
}

// WithQuery sets one query parameter. Slices and nested mappings are
// serialized by the client's query stringifier.
func WithQuery(key string, value any) RequestOption {
	return func(o *RequestOptions) {
		if o.Query == nil {
			o.Query = map[string]any{}
		}
		o.Query[key] = value
	}
}

// WithQueryMap merges a parameter mapping into the per-call query.
func WithQueryMap(params map[string]any) RequestOption {
	return func(o *RequestOptions) {
		if o.Query == nil {
			o.Query = make(map[string]any, len(params))
		}
		for k, v := range params {
			o.Query[k] = v
		}
	}
}

// WithBody sets the JSON body.
func WithBody(body any) RequestOption {
	return func(o *RequestOptions) { o.Body = body }
}

// WithExtraBody merges additional properties over the JSON body.
func WithExtraBody(extra map[string]any) RequestOption {
	return func(o *RequestOptions) { o.ExtraBody = extra }
}

// WithRawBody sets a pre-encoded body.
func WithRawBody(body []byte) RequestOption {
	return func(o *RequestOptions) { o.RawBody = body }
}

// FilePart is one file field of a multipart request.
type FilePart struct {
	Field    string
	Filename string
	Content  []byte
}

// WithFile attaches a file part. The request must also carry the
// multipart/form-data Content-Type header.
func WithFile(field, filename string, content []byte) RequestOption {
	return func(o *RequestOptions) {
		o.Files = append(o.Files, FilePart{Field: field, Filename: filename, Content: content})
	}
}

// WithRequestTimeout overrides the client timeout for this call.
func WithRequestTimeout(d time.Duration) RequestOption {
	return func(o *RequestOptions) { o.Timeout = d }
}

// WithRequestRetries caps the retry budget for this call.
func WithRequestRetries(n int) RequestOption {
	return func(o *RequestOptions) { o.MaxRetries = &n }
}

// WithIdempotencyKey pins the idempotency key instead of generating one.
func WithIdempotencyKey(key string) RequestOption {
	return func(o *RequestOptions) { o.IdempotencyKey = key }
}

// clone copies the options so pagination can derive successor requests
// without touching the originals.
func (o *RequestOptions) clone() *RequestOptions {
	dup := *o
	if o.Query != nil {
		dup.Query = make(map[string]any, len(o.Query))
		for k, v := range o.Query {
			dup.Query[k] = v
		}
	}
	if o.Headers != nil {
		dup.Headers = make(map[string]string, len(o.Headers))
		for k, v := range o.Headers {
			dup.Headers[k] = v
		}
	}
	if o.Files != nil {
		dup.Files = append([]FilePart(nil), o.Files...)
	}
	return &dup
}

// retryBudget resolves the starting retry count: the smaller of the per-call
// override and the client default.
func (o *RequestOptions) retryBudget(clientDefault int) int {
	if o.MaxRetries == nil {
		return clientDefault
	}
	if *o.MaxRetries < clientDefault {
		return *o.MaxRetries
	}
	return clientDefault
}

// mergeMaps merges two mappings; on key collision the second wins. Keys whose
// final value is Omit are dropped entirely.
func mergeMaps[V any](defaults, custom map[string]V) map[string]V {
	merged := make(map[string]V, len(defaults)+len(custom))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range custom {
		merged[k] = v
	}
	for k, v := range merged {
		if s, ok := any(v).(string); ok && s == Omit {
			delete(merged, k)
		}
	}
	return merged
}

// canonicalHeaders normalizes keys so that defaults and custom headers
// collide deterministically regardless of spelling.
func canonicalHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[textproto.CanonicalMIMEHeaderKey(k)] = v
	}
	return out
}

// buildHeaders merges default and per-call headers, runs the validation hook
// and applies the idempotency key.
func (c *Client) buildHeaders(opts *RequestOptions) (map[string]string, error) {
	custom := canonicalHeaders(opts.Headers)
	headers := mergeMaps(canonicalHeaders(c.defaultHeaders()), custom)

	if c.headerValidator != nil {
		if err := c.headerValidator(headers, custom); err != nil {
			return nil, newConfigError("header validation failed: %v", err)
		}
	}

	if c.idempotencyHeader != "" && opts.Method != http.MethodGet {
		key := textproto.CanonicalMIMEHeaderKey(c.idempotencyHeader)
		if _, present := headers[key]; !present {
			if opts.IdempotencyKey == "" {
				opts.IdempotencyKey = c.newIdempotencyKey()
			}
			headers[key] = opts.IdempotencyKey
		}
	}

	return headers, nil
}

func (c *Client) newIdempotencyKey() string {
	return fmt.Sprintf("%s-retry-%s", c.idempotencyPrefix, uuid.NewString())
}

// buildRequest assembles the wire request for one attempt. It is called once
// per attempt with the same options, so the result is deterministic apart
// from the multipart boundary.
func (c *Client) buildRequest(ctx context.Context, opts *RequestOptions) (*http.Request, error) {
	headers, err := c.buildHeaders(opts)
	if err != nil {
		return nil, err
	}

	target, err := c.resolveURL(opts.URL)
	if err != nil {
		return nil, newConfigError("invalid request url %q: %v", opts.URL, err)
	}

	params := mergeMaps(c.customQuery, opts.Query)
	if len(params) > 0 {
		encoded, err := c.qs.Stringify(params)
		if err != nil {
			return nil, newConfigError("cannot serialize query: %v", err)
		}
		if target.RawQuery == "" {
			target.RawQuery = encoded
		} else {
			// The URL's own parameters win over computed ones; a cursor
			// carried inside a next-page URL must survive client defaults.
			merged, err := url.ParseQuery(encoded)
			if err != nil {
				return nil, newConfigError("cannot serialize query: %v", err)
			}
			for k, vs := range target.Query() {
				merged[k] = vs
			}
			target.RawQuery = merged.Encode()
		}
	}

	body, contentType, err := c.buildBody(opts, headers)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, target.String(), body)
	if err != nil {
		return nil, newConfigError("cannot build request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// buildBody encodes the request body. When the merged Content-Type is exactly
// multipart/form-data the header is dropped from the mapping and regenerated
// here with a boundary, and the body must be a flat mapping.
func (c *Client) buildBody(opts *RequestOptions, headers map[string]string) (io.Reader, string, error) {
	if headers["Content-Type"] == "multipart/form-data" {
		delete(headers, "Content-Type")
		return c.buildMultipartBody(opts)
	}

	if opts.RawBody != nil {
		return bytes.NewReader(opts.RawBody), "", nil
	}

	jsonBody := opts.Body
	if opts.ExtraBody != nil {
		if jsonBody == nil {
			jsonBody = opts.ExtraBody
		} else if mapping, ok := jsonBody.(map[string]any); ok {
			jsonBody = mergeMaps(mapping, opts.ExtraBody)
		} else {
			return nil, "", newConfigError("cannot merge extra body into %T body", jsonBody)
		}
	}
	if jsonBody == nil {
		return nil, "", nil
	}

	encoded, err := json.Marshal(jsonBody)
	if err != nil {
		return nil, "", newConfigError("cannot encode request body: %v", err)
	}
	return bytes.NewReader(encoded), "", nil
}

func (c *Client) buildMultipartBody(opts *RequestOptions) (io.Reader, string, error) {
	mapping := map[string]any{}
	if opts.Body != nil {
		m, ok := opts.Body.(map[string]any)
		if !ok {
			return nil, "", newConfigError("multipart requests require a mapping body, got %T", opts.Body)
		}
		mapping = m
	}

	items, err := c.multipartQS.Items(mapping)
	if err != nil {
		return nil, "", newConfigError("cannot serialize multipart fields: %v", err)
	}

	seen := make(map[string]struct{}, len(items)+len(opts.Files))
	for _, item := range items {
		if _, dup := seen[item.Key]; dup {
			return nil, "", newConfigError("duplicate multipart key %q", item.Key)
		}
		seen[item.Key] = struct{}{}
	}
	for _, file := range opts.Files {
		if _, dup := seen[file.Field]; dup {
			return nil, "", newConfigError("duplicate multipart key %q", file.Field)
		}
		seen[file.Field] = struct{}{}
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, item := range items {
		if err := writer.WriteField(item.Key, item.Value); err != nil {
			return nil, "", newConfigError("cannot write multipart field %q: %v", item.Key, err)
		}
	}
	for _, file := range opts.Files {
		part, err := writer.CreateFormFile(file.Field, file.Filename)
		if err != nil {
			return nil, "", newConfigError("cannot write multipart file %q: %v", file.Field, err)
		}
		if _, err := part.Write(file.Content); err != nil {
			return nil, "", newConfigError("cannot write multipart file %q: %v", file.Field, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", newConfigError("cannot finalize multipart body: %v", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

func (c *Client) resolveURL(raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if parsed.IsAbs() {
		return parsed, nil
	}
	if c.baseURL == nil {
		return nil, fmt.Errorf("relative url with no base url configured")
	}
	return c.baseURL.ResolveReference(parsed), nil
}
