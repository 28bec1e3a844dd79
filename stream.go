package apicore

import (
	"bufio"
	"context"
	"net/http"
)

// StreamFactory turns a raw streaming response into a caller-facing stream
// handle. The factory owns resp.Body and must arrange for it to be closed.
type StreamFactory func(resp *http.Response) (any, error)

// DoStream executes the request like Do but hands the raw response to a
// stream factory instead of decoding it. The call-level factory wins over
// the client default. The factory is resolved only once a successful
// response is in hand; error responses classify and retry as usual, and a
// missing factory then surfaces as a fatal missing-stream-handler error.
func (c *Client) DoStream(ctx context.Context, opts *RequestOptions, factory StreamFactory) (any, error) {
	if err := c.preflight(); err != nil {
		return nil, err
	}

	method := opts.Method
	endpoint := opts.URL
	c.metrics.RecordRequestStart(method, endpoint)
	defer c.metrics.RecordRequestEnd(method, endpoint)

	resp, err := c.send(ctx, opts)
	if err != nil {
		c.recordError(err, method, endpoint)
		return nil, err
	}
	if factory == nil {
		factory = c.defaultStreamFactory
	}
	if factory == nil {
		_ = resp.Body.Close()
		err := newMissingStreamHandlerError()
		c.recordError(err, method, endpoint)
		return nil, err
	}
	stream, err := factory(resp)
	if err != nil {
		_ = resp.Body.Close()
		c.recordError(err, method, endpoint)
		return nil, err
	}
	return stream, nil
}

// LineStream iterates a response body line by line. It is a minimal concrete
// stream handle suitable for newline-delimited payloads.
type LineStream struct {
	resp    *http.Response
	scanner *bufio.Scanner
	err     error
	closed  bool
}

// NewLineStream wraps resp in a LineStream. It satisfies StreamFactory when
// wrapped:
//
//	client.DoStream(ctx, opts, func(r *http.Response) (any, error) {
//		return apicore.NewLineStream(r), nil
//	})
func NewLineStream(resp *http.Response) *LineStream {
	return &LineStream{
		resp:    resp,
		scanner: bufio.NewScanner(resp.Body),
	}
}

// Next advances to the next line. It returns false at end of stream or on
// error; consult Err to distinguish.
func (s *LineStream) Next() bool {
	if s.closed || s.err != nil {
		return false
	}
	if s.scanner.Scan() {
		return true
	}
	s.err = s.scanner.Err()
	return false
}

// Text returns the current line without its trailing newline.
func (s *LineStream) Text() string {
	return s.scanner.Text()
}

// Err returns the first read error encountered, if any.
func (s *LineStream) Err() error {
	return s.err
}

// Close releases the underlying response body. Safe to call multiple times.
func (s *LineStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.resp.Body.Close()
}
