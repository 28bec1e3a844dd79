package apicore

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"reflect"
	"strings"
)

// ResponseBuilder lets a destination type take over its own construction.
// Data is the raw JSON document of the response body.
type ResponseBuilder interface {
	BuildFromResponse(resp *http.Response, data []byte) error
}

// processResponse converts a 2xx response into the caller's destination:
//
//	nil             -> no content; the body is discarded
//	*string         -> the body text
//	**http.Response -> the live response handle (caller owns the body)
//	ResponseBuilder -> delegated construction
//	other pointer   -> JSON decoding, strict or permissive
//
// Everything that goes wrong here is fatal: retrying would reproduce the
// same malformed response.
func (c *Client) processResponse(req *http.Request, resp *http.Response, dst any) error {
	if dst == nil {
		return drainAndClose(req, resp)
	}

	switch d := dst.(type) {
	case **http.Response:
		*d = resp
		return nil
	case *http.Response:
		// Guards against the tempting-but-wrong single-pointer form. Only
		// the exact **http.Response destination receives the handle.
		return newConfigError("raw response destinations must be **http.Response, got *http.Response")
	case *string:
		body, err := readBody(req, resp)
		if err != nil {
			return err
		}
		*d = string(body)
		return nil
	}

	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return newConfigError("response destination must be a non-nil pointer, got %T", dst)
	}

	contentType := resp.Header.Get("Content-Type")
	if base, _, found := strings.Cut(contentType, ";"); found {
		contentType = base
	}
	if strings.TrimSpace(contentType) != "application/json" {
		return newResponseValidationError(req, resp,
			"expected Content-Type application/json, got "+resp.Header.Get("Content-Type"), nil)
	}

	body, err := readBody(req, resp)
	if err != nil {
		return err
	}

	// A JSON null body short-circuits to the zero value of the destination,
	// custom builders included.
	if isJSONNull(body) {
		rv.Elem().Set(reflect.Zero(rv.Elem().Type()))
		return nil
	}

	if builder, ok := dst.(ResponseBuilder); ok {
		if err := builder.BuildFromResponse(resp, body); err != nil {
			return newResponseValidationError(req, resp, "response builder failed", err)
		}
		return nil
	}

	if c.strictValidation {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil {
			return newResponseValidationError(req, resp, "response failed strict validation", err)
		}
		return nil
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return newResponseValidationError(req, resp, "cannot decode response body", err)
	}
	return nil
}

func isJSONNull(body []byte) bool {
	return string(bytes.TrimSpace(body)) == "null"
}

// readBody drains and closes the response body. A timeout during the read
// means the server hung mid-response; it is surfaced as a terminal timeout.
func readBody(req *http.Request, resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, newTimeoutError(req, err)
		}
		return nil, newConnectionError(req, err)
	}
	return body, nil
}

func drainAndClose(req *http.Request, resp *http.Response) error {
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		if isTimeout(err) {
			return newTimeoutError(req, err)
		}
		return newConnectionError(req, err)
	}
	return nil
}
