// Package qs serializes structured query parameters into wire form.
// It supports the array formats commonly accepted by JSON REST APIs and is
// also used to flatten multipart form fields.
package qs

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ArrayFormat selects how slice values are rendered.
type ArrayFormat string

const (
	// Repeat renders a=1&a=2.
	Repeat ArrayFormat = "repeat"
	// Comma renders a=1,2.
	Comma ArrayFormat = "comma"
	// Brackets renders a[]=1&a[]=2.
	Brackets ArrayFormat = "brackets"
)

// Pair is one serialized key/value item. Order is deterministic (keys sorted,
// slice elements in input order).
type Pair struct {
	Key   string
	Value string
}

// Stringifier converts parameter mappings into query strings or flat items.
type Stringifier struct {
	arrayFormat ArrayFormat
}

// New returns a Stringifier using the given array format.
func New(format ArrayFormat) *Stringifier {
	if format == "" {
		format = Repeat
	}
	return &Stringifier{arrayFormat: format}
}

// Stringify renders params as a URL-encoded query string.
func (s *Stringifier) Stringify(params map[string]any) (string, error) {
	items, err := s.Items(params)
	if err != nil {
		return "", err
	}
	values := url.Values{}
	for _, item := range items {
		values.Add(item.Key, item.Value)
	}
	return values.Encode(), nil
}

// Items flattens params into ordered key/value pairs without URL encoding.
// Nested mappings produce bracketed keys (parent[child]); slices follow the
// configured array format. Nil values are skipped.
func (s *Stringifier) Items(params map[string]any) ([]Pair, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var items []Pair
	for _, k := range keys {
		flattened, err := s.flatten(k, params[k])
		if err != nil {
			return nil, err
		}
		items = append(items, flattened...)
	}
	return items, nil
}

func (s *Stringifier) flatten(key string, value any) ([]Pair, error) {
	if value == nil {
		return nil, nil
	}

	switch v := value.(type) {
	case map[string]any:
		subKeys := make([]string, 0, len(v))
		for k := range v {
			subKeys = append(subKeys, k)
		}
		sort.Strings(subKeys)

		var items []Pair
		for _, sub := range subKeys {
			flattened, err := s.flatten(key+"["+sub+"]", v[sub])
			if err != nil {
				return nil, err
			}
			items = append(items, flattened...)
		}
		return items, nil
	case []any:
		return s.flattenSlice(key, v)
	case []string:
		elems := make([]any, len(v))
		for i, e := range v {
			elems[i] = e
		}
		return s.flattenSlice(key, elems)
	default:
		text, err := primitive(value)
		if err != nil {
			return nil, err
		}
		return []Pair{{Key: key, Value: text}}, nil
	}
}

func (s *Stringifier) flattenSlice(key string, elems []any) ([]Pair, error) {
	switch s.arrayFormat {
	case Comma:
		parts := make([]string, 0, len(elems))
		for _, e := range elems {
			if e == nil {
				continue
			}
			text, err := primitive(e)
			if err != nil {
				return nil, err
			}
			parts = append(parts, text)
		}
		if len(parts) == 0 {
			return nil, nil
		}
		return []Pair{{Key: key, Value: strings.Join(parts, ",")}}, nil
	case Brackets:
		key += "[]"
		fallthrough
	default:
		var items []Pair
		for _, e := range elems {
			flattened, err := s.flatten(key, e)
			if err != nil {
				return nil, err
			}
			items = append(items, flattened...)
		}
		return items, nil
	}
}

func primitive(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("qs: unsupported value type %T", value)
	}
}
