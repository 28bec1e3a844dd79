package apicore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type userPage struct {
	Data       []testUser `json:"data"`
	NextCursor string     `json:"next_cursor"`
}

func (p *userPage) PageItems() []testUser { return p.Data }

func (p *userPage) NextPageInfo() *PageInfo {
	if p.NextCursor == "" {
		return nil
	}
	return &PageInfo{Params: map[string]any{"cursor": p.NextCursor}}
}

// cursorListHandler serves pageCount pages of two users each, linked by a
// cursor query parameter.
func cursorListHandler(t *testing.T, pageCount int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t.Helper()
		page := 0
		if cursor := r.URL.Query().Get("cursor"); cursor != "" {
			if _, err := fmt.Sscanf(cursor, "page-%d", &page); err != nil {
				t.Errorf("bad cursor %q", cursor)
			}
		}
		resp := userPage{
			Data: []testUser{
				{ID: page * 2, Name: fmt.Sprintf("user-%d", page*2)},
				{ID: page*2 + 1, Name: fmt.Sprintf("user-%d", page*2+1)},
			},
		}
		if page+1 < pageCount {
			resp.NextCursor = fmt.Sprintf("page-%d", page+1)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func TestGetAPIListFirstPage(t *testing.T) {
	c, _ := serverClient(t, cursorListHandler(t, 3))

	page, err := GetAPIList[testUser, userPage](context.Background(), c,
		NewRequestOptions("get", "/users"))
	require.NoError(t, err)

	assert.Len(t, page.Items(), 2)
	assert.True(t, page.HasNextPage())
}

func TestNextPageAdvances(t *testing.T) {
	c, _ := serverClient(t, cursorListHandler(t, 2))

	page, err := GetAPIList[testUser, userPage](context.Background(), c,
		NewRequestOptions("get", "/users"))
	require.NoError(t, err)

	second, err := page.NextPage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, second.Items()[0].ID)
	assert.False(t, second.HasNextPage())

	_, err = second.NextPage(context.Background())
	assert.ErrorIs(t, err, ErrNoNextPage)
}

func TestHasNextPageFalseOnEmptyItems(t *testing.T) {
	// A page with a cursor but no items must still be terminal.
	c, _ := serverClient(t, jsonHandler(200, `{"data":[],"next_cursor":"page-1"}`))

	page, err := GetAPIList[testUser, userPage](context.Background(), c,
		NewRequestOptions("get", "/users"))
	require.NoError(t, err)

	assert.False(t, page.HasNextPage())
	_, err = page.NextPage(context.Background())
	assert.ErrorIs(t, err, ErrNoNextPage)
}

func TestPagesIteratesAll(t *testing.T) {
	c, _ := serverClient(t, cursorListHandler(t, 3))

	first, err := GetAPIList[testUser, userPage](context.Background(), c,
		NewRequestOptions("get", "/users"))
	require.NoError(t, err)

	var pages int
	for page, err := range first.Pages(context.Background()) {
		require.NoError(t, err)
		require.NotNil(t, page)
		pages++
	}
	assert.Equal(t, 3, pages)
}

func TestAllIteratesEveryItem(t *testing.T) {
	c, _ := serverClient(t, cursorListHandler(t, 3))

	first, err := GetAPIList[testUser, userPage](context.Background(), c,
		NewRequestOptions("get", "/users"))
	require.NoError(t, err)

	var ids []int
	for item, err := range first.All(context.Background()) {
		require.NoError(t, err)
		ids = append(ids, item.ID)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, ids)
}

func TestAllStopsEarly(t *testing.T) {
	c, _ := serverClient(t, cursorListHandler(t, 3))

	first, err := GetAPIList[testUser, userPage](context.Background(), c,
		NewRequestOptions("get", "/users"))
	require.NoError(t, err)

	var seen int
	for _, err := range first.All(context.Background()) {
		require.NoError(t, err)
		seen++
		if seen == 3 {
			break
		}
	}
	assert.Equal(t, 3, seen)
}

func TestNextPageAsync(t *testing.T) {
	c, _ := serverClient(t, cursorListHandler(t, 2))

	first, err := GetAPIList[testUser, userPage](context.Background(), c,
		NewRequestOptions("get", "/users"))
	require.NoError(t, err)

	future := first.NextPageAsync(context.Background())
	second, err := future.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, second.Items()[0].ID)

	// Waiting again returns the same settled result.
	again, err := future.Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, second, again)
}

func TestGetAPIListAsync(t *testing.T) {
	c, _ := serverClient(t, cursorListHandler(t, 1))

	future := GetAPIListAsync[testUser, userPage](context.Background(), c,
		NewRequestOptions("get", "/users"))
	page, err := future.Wait(context.Background())
	require.NoError(t, err)
	assert.Len(t, page.Items(), 2)
	assert.False(t, page.HasNextPage())
}

type urlPage struct {
	Data    []testUser `json:"data"`
	NextURL string     `json:"next_url"`
}

func (p *urlPage) PageItems() []testUser { return p.Data }

func (p *urlPage) NextPageInfo() *PageInfo {
	if p.NextURL == "" {
		return nil
	}
	return &PageInfo{URL: p.NextURL}
}

func TestURLStylePagination(t *testing.T) {
	var server *httpServerRef
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/users/tail" {
			_, _ = w.Write([]byte(`{"data":[{"id":2,"name":"tail"}]}`))
			return
		}
		_, _ = fmt.Fprintf(w, `{"data":[{"id":1,"name":"head"}],"next_url":%q}`, server.url+"/users/tail")
	}
	c, s := serverClient(t, handler)
	server = &httpServerRef{url: s.URL}

	first, err := GetAPIList[testUser, urlPage](context.Background(), c,
		NewRequestOptions("get", "/users", WithQuery("limit", 1)))
	require.NoError(t, err)
	require.True(t, first.HasNextPage())

	second, err := first.NextPage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tail", second.Items()[0].Name)
	// A URL-style successor replaces the original query entirely.
	assert.Nil(t, second.opts.Query)
}

type httpServerRef struct{ url string }

func TestURLStylePaginationKeepsCursorWithDefaultQuery(t *testing.T) {
	var server *httpServerRef
	var secondQuery string
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("cursor") == "abc" {
			secondQuery = r.URL.RawQuery
			_, _ = w.Write([]byte(`{"data":[{"id":2,"name":"second"}]}`))
			return
		}
		_, _ = fmt.Fprintf(w, `{"data":[{"id":1,"name":"first"}],"next_url":%q}`, server.url+"/list?cursor=abc")
	}
	c, s := serverClient(t, handler, WithDefaultQuery(map[string]any{"limit": 10}))
	server = &httpServerRef{url: s.URL}

	first, err := GetAPIList[testUser, urlPage](context.Background(), c,
		NewRequestOptions("get", "/list"))
	require.NoError(t, err)
	require.True(t, first.HasNextPage())

	second, err := first.NextPage(context.Background())
	require.NoError(t, err)
	require.Len(t, second.Items(), 1)
	assert.Equal(t, 2, second.Items()[0].ID, "cursor was dropped: next page returned the first page again")
	assert.Contains(t, secondQuery, "limit=10")
}

func TestNextPageOptionsValidation(t *testing.T) {
	p := &Page[testUser]{opts: NewRequestOptions("get", "/users")}

	_, err := p.nextPageOptions(&PageInfo{})
	require.Error(t, err)

	_, err = p.nextPageOptions(&PageInfo{URL: "https://x", Params: map[string]any{"a": 1}})
	require.Error(t, err)
}

func TestGetJSONList(t *testing.T) {
	c, _ := serverClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("after") == "c1" {
			_, _ = w.Write([]byte(`{"result":{"entries":[{"id":3,"name":"last"}]},"meta":{}}`))
			return
		}
		_, _ = w.Write([]byte(`{"result":{"entries":[{"id":1,"name":"a"},{"id":2,"name":"b"}]},"meta":{"next":"c1"}}`))
	})

	page, err := GetJSONList[testUser](context.Background(), c,
		NewRequestOptions("get", "/entries"),
		JSONPageConfig{
			ItemsPath:   "result.entries",
			CursorPath:  "meta.next",
			CursorParam: "after",
		})
	require.NoError(t, err)
	assert.Len(t, page.Items(), 2)
	require.True(t, page.HasNextPage())

	second, err := page.NextPage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "last", second.Items()[0].Name)
	assert.False(t, second.HasNextPage())
}

func TestGetJSONListRequiresItemsPath(t *testing.T) {
	c, _ := serverClient(t, jsonHandler(200, `{}`))

	_, err := GetJSONList[testUser](context.Background(), c,
		NewRequestOptions("get", "/entries"), JSONPageConfig{})
	require.Error(t, err)
}
