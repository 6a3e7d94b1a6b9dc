package wikigraph

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const linksPage1 = `{
  "continue": {"plcontinue": "736|0|Einstein_family", "continue": "||"},
  "query": {"pages": {"736": {"pageid": 736, "ns": 0, "title": "Albert Einstein",
    "links": [{"ns": 0, "title": "Annus Mirabilis papers"}, {"ns": 0, "title": "Atomic bomb"}]}}}
}`

const linksPage2 = `{
  "batchcomplete": "",
  "query": {"pages": {"736": {"pageid": 736, "ns": 0, "title": "Albert Einstein",
    "links": [{"ns": 0, "title": "Zurich"}]}}}
}`

func TestLinksFollowsContinuation(t *testing.T) {
	var mu sync.Mutex
	var queries []map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		mu.Lock()
		queries = append(queries, map[string]string{
			"titles":     q.Get("titles"),
			"plcontinue": q.Get("plcontinue"),
			"pllimit":    q.Get("pllimit"),
			"agent":      r.UserAgent(),
		})
		mu.Unlock()
		if q.Get("plcontinue") == "" {
			fmt.Fprint(w, linksPage1)
			return
		}
		fmt.Fprint(w, linksPage2)
	}))
	defer srv.Close()

	c := NewLinksClient(srv.URL)
	c.PageSize = 2
	links, err := c.Links(context.Background(), "Albert Einstein")
	require.NoError(t, err)
	assert.Equal(t, []string{"annus mirabilis papers", "atomic bomb", "zurich"}, links)

	require.Len(t, queries, 2)
	assert.Equal(t, "Albert Einstein", queries[0]["titles"])
	assert.Equal(t, "2", queries[0]["pllimit"])
	assert.Equal(t, DefaultUserAgent, queries[0]["agent"])
	assert.Equal(t, "", queries[0]["plcontinue"])
	assert.Equal(t, "736|0|Einstein_family", queries[1]["plcontinue"])
}

func TestLinksStuckContinuation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, linksPage1)
	}))
	defer srv.Close()

	_, err := NewLinksClient(srv.URL).Links(context.Background(), "Albert Einstein")
	require.ErrorIs(t, err, ErrExternalService)
}

func TestLinksHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewLinksClient(srv.URL).Links(context.Background(), "100% Cotton")
	require.ErrorIs(t, err, ErrExternalService)
	assert.Contains(t, err.Error(), "100% Cotton")
	assert.Contains(t, err.Error(), "maintenance")
}

func TestParseLinksResponse(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		links []string
		next  map[string]string
		fail  bool
	}{
		{"missing page", `{"query":{"pages":{"-1":{"ns":0,"title":"Nope","missing":""}}}}`, nil, nil, false},
		{"no pages", `{"batchcomplete":""}`, nil, nil, false},
		{"empty continue", `{"continue":{},"query":{"pages":{"1":{"links":[{"title":"X"}]}}}}`,
			[]string{"x"}, nil, false},
		{"numeric continue", `{"continue":{"plcontinue":"1|0|B","offset":20}}`,
			nil, map[string]string{"plcontinue": "1|0|B", "offset": "20"}, false},
		{"api error", `{"error":{"code":"badvalue","info":"Unrecognized value"}}`, nil, nil, true},
		{"link without title", `{"query":{"pages":{"1":{"links":[{"ns":0}]}}}}`, nil, nil, true},
	}

	for _, test := range tests {
		links, next, err := parseLinksResponse([]byte(test.body))
		if test.fail {
			assert.Error(t, err, test.name)
			continue
		}
		require.NoError(t, err, test.name)
		assert.Equal(t, test.links, links, test.name)
		assert.Equal(t, test.next, next, test.name)
	}
}

func TestAPIEndpoint(t *testing.T) {
	assert.Equal(t, "https://de.wikipedia.org/w/api.php", APIEndpoint("de"))
}
