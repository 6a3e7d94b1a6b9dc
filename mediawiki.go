package wikigraph

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/buger/jsonparser"
	"github.com/dustin/httputil"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	// DefaultPageSize is the largest pllimit anonymous clients get.
	DefaultPageSize  = 500
	DefaultUserAgent = "go-wikigraph/1.0 (https://github.com/dustin/go-wikigraph)"
)

// APIEndpoint is the MediaWiki action API for a wikipedia language.
func APIEndpoint(lang string) string {
	return "https://" + lang + ".wikipedia.org/w/api.php"
}

// A LinksClient lists the article links of pages through the
// MediaWiki action API.
type LinksClient struct {
	Endpoint string
	Client   *http.Client
	// Limiter, if set, paces every request, continuations included.
	Limiter   *rate.Limiter
	PageSize  int
	UserAgent string
}

// NewLinksClient returns a client for the given API endpoint.
func NewLinksClient(endpoint string) *LinksClient {
	return &LinksClient{
		Endpoint:  endpoint,
		Client:    &http.Client{Timeout: DefaultRequestTimeout * 3},
		PageSize:  DefaultPageSize,
		UserAgent: DefaultUserAgent,
	}
}

func (c *LinksClient) client() *http.Client {
	if c.Client == nil {
		return http.DefaultClient
	}
	return c.Client
}

// Links returns the lower-cased titles of every namespace 0 page that
// title links to, following continuation tokens until the API has no
// more.
func (c *LinksClient) Links(ctx context.Context, title string) ([]string, error) {
	var all []string
	cont := map[string]string{}
	for {
		body, err := c.query(ctx, title, cont)
		if err != nil {
			return nil, err
		}
		links, next, err := parseLinksResponse(body)
		if err != nil {
			return nil, withKind(ErrExternalService, errors.Wrapf(err, "links of %q", title))
		}
		all = append(all, links...)
		if next == nil {
			return all, nil
		}
		if sameParams(cont, next) {
			return nil, withKind(ErrExternalService,
				errors.Errorf("links of %q: continuation did not advance", title))
		}
		cont = next
	}
}

func (c *LinksClient) query(ctx context.Context, title string, cont map[string]string) ([]byte, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	pageSize := c.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	params := url.Values{
		"action":      {"query"},
		"format":      {"json"},
		"prop":        {"links"},
		"plnamespace": {"0"},
		"pllimit":     {strconv.Itoa(pageSize)},
		"titles":      {title},
	}
	for k, v := range cont {
		params.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	res, err := c.client().Do(req)
	if err != nil {
		return nil, withKind(ErrExternalService, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, withKind(ErrExternalService,
			errors.Wrapf(httputil.HTTPErrorf(res, "%S - %B"), "links of %q", title))
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, withKind(ErrExternalService, err)
	}
	return body, nil
}

// parseLinksResponse pulls the link titles out of a query response, and
// the continuation parameters if there are more.
func parseLinksResponse(body []byte) ([]string, map[string]string, error) {
	if info, err := jsonparser.GetString(body, "error", "info"); err == nil {
		return nil, nil, errors.Errorf("api error: %s", info)
	}

	var links []string
	var inner error
	err := jsonparser.ObjectEach(body, func(_ []byte, page []byte, _ jsonparser.ValueType, _ int) error {
		_, err := jsonparser.ArrayEach(page, func(link []byte, _ jsonparser.ValueType, _ int, _ error) {
			t, err := jsonparser.GetString(link, "title")
			if err != nil {
				inner = err
				return
			}
			links = append(links, NormalizeTitle(t))
		}, "links")
		if err != nil && err != jsonparser.KeyPathNotFoundError {
			return err
		}
		return nil
	}, "query", "pages")
	if err != nil && err != jsonparser.KeyPathNotFoundError {
		return nil, nil, err
	}
	if inner != nil {
		return nil, nil, inner
	}

	raw, _, _, err := jsonparser.Get(body, "continue")
	if err == jsonparser.KeyPathNotFoundError {
		return links, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	next := map[string]string{}
	err = jsonparser.ObjectEach(raw, func(k []byte, v []byte, vt jsonparser.ValueType, _ int) error {
		s := string(v)
		if vt == jsonparser.String {
			u, err := jsonparser.ParseString(v)
			if err != nil {
				return err
			}
			s = u
		}
		next[string(k)] = s
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if len(next) == 0 {
		return links, nil, nil
	}
	return links, next, nil
}

func sameParams(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
