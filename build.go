package wikigraph

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// staged is an article waiting for the graph build: its id, its
// normalized title and its normalized link targets.
type staged struct {
	id    uint64
	title string
	links []string
}

// graphBuilder collects pages in document order and then resolves
// them into a Graph. Links may point at articles further down the
// dump, so nothing is resolved until every page has been added.
type graphBuilder struct {
	arena []staged
	slot  map[string]int

	aliases     map[string]string
	aliasCounts map[string]int
	titles      map[string]string

	stats ParseStats
}

func newGraphBuilder() *graphBuilder {
	return &graphBuilder{
		slot:        map[string]int{},
		aliases:     map[string]string{},
		aliasCounts: map[string]int{},
		titles:      map[string]string{},
	}
}

// add stages one page. Pages outside the article namespace are ignored;
// article pages without a usable id or title yield an error matching
// ErrMalformedFragment and contribute nothing.
func (b *graphBuilder) add(p *Page) error {
	if !p.IsArticle() {
		return nil
	}
	rawID := strings.TrimSpace(p.ID)
	if rawID == "" || p.Title == "" {
		return errors.Wrapf(ErrMalformedFragment, "page %q id %q", p.Title, rawID)
	}
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		return withKind(ErrMalformedFragment, errors.Wrapf(err, "page %q", p.Title))
	}

	b.stats.Pages++
	title := NormalizeTitle(p.Title)

	if target := p.RedirectTarget(); target != "" {
		target = NormalizeTitle(target)
		b.stats.Redirects++
		b.aliases[title] = target
		b.aliasCounts[target]++
		return nil
	}

	b.titles[title] = p.Title
	links := FindLinks(p.Text())
	for i := range links {
		links[i] = NormalizeTitle(links[i])
	}

	rec := staged{id: id, title: title, links: links}
	if i, ok := b.slot[title]; ok {
		b.arena[i] = rec
		return nil
	}
	b.slot[title] = len(b.arena)
	b.arena = append(b.arena, rec)
	return nil
}

// resolve follows a link target through the alias table, one hop.
func (b *graphBuilder) resolve(link string) string {
	if target, ok := b.aliases[link]; ok {
		return target
	}
	return link
}

// build turns the staged articles into a Graph and releases them.
//
// Links to titles with no staged article are dropped, as are links
// that resolve back to their source. Vertices are numbered by
// ascending original id.
func (b *graphBuilder) build() *Graph {
	nodes := make(map[string]uint64, len(b.arena))
	names := make(map[uint64]string, len(b.arena))
	type rawEdge struct{ src, dst uint64 }
	var raw []rawEdge

	for _, a := range b.arena {
		if _, ok := nodes[a.title]; !ok {
			nodes[a.title] = a.id
			names[a.id] = a.title
		}
		src := a.id

		for _, link := range a.links {
			resolved := b.resolve(link)
			dst, ok := nodes[resolved]
			if !ok {
				i, found := b.slot[resolved]
				if !found {
					continue
				}
				dst = b.arena[i].id
				nodes[resolved] = dst
				names[dst] = resolved
			}
			if src != dst {
				raw = append(raw, rawEdge{src, dst})
			}
		}
	}

	b.arena = nil
	b.slot = nil

	ids := make([]uint64, 0, len(names))
	for id := range names {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	index := make(map[uint64]int, len(ids))
	vertices := make([]Vertex, len(ids))
	for i, id := range ids {
		index[id] = i
		vertices[i] = Vertex{Index: i, OriginalID: id, Title: names[id]}
	}

	edges := make([]Edge, len(raw))
	for i, e := range raw {
		edges[i] = Edge{Source: index[e.src], Target: index[e.dst]}
	}
	return newGraph(vertices, edges)
}
