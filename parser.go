package wikigraph

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// The toplevel site info describing basic dump properties.
type SiteInfo struct {
	SiteName   string `xml:"sitename"`
	Base       string `xml:"base"`
	Generator  string `xml:"generator"`
	Case       string `xml:"case"`
	Namespaces []struct {
		Key   string `xml:"key,attr"`
		Case  string `xml:"case,attr"`
		Value string `xml:",chardata"`
	} `xml:"namespaces>namespace"`
}

// A user who contributed a revision.
type Contributor struct {
	ID       uint64 `xml:"id"`
	Username string `xml:"username"`
}

// A revision to a page.
type Revision struct {
	ID          uint64      `xml:"id"`
	Timestamp   string      `xml:"timestamp"`
	Contributor Contributor `xml:"contributor"`
	Comment     string      `xml:"comment"`
	Text        string      `xml:"text"`
}

// Redirect names the page a redirect page points to.
type Redirect struct {
	Title string `xml:"title,attr"`
}

// A wiki page.
//
// NS and ID are kept as text so a page with a garbled number can be
// skipped without upsetting the decoder.
type Page struct {
	Title     string     `xml:"title"`
	NS        string     `xml:"ns"`
	ID        string     `xml:"id"`
	Redirect  *Redirect  `xml:"redirect"`
	Revisions []Revision `xml:"revision"`
}

// Text is the text of the page's latest revision.
func (p *Page) Text() string {
	if len(p.Revisions) == 0 {
		return ""
	}
	return p.Revisions[len(p.Revisions)-1].Text
}

// RedirectTarget is the title this page redirects to, or "".
func (p *Page) RedirectTarget() string {
	if p.Redirect == nil {
		return ""
	}
	return p.Redirect.Title
}

// IsArticle reports whether the page is in the main (article)
// namespace.
func (p *Page) IsArticle() bool {
	return strings.TrimSpace(p.NS) == "0"
}

// That which emits wiki pages.
type Parser struct {
	// The toplevel site info, if the dump had one before its first page.
	SiteInfo SiteInfo
	x        *xml.Decoder
	pending  *xml.StartElement
}

// NewParser gets a wikipedia dump parser reading from the given reader.
func NewParser(r io.Reader) (*Parser, error) {
	p := &Parser{x: xml.NewDecoder(r)}
	for {
		t, err := p.x.Token()
		if err == io.EOF {
			return p, nil
		}
		if err != nil {
			return nil, withKind(ErrIOFailure, err)
		}
		se, ok := t.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "siteinfo":
			if err := p.x.DecodeElement(&p.SiteInfo, &se); err != nil {
				return nil, withKind(ErrIOFailure, err)
			}
			return p, nil
		case "page":
			p.pending = &se
			return p, nil
		}
	}
}

// Next gets the next page from the parser. It returns io.EOF after the
// last page.
//
// A page whose contents do not fit the page shape yields an error
// matching ErrMalformedFragment; parsing may continue after it. Any
// other error means the dump cannot be read further.
func (p *Parser) Next() (*Page, error) {
	se, err := p.nextPageStart()
	if err != nil {
		return nil, err
	}
	rv := new(Page)
	err = p.x.DecodeElement(rv, se)
	if err == nil {
		return rv, nil
	}
	var syntax *xml.SyntaxError
	if errors.As(err, &syntax) || err == io.EOF || err == io.ErrUnexpectedEOF {
		return nil, withKind(ErrIOFailure, err)
	}
	return nil, withKind(ErrMalformedFragment, err)
}

func (p *Parser) nextPageStart() (*xml.StartElement, error) {
	if p.pending != nil {
		se := p.pending
		p.pending = nil
		return se, nil
	}
	for {
		t, err := p.x.Token()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, withKind(ErrIOFailure, err)
		}
		if se, ok := t.(xml.StartElement); ok && se.Name.Local == "page" {
			return &se, nil
		}
	}
}

// Line is the input line the parser has reached.
func (p *Parser) Line() int {
	line, _ := p.x.InputPos()
	return line
}
