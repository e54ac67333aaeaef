package agoda

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// PageKind is the position of a PageState in the traversal state machine:
// Listing -> HotelDetail -> ReviewPage(n) -> ... -> End.
type PageKind int

const (
	PageListing PageKind = iota
	PageHotelDetail
	PageReviews
	PageEnd
)

func (k PageKind) String() string {
	switch k {
	case PageListing:
		return "listing"
	case PageHotelDetail:
		return "hotel detail"
	case PageReviews:
		return "reviews"
	case PageEnd:
		return "end"
	}
	return "unknown"
}

// PageState says "the browser is currently showing this logical page". It
// carries a parsed snapshot of the rendered DOM so extraction never touches
// raw markup or the live browser.
type PageState struct {
	Kind  PageKind
	URL   *url.URL
	Title string
	Num   int // review page number, 1-based; zero for other kinds

	doc *goquery.Document
}

// Doc exposes the rendered-DOM snapshot for structural queries.
func (state *PageState) Doc() *goquery.Document {
	return state.doc
}

// HTML serializes the snapshot back to markup, for extraction backends
// that consume raw pages.
func (state *PageState) HTML() (string, error) {
	return state.doc.Html()
}

func (state *PageState) String() string {
	if state.Kind == PageReviews {
		return fmt.Sprintf("%v #%d (%v)", state.Kind, state.Num, state.URL)
	}
	return fmt.Sprintf("%v (%v)", state.Kind, state.URL)
}

// ResolveLink resolves a relative href against the page URL.
func (state *PageState) ResolveLink(relativeURL string) (string, error) {
	ref, err := state.URL.Parse(relativeURL)
	if err != nil {
		return "", err
	}
	return ref.String(), nil
}

var metaCharsetRe = regexp.MustCompile(`\bcharset=([\w-]+)`)

// NewPageState parses a rendered-HTML snapshot. If the document declares a
// non-UTF-8 charset in its head, the body is converted before parsing.
func NewPageState(kind PageKind, pageURL string, html []byte) (*PageState, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	if name := metaCharsetName(doc); name != "" && !strings.EqualFold(name, "utf-8") {
		if converted, err := convertToUtf8(html, name); err == nil {
			doc, err = goquery.NewDocumentFromReader(bytes.NewReader(converted))
			if err != nil {
				return nil, err
			}
		}
	}
	doc.Url = u

	return &PageState{
		Kind:  kind,
		URL:   u,
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
		doc:   doc,
	}, nil
}

func metaCharsetName(doc *goquery.Document) string {
	if charset, ok := doc.Find("head meta[charset]").Attr("charset"); ok {
		return charset
	}
	if content, ok := doc.Find("head meta[http-equiv='Content-Type']").Attr("content"); ok {
		if m := metaCharsetRe.FindStringSubmatch(strings.ToLower(content)); len(m) == 2 {
			return m[1]
		}
	}
	return ""
}

func convertToUtf8(body []byte, charset string) ([]byte, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, err
	}
	converted, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return nil, err
	}
	return converted, nil
}

// endState returns the terminal pagination state for a hotel traversal.
func endState(from *PageState) *PageState {
	return &PageState{Kind: PageEnd, URL: from.URL, Num: from.Num}
}
