package resolver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/saintfish/chardet"
	"go2tv.app/go2cast/media"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
)

// Listing fetches the directory index at baseURL and returns one reference
// per ul > li > a[href] entry, in document order. Each URL is baseURL with
// the href appended; the title is the unescaped href.
func (r *Resolver) Listing(ctx context.Context, baseURL string) ([]media.Reference, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("%w: empty listing url", ErrMalformedInput)
	}

	body, contentType, err := r.fetch(ctx, baseURL)
	if err != nil {
		return nil, fmt.Errorf("Listing: %w", err)
	}

	hrefs, err := ListingHrefs(decodeHTML(body, contentType))
	if err != nil {
		return nil, fmt.Errorf("Listing parse: %w", err)
	}

	refs := make([]media.Reference, 0, len(hrefs))
	for _, href := range hrefs {
		title, err := url.PathUnescape(href)
		if err != nil {
			title = href
		}

		refs = append(refs, media.Reference{
			URL:      baseURL + href,
			MimeType: r.mimeType,
			Title:    title,
		})
	}

	r.log.Debug().Str("Method", "Listing").Str("URL", baseURL).Int("Entries", len(refs)).Msg("listing resolved")
	return refs, nil
}

// ListingHrefs returns the href of every anchor whose parent is a list item
// of an unordered list, in document order.
func ListingHrefs(r io.Reader) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var hrefs []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if isListAnchor(n) {
			for _, a := range n.Attr {
				if a.Namespace == "" && a.Key == "href" {
					hrefs = append(hrefs, a.Val)
					break
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return hrefs, nil
}

func isListAnchor(n *html.Node) bool {
	if n.Type != html.ElementNode || n.DataAtom != atom.A {
		return false
	}

	li := n.Parent
	if li == nil || li.Type != html.ElementNode || li.DataAtom != atom.Li {
		return false
	}

	ul := li.Parent
	return ul != nil && ul.Type == html.ElementNode && ul.DataAtom == atom.Ul
}

// decodeHTML converts body to UTF-8. A declared charset (header, BOM or
// meta tag) wins. When nothing is declared and the body is not valid UTF-8
// the html package falls back to windows-1252; chardet gets a say first.
func decodeHTML(body []byte, contentType string) io.Reader {
	enc, name, certain := charset.DetermineEncoding(body, contentType)
	if !certain && name == "windows-1252" {
		if res, err := chardet.NewHtmlDetector().DetectBest(body); err == nil {
			if guessed, guessedName := charset.Lookup(res.Charset); guessed != nil {
				enc, name = guessed, guessedName
			}
		}
	}

	if name == "utf-8" {
		return bytes.NewReader(body)
	}

	return enc.NewDecoder().Reader(bytes.NewReader(body))
}
