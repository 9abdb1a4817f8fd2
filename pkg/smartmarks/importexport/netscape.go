package importexport

import (
	"fmt"
	"html"
	"io"
	"strings"

	nethtml "golang.org/x/net/html"

	"github.com/mikepea/smartmarks/pkg/smartmarks/models"
)

// Entry is one link read from an import file.
type Entry struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ParseHTML reads a Netscape bookmark file, the format every browser
// exports. Folders are flattened; entries keep document order.
func ParseHTML(r io.Reader) ([]Entry, error) {
	doc, err := nethtml.Parse(r)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	var walk func(*nethtml.Node)
	walk = func(n *nethtml.Node) {
		if n.Type == nethtml.ElementNode && strings.EqualFold(n.Data, "a") {
			href := getAttr(n, "href")
			if href == "" {
				return
			}
			entries = append(entries, Entry{Title: getTextContent(n), URL: href})
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return entries, nil
}

// WriteHTML writes list as a Netscape bookmark file.
func WriteHTML(w io.Writer, list []models.Bookmark) error {
	var b strings.Builder
	b.WriteString("<!DOCTYPE NETSCAPE-Bookmark-file-1>\n")
	b.WriteString("<META HTTP-EQUIV=\"Content-Type\" CONTENT=\"text/html; charset=UTF-8\">\n")
	b.WriteString("<TITLE>Bookmarks</TITLE>\n")
	b.WriteString("<H1>Bookmarks</H1>\n")
	b.WriteString("<DL><p>\n")
	for _, bm := range list {
		fmt.Fprintf(&b, "    <DT><A HREF=\"%s\" ADD_DATE=\"%d\">%s</A>\n",
			html.EscapeString(bm.URL),
			bm.CreatedAt.Unix(),
			html.EscapeString(bm.Title),
		)
	}
	b.WriteString("</DL><p>\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func getTextContent(n *nethtml.Node) string {
	var text strings.Builder
	var extract func(*nethtml.Node)
	extract = func(n *nethtml.Node) {
		if n.Type == nethtml.TextNode {
			text.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(text.String())
}

func getAttr(n *nethtml.Node, key string) string {
	for _, attr := range n.Attr {
		if strings.EqualFold(attr.Key, key) {
			return attr.Val
		}
	}
	return ""
}
