package ingest

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Page is the readable content of an HTML document
type Page struct {
	Title string
	Text  string
	Links []Link
}

// Link is an outbound http(s) link found on a page
type Link struct {
	URL      string
	Host     string
	Text     string
	SameHost bool
}

// ParseHTML extracts title, visible text and links. sourceURL resolves
// relative links and may be empty for local files.
func ParseHTML(htmlContent, sourceURL string) (*Page, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, err
	}

	page := &Page{
		Title: title(doc),
		Text:  visibleText(doc),
	}

	if sourceURL != "" {
		base, err := url.Parse(sourceURL)
		if err != nil {
			return nil, err
		}
		page.Links = links(doc, base)
	}
	return page, nil
}

// visibleText collects text nodes, skipping scripts, styles and page chrome.
// Block elements end a line so sentence boundaries survive.
func visibleText(n *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "head", "nav", "footer", "svg":
				return
			}
		}

		if n.Type == html.TextNode {
			text := strings.Join(strings.Fields(n.Data), " ")
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode && blockElements[n.Data] {
			buf.WriteString("\n")
		}
	}

	walk(n)
	return normalizeLines(buf.String())
}

var blockElements = map[string]bool{
	"p": true, "div": true, "li": true, "br": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "blockquote": true, "pre": true,
}

func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func title(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			return strings.TrimSpace(n.FirstChild.Data)
		}
		return ""
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := title(c); t != "" {
			return t
		}
	}
	return ""
}

func links(doc *html.Node, base *url.URL) []Link {
	var out []Link
	seen := make(map[string]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			href := ""
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					href = strings.TrimSpace(attr.Val)
				}
			}

			text := ""
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				text = strings.TrimSpace(n.FirstChild.Data)
			}

			if resolved := resolveURL(base, href); resolved != "" && !seen[resolved] {
				seen[resolved] = true
				host := ""
				if parsed, err := url.Parse(resolved); err == nil {
					host = parsed.Host
				}
				out = append(out, Link{
					URL:      resolved,
					Host:     host,
					Text:     text,
					SameHost: host == base.Host,
				})
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)
	return out
}

// resolveURL resolves href against base, dropping anchors and non-http schemes
func resolveURL(base *url.URL, href string) string {
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}

	if strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return ""
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""

	return resolved.String()
}
