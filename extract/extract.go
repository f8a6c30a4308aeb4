package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// speakerPrefixes are honorifics stripped from the author line. Longer,
// more specific prefixes come first; only the first match is removed.
var speakerPrefixes = []string{
	"By President ",
	"By Elder ",
	"By Sister ",
	"By ",
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// placeholderURL satisfies readability, which resolves relative links
// against the page URL. Talk files are read from disk, not fetched.
var placeholderURL, _ = url.Parse("file://localhost/")

// Content is the text and speaker name pulled from one talk file.
type Content struct {
	Text    string
	Speaker string
}

// Talk reads a talk HTML file and extracts its body text and the speaker
// name from the author paragraph. Speaker is empty when the page has no
// author paragraph; Text is empty when no readable text was found.
func Talk(path string) (Content, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Content{}, fmt.Errorf("read talk file: %w", err)
	}

	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return Content{}, fmt.Errorf("parse talk html: %w", err)
	}

	return Content{
		Text:    bodyText(data, doc),
		Speaker: speakerName(doc),
	}, nil
}

// bodyText prefers readability's article extraction and falls back to a
// plain text walk of the whole document when readability finds nothing.
func bodyText(data []byte, doc *html.Node) string {
	article, err := readability.FromReader(bytes.NewReader(data), placeholderURL)
	if err == nil {
		if text := normalizeText(article.TextContent); text != "" {
			return text
		}
	}
	return normalizeText(collectText(doc))
}

// speakerName finds the first <p class="author-name"> and returns its
// cleaned text, or "" if the page has none.
func speakerName(doc *html.Node) string {
	p := findAuthorParagraph(doc)
	if p == nil {
		return ""
	}
	return CleanSpeakerName(nodeText(p))
}

// CleanSpeakerName strips encoding artifacts, honorific prefixes and
// stray whitespace from a raw author line.
func CleanSpeakerName(raw string) string {
	name := raw
	name = strings.ReplaceAll(name, "Â ", " ")
	name = strings.ReplaceAll(name, "Â ", " ")
	name = strings.ReplaceAll(name, "Â", "")
	name = strings.TrimSpace(whitespaceRun.ReplaceAllString(name, " "))

	for _, prefix := range speakerPrefixes {
		if strings.HasPrefix(name, prefix) {
			name = strings.TrimSpace(name[len(prefix):])
			break
		}
	}
	return name
}

func findAuthorParagraph(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "p" && hasClass(n, "author-name") {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if p := findAuthorParagraph(c); p != nil {
			return p
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

// collectText walks the document and gathers visible text, skipping
// script and style elements.
func collectText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// normalizeText trims every line, splits lines on double-space runs and
// rejoins the non-empty pieces with single newlines.
func normalizeText(s string) string {
	var chunks []string
	for _, line := range strings.Split(s, "\n") {
		for _, phrase := range strings.Split(strings.TrimSpace(line), "  ") {
			if phrase = strings.TrimSpace(phrase); phrase != "" {
				chunks = append(chunks, phrase)
			}
		}
	}
	return strings.Join(chunks, "\n")
}
