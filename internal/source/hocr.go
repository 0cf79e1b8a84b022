package source

import (
	"bytes"
	"fmt"
	"image"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

// Classes tesseract and kraken emit for text lines
var hocrLineClasses = []string{"ocr_line", "ocr_header", "ocr_caption", "ocr_textfloat"}

// ParseHOCRLines returns every text line of an hOCR page in document
// order. Lines without words are kept as blank lines so that indices stay
// aligned with the segmentation.
func ParseHOCRLines(data []byte) ([]Line, error) {
	if enc := declaredCharset(data); enc != "" && enc != "utf-8" && enc != "utf8" {
		decoded, err := decodeCharset(enc, data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", enc, err)
		}
		data = decoded
	}

	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing hOCR: %w", err)
	}

	var lines []Line
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && isLineNode(n) {
			lines = append(lines, lineFromNode(n, len(lines)))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if len(lines) == 0 {
		return nil, fmt.Errorf("no ocr_line elements found in hOCR data")
	}
	return lines, nil
}

// decodeCharset converts data from the named charset to UTF-8. Names the
// HTML encoding index does not know are read as ISO-8859-1.
func decodeCharset(name string, data []byte) ([]byte, error) {
	enc, err := htmlindex.Get(name)
	if err != nil {
		enc = charmap.ISO8859_1
	}
	return enc.NewDecoder().Bytes(data)
}

func declaredCharset(data []byte) string {
	head := strings.ToLower(string(data[:min(len(data), 2048)]))
	i := strings.Index(head, "charset=")
	if i < 0 {
		return ""
	}
	fields := strings.FieldsFunc(head[i+len("charset="):], func(r rune) bool {
		return r == '"' || r == ';' || r == '\'' || r == '>' || r == ' ' || r == '/'
	})
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func isLineNode(n *html.Node) bool {
	for _, class := range strings.Fields(attr(n, "class")) {
		for _, want := range hocrLineClasses {
			if class == want {
				return true
			}
		}
	}
	return false
}

func lineFromNode(n *html.Node, index int) Line {
	props := parseTitle(attr(n, "title"))
	line := Line{
		Index: index,
		ID:    attr(n, "id"),
		Text:  lineText(n),
	}
	if bbox := props["bbox"]; len(bbox) >= 4 {
		var v [4]int
		for i := range v {
			v[i], _ = strconv.Atoi(bbox[i])
		}
		line.Box = image.Rect(v[0], v[1], v[2], v[3])
	}
	if conf := props["x_wconf"]; len(conf) > 0 {
		line.Confidence, _ = strconv.ParseFloat(conf[0], 64)
	}
	return line
}

// lineText joins the words of a line with single spaces. A line without
// ocrx_word children falls back to its whole text content.
func lineText(n *html.Node) string {
	var words []string
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.ElementNode && strings.Contains(attr(c, "class"), "ocrx_word") {
			if w := strings.TrimSpace(textContent(c)); w != "" {
				words = append(words, w)
			}
			return
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			walk(k)
		}
	}
	walk(n)
	if len(words) == 0 {
		return strings.Join(strings.Fields(textContent(n)), " ")
	}
	return strings.Join(words, " ")
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}

// parseTitle splits "bbox 1 2 3 4; x_wconf 95" into its properties
func parseTitle(title string) map[string][]string {
	props := make(map[string][]string)
	for _, part := range strings.Split(title, ";") {
		items := strings.Fields(part)
		if len(items) > 0 {
			props[items[0]] = items[1:]
		}
	}
	return props
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
