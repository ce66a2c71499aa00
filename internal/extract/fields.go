// Package extract pulls display fields out of XML/XSL documents: the
// stylesheet title and the heuristic organization-name lookup used to label
// pairs in the UI.
package extract

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
)

// Title returns the trimmed text content of the first <title> element in an
// XSL document, or an empty string if the element is absent or the document
// is not well-formed XML. Parse failures are recovered locally; a missing
// title never fails the pair.
func Title(doc []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	for {
		tok, err := dec.Token()
		if err != nil {
			return ""
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local == "title" {
			text, err := elementText(dec)
			if err != nil {
				return ""
			}
			return strings.TrimSpace(text)
		}
	}
}

// Organization scans an XML document depth-first for the first element whose
// tag name contains any of the given keywords and returns its trimmed text
// content. This is a best-effort lookup over the whole document, not
// schema-driven; an empty string means no match or unparseable input.
func Organization(doc []byte, keywords []string) string {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}

	dec := xml.NewDecoder(bytes.NewReader(doc))
	for {
		tok, err := dec.Token()
		if err != nil {
			return ""
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if matchesKeyword(start.Name.Local, keywords) {
			text, err := elementText(dec)
			if err != nil {
				return ""
			}
			return strings.TrimSpace(text)
		}
	}
}

func matchesKeyword(tag string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(tag, kw) {
			return true
		}
	}
	return false
}

// elementText collects all character data under the element whose start tag
// the decoder just consumed, up to the matching end tag.
func elementText(dec *xml.Decoder) (string, error) {
	var sb strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				break
			}
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			sb.Write(t)
		}
	}
	return sb.String(), nil
}
