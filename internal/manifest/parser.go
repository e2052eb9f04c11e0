package manifest

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"go.yaml.in/yaml/v3"
)

// ErrNoMetadata is returned when a file carries neither front matter nor a
// <directive> block.
var ErrNoMetadata = errors.New("no directive metadata found")

var (
	directiveStart = regexp.MustCompile(`<directive[\s>]`)
	directiveEnd   = []byte("</directive>")
	frontMatterSep = []byte("---")
)

// xmlDirective mirrors the parts of the <directive> block the engine reads.
// Everything else (process steps, content) is ignored.
type xmlDirective struct {
	XMLName  xml.Name `xml:"directive"`
	Name     string   `xml:"name,attr"`
	Version  string   `xml:"version,attr"`
	Metadata struct {
		Description string `xml:"description"`
		Category    string `xml:"category"`
		Subcategory string `xml:"subcategory"`
		Tags        List   `xml:"tags"`
	} `xml:"metadata"`
	Context struct {
		TechStack List `xml:"tech_stack"`
	} `xml:"context"`
}

// Parse extracts the metadata of a directive file. Front matter wins when
// the file starts with "---"; otherwise the first <directive> block up to
// the last </directive> is decoded.
func Parse(data []byte) (*Document, error) {
	if fm, ok := frontMatter(data); ok {
		return parseFrontMatter(fm)
	}
	block := directiveBlock(data)
	if block == nil {
		return nil, ErrNoMetadata
	}
	return parseXML(block)
}

// ParseFile reads and parses a directive file.
func ParseFile(path string) (*Document, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing directive %s: %w", path, err)
	}
	return doc, nil
}

func parseFrontMatter(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling front matter: %w", err)
	}
	doc.Format = FormatFrontMatter
	trimDocument(&doc)
	return &doc, nil
}

func parseXML(block []byte) (*Document, error) {
	var x xmlDirective
	dec := xml.NewDecoder(bytes.NewReader(block))
	// Directive bodies embed code samples; tolerate HTML-ish content.
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity
	if err := dec.Decode(&x); err != nil {
		return nil, fmt.Errorf("decoding <directive> block: %w", err)
	}
	doc := &Document{
		Name:        x.Name,
		Version:     x.Version,
		Description: x.Metadata.Description,
		Category:    x.Metadata.Category,
		Subcategory: x.Metadata.Subcategory,
		Tags:        x.Metadata.Tags,
		TechStack:   x.Context.TechStack,
		Format:      FormatXML,
	}
	trimDocument(doc)
	return doc, nil
}

// frontMatter returns the YAML between a leading "---" line and the next
// "---" line.
func frontMatter(data []byte) ([]byte, bool) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	first, rest, ok := cutLine(data)
	if !ok || !bytes.Equal(bytes.TrimSpace(first), frontMatterSep) {
		return nil, false
	}
	var body []byte
	for len(rest) > 0 {
		var line []byte
		line, rest, _ = cutLine(rest)
		if bytes.Equal(bytes.TrimSpace(line), frontMatterSep) {
			return body, true
		}
		body = append(body, line...)
		body = append(body, '\n')
	}
	return nil, false
}

func cutLine(data []byte) (line, rest []byte, found bool) {
	line, rest, found = bytes.Cut(data, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r")), rest, found
}

func directiveBlock(data []byte) []byte {
	loc := directiveStart.FindIndex(data)
	if loc == nil {
		return nil
	}
	end := bytes.LastIndex(data, directiveEnd)
	if end < loc[0] {
		return nil
	}
	return data[loc[0] : end+len(directiveEnd)]
}

func trimDocument(d *Document) {
	d.Name = strings.TrimSpace(d.Name)
	d.Version = strings.TrimSpace(d.Version)
	d.Description = strings.TrimSpace(d.Description)
	d.Category = strings.TrimSpace(d.Category)
	d.Subcategory = strings.TrimSpace(d.Subcategory)
}

// readFile reads the contents of a file at the given path.
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return data, nil
}
