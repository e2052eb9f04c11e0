package manifest

import (
	"encoding/xml"
	"fmt"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/kiwi-labs/kiwi/internal/directive"
)

// Format identifies where a document's metadata was found.
type Format string

const (
	FormatFrontMatter Format = "front-matter"
	FormatXML         Format = "xml"
)

// Document is the metadata block of a directive file.
type Document struct {
	Name        string `yaml:"name" json:"name,omitempty"`
	Version     string `yaml:"version,omitempty" json:"version,omitempty"`
	Description string `yaml:"description" json:"description,omitempty"`
	Category    string `yaml:"category" json:"category,omitempty"`
	Subcategory string `yaml:"subcategory,omitempty" json:"subcategory,omitempty"`
	TechStack   List   `yaml:"tech_stack,omitempty" json:"tech_stack,omitempty"`
	Tags        List   `yaml:"tags,omitempty" json:"tags,omitempty"`

	Format Format `yaml:"-" json:"-"`
}

// Artifact converts the document into the metadata shared by every tier.
func (d *Document) Artifact() directive.Artifact {
	return directive.Artifact{
		Name:        d.Name,
		Category:    d.Category,
		Subcategory: d.Subcategory,
		Description: d.Description,
		TechStack:   []string(d.TechStack),
		Tags:        []string(d.Tags),
	}
}

// List is a string list that may be written either as a sequence or as a
// single comma-separated string. The literal "any" means no entries.
type List []string

// UnmarshalYAML accepts a scalar ("React, Zustand") or a sequence.
func (l *List) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*l = splitList(value.Value)
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*l = cleanList(items)
		return nil
	default:
		return fmt.Errorf("line %d: expected string or list", value.Line)
	}
}

// UnmarshalXML accepts text content ("React, Zustand") or one child element
// per entry (<framework>React</framework><state>Zustand</state>).
func (l *List) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var text strings.Builder
	var items []string
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var s string
			if err := d.DecodeElement(&s, &t); err != nil {
				return err
			}
			items = append(items, s)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if len(items) > 0 {
				*l = cleanList(items)
			} else {
				*l = splitList(text.String())
			}
			return nil
		}
	}
}

func splitList(s string) List {
	return cleanList(strings.Split(s, ","))
}

func cleanList(items []string) List {
	var out List
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || strings.EqualFold(item, "any") {
			continue
		}
		out = append(out, item)
	}
	return out
}
