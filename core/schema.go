package core

import "strings"

// SchemaOrigin records how a job's schema was obtained.
type SchemaOrigin string

const (
	// SchemaOriginDefined means the schema came verbatim from a
	// user-authored prompt template.
	SchemaOriginDefined SchemaOrigin = "defined"
	// SchemaOriginIntrospected means the schema was read from the
	// destination graph's existing labels and relationship types.
	SchemaOriginIntrospected SchemaOrigin = "introspected"
	// SchemaOriginGenerated means the schema was synthesized by an LLM
	// from a sample partition.
	SchemaOriginGenerated SchemaOrigin = "generated"
)

// PropertySpec describes one property of a node label.
type PropertySpec struct {
	Name string
	Type string
}

// NodeLabel describes a node label and its properties.
type NodeLabel struct {
	Name       string
	Properties []PropertySpec
}

// RelationshipSpec describes a relationship type between two labels.
type RelationshipSpec struct {
	Type string
	From string
	To   string
}

// Schema is the structural contract the generated queries must respect:
// node labels, their properties and the relationships between them.
// A user-authored template is carried verbatim in Raw.
type Schema struct {
	Labels        []NodeLabel
	Relationships []RelationshipSpec
	Raw           string
	Origin        SchemaOrigin
}

// IsEmpty reports whether the schema carries no structural information.
func (s *Schema) IsEmpty() bool {
	return s == nil || (len(s.Labels) == 0 && len(s.Relationships) == 0 && strings.TrimSpace(s.Raw) == "")
}

// PromptText renders the schema for inclusion in an LLM prompt. A raw
// user-authored template wins over the structured form.
func (s *Schema) PromptText() string {
	if s == nil {
		return ""
	}
	if strings.TrimSpace(s.Raw) != "" {
		return s.Raw
	}

	var b strings.Builder
	if len(s.Labels) > 0 {
		b.WriteString("Node labels:\n")
		for _, label := range s.Labels {
			b.WriteString("  " + label.Name)
			if len(label.Properties) > 0 {
				props := make([]string, len(label.Properties))
				for i, p := range label.Properties {
					if p.Type != "" {
						props[i] = p.Name + ": " + p.Type
					} else {
						props[i] = p.Name
					}
				}
				b.WriteString(" {" + strings.Join(props, ", ") + "}")
			}
			b.WriteString("\n")
		}
	}
	if len(s.Relationships) > 0 {
		b.WriteString("Relationships:\n")
		for _, rel := range s.Relationships {
			b.WriteString("  (" + rel.From + ")-[:" + rel.Type + "]->(" + rel.To + ")\n")
		}
	}
	return b.String()
}
