package block

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownField is returned when a field-scoped operation names a
// field the block's schema does not declare.
var ErrUnknownField = errors.New("unknown field")

// Schema declares the field structure of a registered block. A block is
// either structured (registered here, field-scoped edits legal) or
// freeform (whole-body edits only) — the distinction is carried in the
// type system, not sniffed from content.
type Schema struct {
	Title  string
	Fields []string
}

// Scaffold returns the empty body for the schema: one markdown heading
// per field, in declaration order.
func (s Schema) Scaffold() string {
	return JoinSections(s.Fields, map[string]string{})
}

// HasField reports whether the schema declares the field.
func (s Schema) HasField(field string) bool {
	for _, f := range s.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// Registry maps block labels to their schemas. Labels absent from the
// registry are freeform. The registry is fixed at construction; it is
// safe for concurrent reads.
type Registry struct {
	schemas map[string]Schema
}

// NewRegistry builds a registry from the configured schemas.
func NewRegistry(schemas map[string]Schema) *Registry {
	m := make(map[string]Schema, len(schemas))
	for label, s := range schemas {
		m[label] = s
	}
	return &Registry{schemas: m}
}

// Lookup returns the schema for a label, if registered.
func (r *Registry) Lookup(label string) (Schema, bool) {
	s, ok := r.schemas[label]
	return s, ok
}

// Labels returns all registered labels, sorted.
func (r *Registry) Labels() []string {
	labels := make([]string, 0, len(r.schemas))
	for l := range r.schemas {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// --- Section codec ---
//
// A structured body is markdown with one "## Field" heading per schema
// field, in schema order, optionally preceded by a preamble the user
// wrote above the first heading. The codec is the single place that
// defines the mapping, so field-scoped reads and replacements stay
// stable and round-trippable: re-rendering after a field edit carries
// the preamble through verbatim. Section content must not itself
// contain a line that matches another schema field's heading.

// parseSections splits a structured body into the preamble (content
// before the first field heading) and field -> content.
func parseSections(body string, fields []string) (string, map[string]string) {
	headings := make(map[string]string, len(fields))
	for _, f := range fields {
		headings["## "+f] = f
	}

	sections := make(map[string]string, len(fields))
	for _, f := range fields {
		sections[f] = ""
	}

	preamble := ""
	current := ""
	var buf []string
	flush := func() {
		chunk := strings.TrimSpace(strings.Join(buf, "\n"))
		if current != "" {
			sections[current] = chunk
		} else {
			preamble = chunk
		}
		buf = buf[:0]
	}

	for _, line := range strings.Split(body, "\n") {
		if f, ok := headings[strings.TrimRight(line, " \t")]; ok {
			flush()
			current = f
			continue
		}
		buf = append(buf, line)
	}
	flush()

	return preamble, sections
}

// renderSections is the inverse of parseSections: preamble first, then
// one section per schema field in declaration order.
func renderSections(preamble string, fields []string, sections map[string]string) string {
	var parts []string
	if p := strings.TrimSpace(preamble); p != "" {
		parts = append(parts, p)
	}
	for _, f := range fields {
		part := "## " + f
		if v := strings.TrimSpace(sections[f]); v != "" {
			part += "\n\n" + v
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "\n\n")
}

// SplitSections parses a structured body into field -> content. Fields
// with no section or an empty section map to "".
func SplitSections(body string, fields []string) map[string]string {
	_, sections := parseSections(body, fields)
	return sections
}

// JoinSections renders field -> content into a structured body in
// schema field order. Empty sections render as a bare heading.
func JoinSections(fields []string, sections map[string]string) string {
	return renderSections("", fields, sections)
}

// SectionValue returns the content of one field within a structured body.
func SectionValue(body string, schema Schema, field string) (string, error) {
	if !schema.HasField(field) {
		return "", fmt.Errorf("field %q: %w", field, ErrUnknownField)
	}
	return SplitSections(body, schema.Fields)[field], nil
}

// ReplaceSection substitutes one field's content and re-renders the
// body. Content outside the field sections, including any preamble,
// survives the round trip.
func ReplaceSection(body string, schema Schema, field, value string) (string, error) {
	if !schema.HasField(field) {
		return "", fmt.Errorf("field %q: %w", field, ErrUnknownField)
	}
	preamble, sections := parseSections(body, schema.Fields)
	sections[field] = value
	return renderSections(preamble, schema.Fields, sections), nil
}
