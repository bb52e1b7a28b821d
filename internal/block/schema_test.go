package block

import (
	"errors"
	"strings"
	"testing"
)

var studentSchema = Schema{
	Title:  "Student Profile",
	Fields: []string{"Name", "Interests", "Learning Style"},
}

func TestScaffold(t *testing.T) {
	want := "## Name\n\n## Interests\n\n## Learning Style"
	if got := studentSchema.Scaffold(); got != want {
		t.Errorf("Scaffold() = %q, want %q", got, want)
	}
}

func TestHasField(t *testing.T) {
	if !studentSchema.HasField("Interests") {
		t.Error("HasField(Interests) = false, want true")
	}
	if studentSchema.HasField("interests") {
		t.Error("field match must be exact, got case-insensitive hit")
	}
}

func TestSplitSections(t *testing.T) {
	body := "## Name\n\nCamila\n\n## Interests\n\nchess\npiano\n\n## Learning Style"
	sections := SplitSections(body, studentSchema.Fields)

	if sections["Name"] != "Camila" {
		t.Errorf("Name = %q, want %q", sections["Name"], "Camila")
	}
	if sections["Interests"] != "chess\npiano" {
		t.Errorf("Interests = %q, want %q", sections["Interests"], "chess\npiano")
	}
	if sections["Learning Style"] != "" {
		t.Errorf("empty section = %q, want empty", sections["Learning Style"])
	}
}

func TestSplitSections_MissingHeadings(t *testing.T) {
	sections := SplitSections("no headings here", studentSchema.Fields)
	for _, f := range studentSchema.Fields {
		if sections[f] != "" {
			t.Errorf("field %q = %q, want empty", f, sections[f])
		}
	}
}

func TestJoinSplit_RoundTrip(t *testing.T) {
	sections := map[string]string{
		"Name":      "Camila",
		"Interests": "chess\npiano",
	}
	body := JoinSections(studentSchema.Fields, sections)
	back := SplitSections(body, studentSchema.Fields)

	for _, f := range studentSchema.Fields {
		if back[f] != sections[f] {
			t.Errorf("round trip %q: got %q, want %q", f, back[f], sections[f])
		}
	}
}

func TestSectionValue(t *testing.T) {
	body := "## Name\n\nCamila\n\n## Interests\n\nchess\n\n## Learning Style"

	v, err := SectionValue(body, studentSchema, "Name")
	if err != nil {
		t.Fatalf("SectionValue: %v", err)
	}
	if v != "Camila" {
		t.Errorf("value = %q, want %q", v, "Camila")
	}

	_, err = SectionValue(body, studentSchema, "Shoe Size")
	if !errors.Is(err, ErrUnknownField) {
		t.Errorf("unknown field: err = %v, want ErrUnknownField", err)
	}
}

func TestReplaceSection(t *testing.T) {
	body := "## Name\n\nCamila\n\n## Interests\n\nchess\n\n## Learning Style"

	got, err := ReplaceSection(body, studentSchema, "Interests", "origami")
	if err != nil {
		t.Fatalf("ReplaceSection: %v", err)
	}
	want := "## Name\n\nCamila\n\n## Interests\n\norigami\n\n## Learning Style"
	if got != want {
		t.Errorf("ReplaceSection = %q, want %q", got, want)
	}

	// Other sections are untouched by repeated replacement.
	got, err = ReplaceSection(got, studentSchema, "Name", "Cami")
	if err != nil {
		t.Fatal(err)
	}
	back := SplitSections(got, studentSchema.Fields)
	if back["Interests"] != "origami" || back["Name"] != "Cami" {
		t.Errorf("sections after two replacements: %v", back)
	}

	if _, err := ReplaceSection(body, studentSchema, "Nope", "x"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("unknown field: err = %v, want ErrUnknownField", err)
	}
}

func TestReplaceSection_PreservesPreamble(t *testing.T) {
	body := "Preamble the user typed.\n\n## Name\n\nAlice\n\n## Interests\n\nchess\n\n## Learning Style"

	got, err := ReplaceSection(body, studentSchema, "Name", "Alice Smith")
	if err != nil {
		t.Fatalf("ReplaceSection: %v", err)
	}
	want := "Preamble the user typed.\n\n## Name\n\nAlice Smith\n\n## Interests\n\nchess\n\n## Learning Style"
	if got != want {
		t.Errorf("ReplaceSection = %q, want %q", got, want)
	}

	// The preamble keeps surviving repeated field edits.
	got, err = ReplaceSection(got, studentSchema, "Interests", "origami")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "Preamble the user typed.\n\n## Name") {
		t.Errorf("preamble lost on second replacement: %q", got)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(map[string]Schema{
		"student": studentSchema,
		"goals":   {Title: "Goals", Fields: []string{"Short Term"}},
	})

	if _, ok := r.Lookup("student"); !ok {
		t.Error("Lookup(student) missed")
	}
	if _, ok := r.Lookup("scratch"); ok {
		t.Error("unregistered label resolved to a schema")
	}

	labels := r.Labels()
	if len(labels) != 2 || labels[0] != "goals" || labels[1] != "student" {
		t.Errorf("Labels() = %v, want sorted [goals student]", labels)
	}
}
