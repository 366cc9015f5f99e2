package knowledge

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandAddsSynonyms(t *testing.T) {
	cat := DefaultCatalog()
	terms := cat.Expand("Correo de la facultad")

	if terms[0] != "correo de la facultad" {
		t.Fatalf("first term = %q, want the lowercased query", terms[0])
	}
	found := false
	for _, term := range terms {
		if term == "email" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected synonym 'email' in expansion, got %v", terms)
	}
}

func TestExpandNoDuplicates(t *testing.T) {
	cat := DefaultCatalog()
	terms := cat.Expand("correo email")

	seen := map[string]int{}
	for _, term := range terms {
		seen[term]++
		if seen[term] > 1 {
			t.Fatalf("term %q appears twice in %v", term, terms)
		}
	}
}

func TestDetectFaculty(t *testing.T) {
	cat := DefaultCatalog()

	cases := []struct {
		query string
		want  string
	}{
		{"¿cuál es el correo de enfermería?", "ENFERMERIA"},
		{"teléfono de la facultad de minas", "FIM"},
		{"horario de sistemas", "FIEI"},
		{"hola, una consulta general", ""},
	}
	for _, c := range cases {
		if got := cat.DetectFaculty(c.query); got != c.want {
			t.Fatalf("DetectFaculty(%q) = %q, want %q", c.query, got, c.want)
		}
	}
}

func TestDetectIntent(t *testing.T) {
	cases := []struct {
		query string
		want  Intent
	}{
		{"correo de enfermería", IntentContact},
		{"¿a qué hora atienden?", IntentSchedule},
		{"dónde queda la oficina", IntentLocation},
		{"quiero presentar mi tesis", IntentResearch},
		{"gracias", IntentNone},
	}
	for _, c := range cases {
		if got := DetectIntent(c.query); got != c.want {
			t.Fatalf("DetectIntent(%q) = %q, want %q", c.query, got, c.want)
		}
	}
}

func TestLoadCatalogMissingFileUsesDefaults(t *testing.T) {
	cat, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if len(cat.Faculties) == 0 {
		t.Fatal("expected default faculties")
	}
}

func TestLoadCatalogFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	doc := `synonyms:
  becas: [subvención, apoyo]
faculties:
  - code: FMH
    name: Medicina Humana
    aliases: [medicina]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cat, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if got := cat.DetectFaculty("correo de medicina"); got != "FMH" {
		t.Fatalf("DetectFaculty = %q, want FMH", got)
	}
	terms := cat.Expand("becas disponibles")
	if len(terms) != 3 {
		t.Fatalf("expected query plus 2 synonyms, got %v", terms)
	}
}
