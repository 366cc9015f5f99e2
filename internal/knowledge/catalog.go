package knowledge

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog holds the static query-expansion data: the synonym table and
// the faculty registry used for category detection. It can be loaded
// from YAML or instantiated with built-in defaults.
type Catalog struct {
	Synonyms  map[string][]string `yaml:"synonyms"`
	Faculties []Faculty           `yaml:"faculties"`

	aliasToCode map[string]string
}

// Faculty maps a canonical category code to the names users type.
type Faculty struct {
	Code    string   `yaml:"code"`
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

// LoadCatalog reads the catalog YAML. A missing file is not an error:
// the built-in defaults cover the standard deployment.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultCatalog(), nil
		}
		return nil, fmt.Errorf("cannot read catalog %s: %w", path, err)
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("cannot parse catalog %s: %w", path, err)
	}
	cat.buildAliasIndex()
	return &cat, nil
}

// DefaultCatalog returns the built-in synonym table and faculty registry
// for the UNA Puno deployment.
func DefaultCatalog() *Catalog {
	cat := &Catalog{
		Synonyms: map[string][]string{
			"email":       {"correo", "mail", "correo electrónico", "correo electronico"},
			"correo":      {"email", "mail", "correo electrónico", "correo electronico"},
			"mail":        {"email", "correo", "correo electrónico"},
			"teléfono":    {"celular", "telefono", "número", "contacto", "fono"},
			"telefono":    {"celular", "teléfono", "número", "contacto", "fono"},
			"celular":     {"teléfono", "telefono", "número", "contacto", "fono"},
			"número":      {"teléfono", "telefono", "celular", "contacto"},
			"contacto":    {"teléfono", "telefono", "celular", "email", "correo"},
			"horario":     {"hora", "horarios", "atención", "atencion"},
			"ubicación":   {"ubicacion", "lugar", "donde", "dirección", "direccion", "oficina"},
			"ubicacion":   {"ubicación", "lugar", "donde", "dirección", "direccion", "oficina"},
			"estadística": {"estadistica", "informática", "informatica", "sistemas"},
			"informática": {"informatica", "estadística", "estadistica", "sistemas"},
			"ingeniería":  {"ingenieria", "facultad", "escuela"},
		},
		Faculties: []Faculty{
			{Code: "FCA", Name: "Ciencias Agrarias", Aliases: []string{"agrarias", "agronomía", "agronomia", "agronómica", "agronomica"}},
			{Code: "FMVZ", Name: "Medicina Veterinaria y Zootecnia", Aliases: []string{"veterinaria", "zootecnia"}},
			{Code: "FIE", Name: "Ingeniería Económica", Aliases: []string{"económica", "economica", "economía", "economia"}},
			{Code: "FCCA", Name: "Ciencias Contables y Administrativas", Aliases: []string{"contables", "contabilidad", "administrativas", "administración", "administracion"}},
			{Code: "FICA", Name: "Ingeniería Civil y Arquitectura", Aliases: []string{"civil", "arquitectura"}},
			{Code: "FIM", Name: "Ingeniería de Minas", Aliases: []string{"minas", "minería", "mineria"}},
			{Code: "FIQ", Name: "Ingeniería Química", Aliases: []string{"química", "quimica"}},
			{Code: "FMH", Name: "Medicina Humana", Aliases: []string{"medicina", "salud"}},
			{Code: "FIEI", Name: "Ingeniería Estadística e Informática", Aliases: []string{"estadística", "estadistica", "informática", "informatica", "sistemas"}},
			{Code: "ENFERMERIA", Name: "Enfermería", Aliases: []string{"enfermería", "enfermeria"}},
			{Code: "FIA", Name: "Ingeniería Agrícola", Aliases: []string{"agrícola", "agricola"}},
		},
	}
	cat.buildAliasIndex()
	return cat
}

func (c *Catalog) buildAliasIndex() {
	c.aliasToCode = make(map[string]string)
	for _, f := range c.Faculties {
		c.aliasToCode[strings.ToLower(f.Name)] = f.Code
		c.aliasToCode[strings.ToLower(f.Code)] = f.Code
		for _, a := range f.Aliases {
			c.aliasToCode[strings.ToLower(a)] = f.Code
		}
	}
}

// Expand returns the lowercased query followed by the synonyms of each
// of its words. The original query always stays the first search term.
func (c *Catalog) Expand(query string) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	terms := []string{q}
	seen := map[string]struct{}{q: {}}

	for _, word := range strings.Fields(q) {
		for _, syn := range c.Synonyms[word] {
			if _, ok := seen[syn]; ok {
				continue
			}
			seen[syn] = struct{}{}
			terms = append(terms, syn)
		}
	}
	return terms
}

// DetectFaculty returns the canonical faculty code named by the query,
// or "" when no faculty is mentioned. Longest aliases are irrelevant
// here: matching is per word plus a whole-phrase check for multi-word
// faculty names.
func (c *Catalog) DetectFaculty(query string) string {
	q := strings.ToLower(query)
	for alias, code := range c.aliasToCode {
		if strings.Contains(alias, " ") && strings.Contains(q, alias) {
			return code
		}
	}
	for _, word := range strings.Fields(q) {
		if code, ok := c.aliasToCode[strings.Trim(word, "¿?.,;:!¡")]; ok {
			return code
		}
	}
	return ""
}

// FacultyName returns the display name for a canonical code.
func (c *Catalog) FacultyName(code string) string {
	for _, f := range c.Faculties {
		if f.Code == code {
			return f.Name
		}
	}
	return code
}
