package handlers

import (
	_ "embed"
	"os"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type MenuItem struct {
	Category        string   `yaml:"category" json:"category"`
	Name            string   `yaml:"name" json:"name"`
	Description     string   `yaml:"description" json:"description"`
	Price           float64  `yaml:"price" json:"price"`
	PreparationTime string   `yaml:"preparation_time" json:"preparation_time"`
	Available       bool     `yaml:"available" json:"available"`
	Keywords        []string `yaml:"keywords" json:"keywords"`
	DietaryInfo     []string `yaml:"dietary_info,omitempty" json:"dietary_info,omitempty"`
}

type Service struct {
	Type           string   `yaml:"type" json:"type"`
	Service        string   `yaml:"service" json:"service"`
	Keywords       []string `yaml:"keywords" json:"keywords"`
	ResponseTime   string   `yaml:"response_time" json:"response_time"`
	Priority       string   `yaml:"priority" json:"priority"`
	AdditionalInfo string   `yaml:"additional_info" json:"additional_info"`
}

type Venue struct {
	Name       string   `yaml:"name" json:"name"`
	Kind       string   `yaml:"kind" json:"kind"`
	Keywords   []string `yaml:"keywords" json:"keywords"`
	Address    string   `yaml:"address" json:"address"`
	Distance   string   `yaml:"distance" json:"distance"`
	Details    string   `yaml:"details" json:"details"`
	Reservable bool     `yaml:"reservable" json:"reservable"`
}

// Catalog is the static data the handlers look things up in.
type Catalog struct {
	Menu     []MenuItem `yaml:"menu"`
	Services []Service  `yaml:"services"`
	Venues   []Venue    `yaml:"venues"`
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(errors.Wrap(err, "embedded catalog"))
	}
	return c
}

func ParseCatalog(b []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, errors.Wrap(err, "parse catalog")
	}
	return &c, nil
}

// LoadCatalog reads a catalog file; an empty path yields the embedded default.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read catalog %s", path)
	}
	return ParseCatalog(b)
}

// SearchMenu returns items whose keywords, name or category appear in query.
func (c *Catalog) SearchMenu(query string) []MenuItem {
	words := tokenize(query)
	var out []MenuItem
	for _, it := range c.Menu {
		terms := append([]string{strings.ToLower(it.Category)}, it.Keywords...)
		terms = append(terms, tokenize(it.Name)...)
		if matchesAny(words, terms) {
			out = append(out, it)
		}
	}
	return out
}

// CheckService returns the first service whose keywords appear in query.
func (c *Catalog) CheckService(query string) (Service, bool) {
	words := tokenize(query)
	for _, s := range c.Services {
		if matchesAny(words, s.Keywords) {
			return s, true
		}
	}
	return Service{}, false
}

func (c *Catalog) SearchVenues(query string) []Venue {
	words := tokenize(query)
	var out []Venue
	for _, v := range c.Venues {
		terms := append([]string{v.Kind}, v.Keywords...)
		terms = append(terms, tokenize(v.Name)...)
		if matchesAny(words, terms) {
			out = append(out, v)
		}
	}
	return out
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}

// matchesAny treats a term as matched when a word equals it, or, for terms longer
// than three letters, when a word starts with it ("towel" matches "towels").
func matchesAny(words, terms []string) bool {
	for _, t := range terms {
		t = strings.ToLower(t)
		if t == "" {
			continue
		}
		for _, w := range words {
			if w == t || (len(t) > 3 && strings.HasPrefix(w, t)) {
				return true
			}
		}
	}
	return false
}
