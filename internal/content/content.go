// Package content holds the copy shown on the landing page. The built-in
// document is embedded; a YAML file can replace it at startup.
package content

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed site.yaml
var defaultSite []byte

type Site struct {
	Hero         Hero          `yaml:"hero"`
	About        About         `yaml:"about"`
	Tools        []Tool        `yaml:"tools"`
	Services     []string      `yaml:"services"`
	Testimonials []Testimonial `yaml:"testimonials"`
	Contact      Contact       `yaml:"contact"`
}

type Hero struct {
	Badge        string `yaml:"badge"`
	FirstName    string `yaml:"first_name"`
	LastName     string `yaml:"last_name"`
	Tagline      string `yaml:"tagline"`
	PrimaryCTA   string `yaml:"primary_cta"`
	SecondaryCTA string `yaml:"secondary_cta"`
}

// FullName joins the two halves of the display name.
func (h Hero) FullName() string {
	return strings.TrimSpace(h.FirstName + " " + h.LastName)
}

type About struct {
	Heading    string   `yaml:"heading"`
	Paragraphs []string `yaml:"paragraphs"`
	Stats      []Stat   `yaml:"stats"`
}

// Stat is one count-up figure. Text replaces the number for figures that
// are not counted, e.g. "Multiple".
type Stat struct {
	Label  string `yaml:"label"`
	Value  int    `yaml:"value"`
	Suffix string `yaml:"suffix"`
	Text   string `yaml:"text"`
}

// Counted reports whether the figure animates from zero.
func (s Stat) Counted() bool { return s.Text == "" }

// Display is the final rendered figure.
func (s Stat) Display() string {
	if !s.Counted() {
		return s.Text
	}
	return fmt.Sprintf("%d%s", s.Value, s.Suffix)
}

type Tool struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Icon        string `yaml:"icon"`
}

type Testimonial struct {
	Author  string `yaml:"author"`
	Role    string `yaml:"role"`
	Country string `yaml:"country"`
	Flag    string `yaml:"flag"`
	Text    string `yaml:"text"`
	Rating  int    `yaml:"rating"`
}

// Initial is the avatar letter.
func (t Testimonial) Initial() string {
	for _, r := range t.Author {
		return strings.ToUpper(string(r))
	}
	return "?"
}

// Stars returns one entry per star so templates can range over it.
func (t Testimonial) Stars() []struct{} {
	return make([]struct{}, t.Rating)
}

type Contact struct {
	Heading      string `yaml:"heading"`
	Intro        string `yaml:"intro"`
	Pitch        string `yaml:"pitch"`
	ResponseTime string `yaml:"response_time"`
	LinkedIn     string `yaml:"linkedin"`
	Footer       string `yaml:"footer"`
}

// Load returns the embedded site content.
func Load() (*Site, error) {
	return parse(defaultSite, "embedded site.yaml")
}

// LoadFile reads site content from path.
func LoadFile(path string) (*Site, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read content file: %w", err)
	}
	return parse(data, path)
}

func parse(data []byte, source string) (*Site, error) {
	var site Site
	if err := yaml.Unmarshal(data, &site); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", source, err)
	}
	if err := site.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", source, err)
	}
	return &site, nil
}

// Validate checks the fields the landing page cannot render without.
func (s *Site) Validate() error {
	if s.Hero.FullName() == "" {
		return fmt.Errorf("hero name is required")
	}
	for i, st := range s.About.Stats {
		if st.Label == "" {
			return fmt.Errorf("about.stats[%d]: label is required", i)
		}
		if st.Counted() && st.Value < 0 {
			return fmt.Errorf("about.stats[%d]: value must not be negative", i)
		}
	}
	for i, t := range s.Tools {
		if t.Name == "" {
			return fmt.Errorf("tools[%d]: name is required", i)
		}
	}
	for i, t := range s.Testimonials {
		if t.Author == "" || t.Text == "" {
			return fmt.Errorf("testimonials[%d]: author and text are required", i)
		}
		if t.Rating < 1 || t.Rating > 5 {
			return fmt.Errorf("testimonials[%d]: rating %d not in 1-5", i, t.Rating)
		}
	}
	return nil
}
