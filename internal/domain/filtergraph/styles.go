package filtergraph

import (
	"fmt"
	"sort"
	"strings"
)

// Style is an ASS force_style override applied when burning subtitles.
type Style struct {
	FontName      string `yaml:"font_name"`
	FontSize      int    `yaml:"font_size"`
	PrimaryColour string `yaml:"primary_colour"`
	OutlineColour string `yaml:"outline_colour"`
	Outline       int    `yaml:"outline"`
	Shadow        int    `yaml:"shadow"`
	Bold          bool   `yaml:"bold"`
	// Alignment uses legacy SSA numbering; 0 leaves the renderer default.
	Alignment int `yaml:"alignment,omitempty"`
	MarginV   int `yaml:"margin_v,omitempty"`
}

const DefaultStyle = "default"

const (
	yellow = "&H0000FFFF"
	black  = "&H00000000"
)

var presets = map[string]Style{
	"default": {FontName: "Arial", FontSize: 18, PrimaryColour: yellow, OutlineColour: black, Outline: 2, Shadow: 1},
	"bold":    {FontName: "Arial", FontSize: 22, PrimaryColour: yellow, OutlineColour: black, Outline: 2, Shadow: 1, Bold: true},
	"yellow":  {FontName: "Arial", FontSize: 20, PrimaryColour: yellow, OutlineColour: black, Outline: 2, Shadow: 1, Bold: true},
	"tiktok":  {FontName: "Arial", FontSize: 20, PrimaryColour: yellow, OutlineColour: black, Outline: 2, Shadow: 2, Bold: true, Alignment: 10},
	"small":   {FontName: "Arial", FontSize: 10, PrimaryColour: yellow, OutlineColour: black, Outline: 1, Shadow: 1, Alignment: 6, MarginV: 100},
	"tiny":    {FontName: "Arial", FontSize: 8, PrimaryColour: yellow, OutlineColour: black, Outline: 1, Shadow: 0, Alignment: 6, MarginV: 100},
}

// Styles resolves named presets. Custom entries shadow built-in ones.
type Styles struct {
	custom map[string]Style
}

func NewStyles(custom map[string]Style) Styles {
	c := make(map[string]Style, len(custom))
	for k, v := range custom {
		c[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return Styles{custom: c}
}

func (s Styles) Lookup(name string) (Style, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = DefaultStyle
	}
	if st, ok := s.custom[key]; ok {
		return st, true
	}
	st, ok := presets[key]
	return st, ok
}

// Names lists every resolvable style, sorted.
func (s Styles) Names() []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range []map[string]Style{presets, s.custom} {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	sort.Strings(out)
	return out
}

func (st Style) Validate() error {
	if st.FontSize <= 0 {
		return fmt.Errorf("font_size must be > 0")
	}
	if st.FontName == "" {
		return fmt.Errorf("font_name is required")
	}
	return nil
}

// ForceStyle renders the comma separated override list.
func (st Style) ForceStyle() string {
	bold := 0
	if st.Bold {
		bold = -1
	}
	parts := []string{
		"FontName=" + st.FontName,
		fmt.Sprintf("FontSize=%d", st.FontSize),
		"PrimaryColour=" + st.PrimaryColour,
		"OutlineColour=" + st.OutlineColour,
		fmt.Sprintf("Outline=%d", st.Outline),
		fmt.Sprintf("Shadow=%d", st.Shadow),
		fmt.Sprintf("Bold=%d", bold),
	}
	if st.Alignment != 0 {
		parts = append(parts, fmt.Sprintf("Alignment=%d", st.Alignment))
	}
	if st.MarginV != 0 {
		parts = append(parts, fmt.Sprintf("MarginV=%d", st.MarginV))
	}
	return strings.Join(parts, ",")
}
