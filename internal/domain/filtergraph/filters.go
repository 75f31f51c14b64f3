package filtergraph

import (
	"fmt"
	"math"
	"strings"

	"github.com/forPelevin/cliper/internal/types"
)

// Chain builds a comma separated filter chain.
type Chain struct {
	filters []string
}

func NewChain() *Chain { return &Chain{} }

func (c *Chain) Scale(w, h int) *Chain {
	if w == 0 || h == 0 {
		return c
	}
	c.filters = append(c.filters, fmt.Sprintf("scale=%d:%d", w, h))
	return c
}

func (c *Chain) Crop(w, h string) *Chain {
	c.filters = append(c.filters, fmt.Sprintf("crop=%s:%s", w, h))
	return c
}

func (c *Chain) Custom(f string) *Chain {
	if f != "" {
		c.filters = append(c.filters, f)
	}
	return c
}

func (c *Chain) Empty() bool { return len(c.filters) == 0 }

func (c *Chain) String() string { return strings.Join(c.filters, ",") }

// AspectFilter is the static center-crop + scale for a target ratio.
func AspectFilter(a types.AspectRatio) string {
	switch a {
	case types.AspectVertical:
		return NewChain().Crop("ih*9/16", "ih").Scale(1080, 1920).String()
	case types.AspectSquare:
		return NewChain().Crop("ih", "ih").Scale(1080, 1080).String()
	case types.AspectLandscape:
		return NewChain().Scale(1920, 1080).String()
	}
	return ""
}

func SubtitleFilter(path string, st Style) string {
	return fmt.Sprintf("subtitles=%s:force_style='%s'", escapeFilterPath(path), st.ForceStyle())
}

const DefaultLogoMargin = 20

// LogoHeight is the logo height for an output height and relative scale.
func LogoHeight(outH int, scale float64) int {
	h := int(math.Round(float64(outH) * scale))
	if h < 1 {
		h = 1
	}
	return h
}

// OverlayPosition returns the overlay x:y expression for a corner.
func OverlayPosition(pos types.LogoPosition, margin int) string {
	m := margin
	switch pos {
	case types.LogoTopLeft:
		return fmt.Sprintf("%d:%d", m, m)
	case types.LogoBottomLeft:
		return fmt.Sprintf("%d:H-h-%d", m, m)
	case types.LogoBottomRight:
		return fmt.Sprintf("W-w-%d:H-h-%d", m, m)
	}
	return fmt.Sprintf("W-w-%d:%d", m, m)
}

func escapeFilterPath(p string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`:`, `\:`,
		`'`, `\'`,
		`,`, `\,`,
		`[`, `\[`,
		`]`, `\]`,
		`;`, `\;`,
	)
	return r.Replace(p)
}
