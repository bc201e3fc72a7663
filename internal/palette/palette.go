// Package palette maps note keywords to display colors.
package palette

import (
	"fmt"
	"maps"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	pkgconfig "github.com/hyorim/carenotes/pkg/config"
)

// DefaultFallback is used when a palette does not name its own fallback.
const DefaultFallback = "#64748b"

var hexColorRe = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

// Config is the YAML form of a palette.
type Config struct {
	Fallback string            `yaml:"fallback" json:"fallback"`
	Colors   map[string]string `yaml:"colors" json:"colors"`
}

// Validate validates the palette configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Fallback, validation.Match(hexColorRe).Error("must be a hex color")),
	); err != nil {
		return err
	}
	for k, v := range c.Colors {
		if k == "" {
			return fmt.Errorf("palette: empty keyword")
		}
		if err := validation.Validate(v, validation.Required, validation.Match(hexColorRe).Error("must be a hex color")); err != nil {
			return fmt.Errorf("palette: color for %q: %w", k, err)
		}
	}
	return nil
}

// Palette is an immutable keyword→color table. It is safe for concurrent use.
type Palette struct {
	fallback string
	colors   map[string]string
}

// New builds a palette from cfg. The color table is copied.
func New(cfg Config) *Palette {
	fb := cfg.Fallback
	if fb == "" {
		fb = DefaultFallback
	}
	return &Palette{fallback: fb, colors: maps.Clone(cfg.Colors)}
}

// Load reads a palette YAML file.
func Load(path string) (*Palette, error) {
	var cfg Config
	if err := pkgconfig.Load(path, &cfg); err != nil {
		return nil, fmt.Errorf("palette: %w", err)
	}
	return New(cfg), nil
}

// Default returns the ward palette used when no configuration is supplied.
func Default() *Palette {
	return New(DefaultConfig())
}

// DefaultConfig returns the built-in keyword colors.
func DefaultConfig() Config {
	return Config{
		Fallback: DefaultFallback,
		Colors: map[string]string{
			"발열":   "#ef4444",
			"가래":   "#3b82f6",
			"자가배뇨": "#22c55e",
			"수면":   "#f59e0b",
			"욕창":   "#a855f7",
			"땀":    "#06b6d4",
		},
	}
}

// ColorOf returns the color for keyword, matched exactly. Unknown keywords,
// including models.OtherKeyword without its own entry, get the fallback.
func (p *Palette) ColorOf(keyword string) string {
	if c, ok := p.colors[keyword]; ok {
		return c
	}
	return p.fallback
}

// Fallback returns the fallback color.
func (p *Palette) Fallback() string {
	return p.fallback
}

// Config returns a copy of the palette as configuration.
func (p *Palette) Config() Config {
	return Config{Fallback: p.fallback, Colors: maps.Clone(p.colors)}
}

// Has reports whether keyword has an explicit entry.
func (p *Palette) Has(keyword string) bool {
	_, ok := p.colors[keyword]
	return ok
}
