// Package styles is the style catalog: the default offer, the larger
// shuffle pool, the "Surprise Me!" wildcard and the prompt templates.
package styles

import (
	"fmt"
	"os"
	"slices"

	"alterego/core"

	"gopkg.in/yaml.v3"
)

// Wildcard is the caption of the style that resolves to a random concrete
// style at generation time.
const Wildcard = "Surprise Me!"

// restoredDescription describes captions found in history but not in the catalog.
const restoredDescription = "A restored style."

// shuffleSize is how many pool styles a shuffle offers besides the wildcard.
const shuffleSize = 5

// Style is a named visual transformation target. Caption is unique within
// a catalog and is the key used everywhere for matching.
type Style struct {
	Caption     string `yaml:"caption" json:"caption"`
	Description string `yaml:"description" json:"description"`
}

// Rand is the randomness the catalog needs. *math/rand/v2.Rand satisfies it.
type Rand interface {
	IntN(n int) int
}

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	defaults []Style
	pool     []Style
	surprise []string
}

// catalogFile is the YAML shape accepted by LoadCatalog.
type catalogFile struct {
	Defaults []Style  `yaml:"defaults"`
	Pool     []Style  `yaml:"pool"`
	Surprise []string `yaml:"surprise"`
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return &Catalog{
		defaults: slices.Clone(defaultStyles),
		pool:     slices.Clone(poolStyles),
		surprise: slices.Clone(surpriseStyles),
	}
}

// New builds a catalog from explicit lists after validating them.
func New(defaults, pool []Style, surprise []string) (*Catalog, error) {
	c := &Catalog{
		defaults: slices.Clone(defaults),
		pool:     slices.Clone(pool),
		surprise: slices.Clone(surprise),
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadCatalog reads a YAML override. An empty path returns Default.
// Lists missing from the file keep their built-in values.
//
// Example file:
//
//	defaults:
//	  - caption: "1950s"
//	    description: "Film noir."
//	  - caption: "Surprise Me!"
//	    description: "Anything goes."
//	surprise: ["Anime", "Pop Art"]
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("styles: failed to read catalog: %w", err)
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, core.ErrInvalidStyles(path, err.Error())
	}

	c := Default()
	if len(f.Defaults) > 0 {
		c.defaults = f.Defaults
	}
	if len(f.Pool) > 0 {
		c.pool = f.Pool
	}
	if len(f.Surprise) > 0 {
		c.surprise = f.Surprise
	}
	if err := c.validate(); err != nil {
		return nil, core.ErrInvalidStyles(path, err.Error())
	}
	return c, nil
}

func (c *Catalog) validate() error {
	if len(c.defaults) == 0 {
		return fmt.Errorf("default set is empty")
	}
	if len(c.surprise) == 0 {
		return fmt.Errorf("surprise pool is empty")
	}
	if slices.Contains(c.surprise, Wildcard) {
		return fmt.Errorf("surprise pool cannot contain %q", Wildcard)
	}
	if !slices.ContainsFunc(c.defaults, func(s Style) bool { return s.Caption == Wildcard }) {
		return fmt.Errorf("default set must include %q", Wildcard)
	}
	for name, list := range map[string][]Style{"defaults": c.defaults, "pool": c.pool} {
		seen := make(map[string]bool, len(list))
		for _, s := range list {
			if s.Caption == "" {
				return fmt.Errorf("%s: empty caption", name)
			}
			if seen[s.Caption] {
				return fmt.Errorf("%s: duplicate caption %q", name, s.Caption)
			}
			seen[s.Caption] = true
		}
	}
	return nil
}

// Defaults returns a copy of the default style offer.
func (c *Catalog) Defaults() []Style { return slices.Clone(c.defaults) }

// Pool returns a copy of the shuffle pool.
func (c *Catalog) Pool() []Style { return slices.Clone(c.pool) }

// SurprisePool returns a copy of the wildcard targets.
func (c *Catalog) SurprisePool() []string { return slices.Clone(c.surprise) }

// DefaultCaptions returns the captions of the default offer in order.
func (c *Catalog) DefaultCaptions() []string {
	return Captions(c.defaults)
}

// Find looks a caption up in the default set, then the pool.
func (c *Catalog) Find(caption string) (Style, bool) {
	for _, list := range [][]Style{c.defaults, c.pool} {
		for _, s := range list {
			if s.Caption == caption {
				return s, true
			}
		}
	}
	return Style{}, false
}

// Resolve is Find with a placeholder description for unknown captions,
// which happens when restoring sessions made with an older catalog.
func (c *Catalog) Resolve(caption string) Style {
	if s, ok := c.Find(caption); ok {
		return s
	}
	return Style{Caption: caption, Description: restoredDescription}
}

// wildcardStyle returns the wildcard as listed in the default set.
func (c *Catalog) wildcardStyle() Style {
	if s, ok := c.Find(Wildcard); ok {
		return s
	}
	return Style{Caption: Wildcard}
}

// Shuffle offers up to five random pool styles not in current, in random
// order, followed by the wildcard.
func (c *Catalog) Shuffle(current []string, rng Rand) []Style {
	remaining := make([]Style, 0, len(c.pool))
	for _, s := range c.pool {
		if s.Caption != Wildcard && !slices.Contains(current, s.Caption) {
			remaining = append(remaining, s)
		}
	}
	shuffle(remaining, rng)
	if len(remaining) > shuffleSize {
		remaining = remaining[:shuffleSize]
	}
	return append(remaining, c.wildcardStyle())
}

// ResolveTarget maps the wildcard to a uniform pick from the surprise pool.
// Any other caption is its own target.
func (c *Catalog) ResolveTarget(caption string, rng Rand) string {
	if caption != Wildcard {
		return caption
	}
	return c.surprise[rng.IntN(len(c.surprise))]
}

// Captions extracts captions in order.
func Captions(list []Style) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.Caption
	}
	return out
}

// shuffle is an in-place Fisher-Yates over rng.
func shuffle[T any](s []T, rng Rand) {
	for i := len(s) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}
