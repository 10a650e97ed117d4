package styles

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"alterego/core"
)

// fixedRand always returns the same index, clamped to n.
type fixedRand int

func (f fixedRand) IntN(n int) int {
	if int(f) >= n {
		return n - 1
	}
	return int(f)
}

func TestDefault(t *testing.T) {
	c := Default()

	if got := len(c.Defaults()); got != 6 {
		t.Errorf("len(Defaults()) = %d, want 6", got)
	}
	if got := len(c.Pool()); got != 22 {
		t.Errorf("len(Pool()) = %d, want 22", got)
	}
	if got := len(c.SurprisePool()); got != 8 {
		t.Errorf("len(SurprisePool()) = %d, want 8", got)
	}
	if last := c.DefaultCaptions()[5]; last != Wildcard {
		t.Errorf("last default = %q, want %q", last, Wildcard)
	}
}

func TestDefault_ReturnsCopies(t *testing.T) {
	c := Default()
	d := c.Defaults()
	d[0].Caption = "mutated"
	if c.Defaults()[0].Caption != "1950s" {
		t.Error("Defaults() exposed internal slice")
	}
}

func TestFindAndResolve(t *testing.T) {
	c := Default()

	if s, ok := c.Find("Victorian"); !ok || !strings.Contains(s.Description, "sepia") {
		t.Errorf("Find(Victorian) = %+v, %v", s, ok)
	}
	if _, ok := c.Find("Anime Hero"); ok {
		t.Error("Find(unknown) = true")
	}
	r := c.Resolve("Long Gone Style")
	if r.Caption != "Long Gone Style" || r.Description != restoredDescription {
		t.Errorf("Resolve(unknown) = %+v", r)
	}
}

func TestShuffle(t *testing.T) {
	c := Default()
	rng := rand.New(rand.NewPCG(7, 11))
	current := []string{"1950s Film Noir", "Fantasy Elf"}

	for i := 0; i < 50; i++ {
		offer := c.Shuffle(current, rng)
		if len(offer) != shuffleSize+1 {
			t.Fatalf("len(offer) = %d, want %d", len(offer), shuffleSize+1)
		}
		caps := Captions(offer)
		if caps[len(caps)-1] != Wildcard || slices.Index(caps, Wildcard) != len(caps)-1 {
			t.Fatalf("offer %v does not end with the wildcard", caps)
		}
		seen := map[string]bool{}
		for _, caption := range caps {
			if seen[caption] {
				t.Fatalf("duplicate %q in %v", caption, caps)
			}
			seen[caption] = true
			if slices.Contains(current, caption) {
				t.Fatalf("offer %v repeats current style %q", caps, caption)
			}
		}
	}
}

func TestShuffle_SmallPool(t *testing.T) {
	c, err := New(
		[]Style{{Caption: "A"}, {Caption: Wildcard}},
		[]Style{{Caption: "A"}, {Caption: "B"}},
		[]string{"X"},
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	offer := Captions(c.Shuffle([]string{"A"}, fixedRand(0)))
	if want := []string{"B", Wildcard}; !slices.Equal(offer, want) {
		t.Errorf("offer = %v, want %v", offer, want)
	}
}

func TestResolveTarget(t *testing.T) {
	c := Default()

	if got := c.ResolveTarget("1970s", fixedRand(3)); got != "1970s" {
		t.Errorf("ResolveTarget(1970s) = %q", got)
	}
	if got := c.ResolveTarget(Wildcard, fixedRand(3)); got != "Steampunk" {
		t.Errorf("ResolveTarget(wildcard) = %q, want Steampunk", got)
	}

	rng := rand.New(rand.NewPCG(1, 2))
	pool := c.SurprisePool()
	for i := 0; i < 100; i++ {
		if got := c.ResolveTarget(Wildcard, rng); !slices.Contains(pool, got) {
			t.Fatalf("ResolveTarget(wildcard) = %q, not in surprise pool", got)
		}
	}
}

func TestPrompts(t *testing.T) {
	if got := RegeneratePrompt("Anime"); got != "Reimagine the person in this photo in the style of Anime." {
		t.Errorf("RegeneratePrompt = %q", got)
	}
	batch := BatchPrompt("1990s")
	if !strings.HasPrefix(batch, "Reimagine the person in this photo in the style of 1990s. ") ||
		!strings.HasSuffix(batch, "showing the person clearly.") {
		t.Errorf("BatchPrompt = %q", batch)
	}
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()

	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	t.Run("empty path", func(t *testing.T) {
		c, err := LoadCatalog("")
		if err != nil || len(c.Defaults()) != 6 {
			t.Fatalf("LoadCatalog(\"\") = %v, %v", c, err)
		}
	})

	t.Run("partial override", func(t *testing.T) {
		p := write("ok.yaml", "surprise: [\"Anime\", \"Pop Art\"]\n")
		c, err := LoadCatalog(p)
		if err != nil {
			t.Fatalf("LoadCatalog() error = %v", err)
		}
		if got := c.SurprisePool(); !slices.Equal(got, []string{"Anime", "Pop Art"}) {
			t.Errorf("SurprisePool() = %v", got)
		}
		if len(c.Pool()) != 22 {
			t.Error("pool not kept from defaults")
		}
	})

	tests := []struct {
		name string
		body string
	}{
		{"no wildcard", "defaults:\n  - caption: A\n"},
		{"duplicate", "defaults:\n  - caption: A\n  - caption: A\n  - caption: \"Surprise Me!\"\n"},
		{"wildcard in surprise", "surprise: [\"Surprise Me!\"]\n"},
		{"bad yaml", "defaults: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCatalog(write(strings.ReplaceAll(tt.name, " ", "_")+".yaml", tt.body))
			if got := core.GetErrorCode(err); got != core.ErrCodeStyles {
				t.Errorf("code = %q, want %q (err: %v)", got, core.ErrCodeStyles, err)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadCatalog(filepath.Join(dir, "nope.yaml")); err == nil {
			t.Error("LoadCatalog(missing) error = nil")
		}
	})
}
