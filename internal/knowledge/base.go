package knowledge

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed knowledge.yaml
var seed []byte

// Entry is one piece of legal knowledge. Type says what kind of text it is
// (statute, risk note, ...), Category which contract topic it covers.
type Entry struct {
	Content  string `yaml:"content"`
	Type     string `yaml:"type"`
	Category string `yaml:"category"`
}

// Base is an immutable, ordered knowledge corpus.
type Base struct {
	entries []Entry
}

func DefaultBase() (*Base, error) {
	return ParseBase(seed)
}

// LoadBase reads a YAML corpus; an empty path yields the embedded seed.
func LoadBase(path string) (*Base, error) {
	if path == "" {
		return DefaultBase()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading knowledge base %s: %w", path, err)
	}
	return ParseBase(data)
}

func ParseBase(data []byte) (*Base, error) {
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing knowledge base: %w", err)
	}
	for i, e := range entries {
		if strings.TrimSpace(e.Content) == "" {
			return nil, fmt.Errorf("knowledge entry %d has no content", i)
		}
	}
	return &Base{entries: entries}, nil
}

func NewBase(entries []Entry) *Base {
	return &Base{entries: slices.Clone(entries)}
}

func (b *Base) Entries() []Entry {
	return slices.Clone(b.entries)
}

func (b *Base) Len() int {
	return len(b.entries)
}

// Filter keeps entries in the given categories. No categories keeps everything.
func (b *Base) Filter(categories ...string) *Base {
	if len(categories) == 0 {
		return b
	}
	out := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		if slices.Contains(categories, e.Category) {
			out = append(out, e)
		}
	}
	return &Base{entries: out}
}
