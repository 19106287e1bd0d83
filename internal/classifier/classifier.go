// Package classifier assigns each post to exactly one bucket from an ordered
// list of regex categories. The first category whose pattern matches wins;
// posts matching nothing land in Other.
package classifier

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ibeckermayer/listen4me/internal/config"
)

// Other is the fallback bucket.
const Other = "other"

// ErrInvalidCategory is wrapped by every configuration error New returns.
var ErrInvalidCategory = errors.New("invalid category")

type category struct {
	name string
	re   *regexp.Regexp
}

// Classifier is immutable after New and safe for concurrent use.
type Classifier struct {
	categories []category
	index      map[string]int
}

// New compiles defs in order. Any broken definition fails the whole set so
// that a bad pattern never silently skews classification.
func New(defs []config.CategoryConfig) (*Classifier, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: no categories defined", ErrInvalidCategory)
	}

	c := &Classifier{
		categories: make([]category, 0, len(defs)),
		index:      make(map[string]int, len(defs)),
	}

	for i, def := range defs {
		name := strings.TrimSpace(def.Name)
		switch {
		case name == "":
			return nil, fmt.Errorf("%w: entry %d has no name", ErrInvalidCategory, i)
		case strings.EqualFold(name, Other):
			return nil, fmt.Errorf("%w: %q is reserved for unmatched posts", ErrInvalidCategory, Other)
		case strings.TrimSpace(def.Pattern) == "":
			return nil, fmt.Errorf("%w: %q has an empty pattern", ErrInvalidCategory, name)
		}
		if prev, dup := c.index[name]; dup {
			return nil, fmt.Errorf("%w: %q defined twice (entries %d and %d)", ErrInvalidCategory, name, prev, i)
		}

		re, err := regexp.Compile("(?i)" + def.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidCategory, name, err)
		}

		c.index[name] = len(c.categories)
		c.categories = append(c.categories, category{name: name, re: re})
	}

	return c, nil
}

// Classify returns the name of the first matching category, or Other.
func (c *Classifier) Classify(text string) string {
	if strings.TrimSpace(text) == "" {
		return Other
	}
	for _, cat := range c.categories {
		if cat.re.MatchString(text) {
			return cat.name
		}
	}
	return Other
}

// Names returns the category names in precedence order, without Other.
func (c *Classifier) Names() []string {
	names := make([]string, len(c.categories))
	for i, cat := range c.categories {
		names[i] = cat.name
	}
	return names
}

// Buckets returns Names followed by Other.
func (c *Classifier) Buckets() []string {
	return append(c.Names(), Other)
}

// Has reports whether name is a configured category or Other.
func (c *Classifier) Has(name string) bool {
	if name == Other {
		return true
	}
	_, ok := c.index[name]
	return ok
}
