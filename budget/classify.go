package budget

import (
	"path/filepath"
	"strings"

	"github.com/pithecene-io/kiln/types"
)

// Rule maps bundles matching a predicate to a category.
type Rule struct {
	Category types.BundleCategory
	Match    func(name string) bool
}

// SubstringRule matches names containing any of patterns. Matching is
// case-insensitive and sees forward slashes on every platform.
func SubstringRule(category types.BundleCategory, patterns ...string) Rule {
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
	}
	return Rule{
		Category: category,
		Match: func(name string) bool {
			name = strings.ToLower(filepath.ToSlash(name))
			for _, p := range lowered {
				if strings.Contains(name, p) {
					return true
				}
			}
			return false
		},
	}
}

// Classifier assigns a category to a bundle name by evaluating its rules
// top to bottom. It is total: unmatched names are CategoryFeature.
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a Classifier over rules, in order.
func NewClassifier(rules ...Rule) *Classifier {
	return &Classifier{rules: rules}
}

// DefaultClassifier returns the built-in rule order: vendor, main,
// critical, page.
func DefaultClassifier() *Classifier {
	return NewClassifier(
		SubstringRule(types.CategoryVendor, "vendor", "node_modules", "chunk-vendors"),
		SubstringRule(types.CategoryMain, "main", "app", "index"),
		SubstringRule(types.CategoryCritical, "critical", "runtime", "polyfill"),
		SubstringRule(types.CategoryPage, "page", "pages/", "route"),
	)
}

// Classify returns the category of the first matching rule.
func (c *Classifier) Classify(name string) types.BundleCategory {
	if c != nil {
		for _, r := range c.rules {
			if r.Match(name) {
				return r.Category
			}
		}
	}
	return types.CategoryFeature
}
