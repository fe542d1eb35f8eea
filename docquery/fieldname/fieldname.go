// Package fieldname maps application field names onto stored field names.
package fieldname

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

type Resolver interface {
	ResolveFieldName(entityType, appField string) string
}

type ResolverFunc func(entityType, appField string) string

func (f ResolverFunc) ResolveFieldName(entityType, appField string) string {
	return f(entityType, appField)
}

// Identity leaves names unchanged.
type Identity struct{}

func (Identity) ResolveFieldName(_, appField string) string {
	return appField
}

// SnakeCase turns camelCase and PascalCase names into snake_case,
// e.g. "customerID" -> "customer_id".
type SnakeCase struct{}

func (SnakeCase) ResolveFieldName(_, appField string) string {
	return ToSnake(appField)
}

// Mapped looks names up in a per-entity table and defers to Fallback for
// anything not listed. A nil Fallback means Identity.
type Mapped struct {
	Fields   map[string]map[string]string
	Fallback Resolver
}

func (m Mapped) ResolveFieldName(entityType, appField string) string {
	if name, ok := m.Fields[entityType][appField]; ok {
		return name
	}
	if m.Fallback == nil {
		return appField
	}
	return m.Fallback.ResolveFieldName(entityType, appField)
}

// ResolvePath resolves every segment of a dotted path. Array positions and
// the _id key are kept as they are.
func ResolvePath(r Resolver, entityType, path string) string {
	if r == nil || entityType == "" {
		return path
	}
	segs := strings.Split(path, ".")
	for i, seg := range segs {
		if seg == "_id" || isIndex(seg) {
			continue
		}
		segs[i] = r.ResolveFieldName(entityType, seg)
	}
	return strings.Join(segs, ".")
}

// CollectionName derives the collection holding entities of entityType:
// "OrderLine" -> "order_lines", "Category" -> "categories".
func CollectionName(entityType string) string {
	return inflection.Plural(ToSnake(entityType))
}

// EntityType is the inverse of CollectionName up to case:
// "order_lines" -> "order_line".
func EntityType(collection string) string {
	return inflection.Singular(collection)
}

func ToSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && runes[i-1] != '_' {
				prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if prevLower || (nextLower && unicode.IsUpper(runes[i-1])) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isIndex(seg string) bool {
	if seg == "" {
		return false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
