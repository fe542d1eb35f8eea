package filter

import (
	"strings"
	"unicode"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/queryerr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

func (p *Parser) parseText(arg value.Value) (Node, error) {
	d, ok := arg.AsDocument()
	if !ok {
		return nil, queryerr.Malformed(nil, "$text", "expected a document, got %s", arg.Kind())
	}
	t := Text{Fields: p.textFields}
	for _, f := range d.Fields() {
		switch f.Key {
		case "$search":
			s, ok := f.Value.AsString()
			if !ok {
				return nil, queryerr.Malformed(nil, "$text", "$search must be a string")
			}
			t.Search = s
		case "$language":
			t.Language, _ = f.Value.AsString()
		case "$caseSensitive":
			t.CaseSensitive = value.Truthy(f.Value)
		case "$diacriticSensitive":
		default:
			return nil, queryerr.Malformed(nil, "$text", "unknown field %q", f.Key)
		}
	}
	if !d.Has("$search") {
		return nil, queryerr.Malformed(nil, "$text", "$search is required")
	}
	t.terms, t.phrases, t.negated = tokenizeSearch(t.Search)
	if !t.CaseSensitive {
		t.terms = lowerAll(t.terms)
		t.phrases = lowerAll(t.phrases)
		t.negated = lowerAll(t.negated)
	}
	return t, nil
}

// tokenizeSearch splits a $search string into plain terms, "quoted
// phrases" and -negated terms.
func tokenizeSearch(search string) (terms, phrases, negated []string) {
	rest := search
	for {
		start := strings.IndexByte(rest, '"')
		if start < 0 {
			break
		}
		end := strings.IndexByte(rest[start+1:], '"')
		if end < 0 {
			break
		}
		if phrase := strings.TrimSpace(rest[start+1 : start+1+end]); phrase != "" {
			phrases = append(phrases, phrase)
		}
		rest = rest[:start] + " " + rest[start+end+2:]
	}
	for _, word := range strings.Fields(rest) {
		if strings.HasPrefix(word, "-") {
			if w := strings.TrimLeft(word, "-"); w != "" {
				negated = append(negated, words(w)...)
			}
			continue
		}
		terms = append(terms, words(word)...)
	}
	return terms, phrases, negated
}

func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func lowerAll(items []string) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = strings.ToLower(s)
	}
	return out
}

// matchText implements $text: every phrase must occur, no negated term may
// occur, and at least one plain term must occur (or, with no plain terms,
// at least one phrase).
func matchText(t Text, doc value.Document) bool {
	var texts []string
	if len(t.Fields) == 0 {
		texts = collectStrings(value.Doc(doc), texts)
	} else {
		for _, path := range t.Fields {
			for _, v := range value.LookupAll(value.Doc(doc), value.SplitPath(path)) {
				texts = collectStrings(v, texts)
			}
		}
	}
	if len(texts) == 0 {
		return false
	}
	body := strings.Join(texts, "\n")
	if !t.CaseSensitive {
		body = strings.ToLower(body)
	}
	tokens := make(map[string]struct{})
	for _, w := range words(body) {
		tokens[w] = struct{}{}
	}

	for _, w := range t.negated {
		if _, ok := tokens[w]; ok {
			return false
		}
	}
	for _, phrase := range t.phrases {
		if !strings.Contains(body, phrase) {
			return false
		}
	}
	if len(t.terms) == 0 {
		return len(t.phrases) > 0
	}
	for _, w := range t.terms {
		if _, ok := tokens[w]; ok {
			return true
		}
	}
	return false
}

func collectStrings(v value.Value, out []string) []string {
	switch v.Kind() {
	case value.KindString:
		s, _ := v.AsString()
		return append(out, s)
	case value.KindArray:
		items, _ := v.AsArray()
		for _, item := range items {
			out = collectStrings(item, out)
		}
	case value.KindDocument:
		d, _ := v.AsDocument()
		for _, f := range d.Fields() {
			out = collectStrings(f.Value, out)
		}
	}
	return out
}
