package collection

import (
	"context"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/filter"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

// Memory is an in-memory Access. Documents are kept in insertion order.
type Memory struct {
	mu          sync.RWMutex
	collections map[string][]value.Document
	parser      *filter.Parser
	matcher     *filter.Matcher
}

func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string][]value.Document),
		parser:      filter.NewParser(),
		matcher:     filter.NewMatcher(),
	}
}

func (m *Memory) Find(ctx context.Context, collection string, query value.Document, limit int) ([]value.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	node, err := m.parser.ParseDocument(query)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []value.Document
	for _, d := range m.collections[collection] {
		ok, err := m.matcher.Match(node, d)
		if err != nil {
			return nil, errors.Wrapf(err, "find in %s", collection)
		}
		if !ok {
			continue
		}
		out = append(out, d.Clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) Upsert(ctx context.Context, collection string, doc value.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, ok := doc.Get(IDField)
	if !ok {
		return errors.Wrapf(ErrMissingID, "upsert into %s", collection)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	docs := m.collections[collection]
	for i, existing := range docs {
		if existingID, _ := existing.Get(IDField); value.Equal(existingID, id) {
			docs[i] = doc.Clone()
			return nil
		}
	}
	m.collections[collection] = append(docs, doc.Clone())
	return nil
}

func (m *Memory) Insert(ctx context.Context, collection string, docs ...value.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.collections[collection]
	var result error
	staged := make([]value.Document, 0, len(docs))
	for i, d := range docs {
		d = EnsureID(d)
		id, _ := d.Get(IDField)
		if m.containsID(existing, id) || m.containsID(staged, id) {
			result = multierror.Append(result, errors.Wrapf(ErrDuplicateKey, "document %d: _id %s", i, id))
			continue
		}
		staged = append(staged, d.Clone())
	}
	if result != nil {
		return errors.Wrapf(result, "insert into %s", collection)
	}
	m.collections[collection] = append(existing, staged...)
	return nil
}

func (m *Memory) containsID(docs []value.Document, id value.Value) bool {
	for _, d := range docs {
		if existing, _ := d.Get(IDField); value.Equal(existing, id) {
			return true
		}
	}
	return false
}

// All returns a copy of every document in collection.
func (m *Memory) All(collection string) []value.Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := m.collections[collection]
	out := make([]value.Document, len(docs))
	for i, d := range docs {
		out[i] = d.Clone()
	}
	return out
}

func (m *Memory) Collections() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var _ Access = (*Memory)(nil)
