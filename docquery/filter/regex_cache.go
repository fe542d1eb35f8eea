package filter

import (
	"container/list"
	"regexp"
	"sync"
)

const regexCacheSize = 256

type regexKey struct {
	pattern string
	options string
}

type lruEntry struct {
	key regexKey
	re  *regexp.Regexp
}

// regexCache keeps the most recently compiled patterns so that filters
// parsed repeatedly (one per lookup or merge target) do not recompile them.
type regexCache struct {
	mu    sync.Mutex
	items map[regexKey]*list.Element
	order *list.List
	size  int
}

func newRegexCache(size int) *regexCache {
	return &regexCache{
		items: make(map[regexKey]*list.Element, size),
		order: list.New(),
		size:  size,
	}
}

func (c *regexCache) add(key regexKey, re *regexp.Regexp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		elem.Value = lruEntry{key: key, re: re}
		c.order.MoveToBack(elem)
		return
	}
	elem := c.order.PushBack(lruEntry{key: key, re: re})
	c.items[key] = elem
	if len(c.items) > c.size {
		front := c.order.Front()
		c.order.Remove(front)
		delete(c.items, front.Value.(lruEntry).key)
	}
}

func (c *regexCache) get(key regexKey) (*regexp.Regexp, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToBack(elem)
	return elem.Value.(lruEntry).re, true
}

func (c *regexCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

var compiled = newRegexCache(regexCacheSize)
