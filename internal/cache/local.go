package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type localItem struct {
	key    string
	region string
	entry  *Entry
	exp    time.Time
}

// Local is an in-process LRU with a TTL.
type Local struct {
	mu       sync.Mutex
	cap      int
	ttl      time.Duration
	lst      *list.List
	dict     map[string]*list.Element
	byRegion map[string]map[string]struct{}
	now      func() time.Time
}

// NewLocal creates a Local cache. A capacity below 1 disables it: every Get
// misses and Set is dropped.
func NewLocal(capacity int, ttl time.Duration) *Local {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Local{
		cap:      capacity,
		ttl:      ttl,
		lst:      list.New(),
		dict:     make(map[string]*list.Element),
		byRegion: make(map[string]map[string]struct{}),
		now:      time.Now,
	}
}

// Get returns a live entry and marks it recently used.
func (c *Local) Get(_ context.Context, key Key) (*Entry, bool) {
	k := key.String()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.dict[k]
	if !ok {
		return nil, false
	}
	it := e.Value.(*localItem)
	if c.now().After(it.exp) {
		c.remove(e)
		return nil, false
	}
	c.lst.MoveToFront(e)
	return it.entry, true
}

// Set stores an entry, evicting the least recently used beyond capacity.
func (c *Local) Set(_ context.Context, key Key, entry *Entry) {
	if c.cap < 1 {
		return
	}
	k := key.String()
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dict[k]; ok {
		c.remove(e)
	}
	it := &localItem{key: k, region: key.Region, entry: entry, exp: c.now().Add(c.ttl)}
	c.dict[k] = c.lst.PushFront(it)
	keys := c.byRegion[key.Region]
	if keys == nil {
		keys = make(map[string]struct{})
		c.byRegion[key.Region] = keys
	}
	keys[k] = struct{}{}

	for c.lst.Len() > c.cap {
		c.remove(c.lst.Back())
	}
}

// InvalidateRegion drops every entry computed for a region.
func (c *Local) InvalidateRegion(_ context.Context, region string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.byRegion[region] {
		if e, ok := c.dict[k]; ok {
			c.remove(e)
		}
	}
	delete(c.byRegion, region)
}

// Len returns the number of entries, including expired ones not yet seen.
func (c *Local) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lst.Len()
}

// must hold c.mu
func (c *Local) remove(e *list.Element) {
	it := e.Value.(*localItem)
	c.lst.Remove(e)
	delete(c.dict, it.key)
	if keys := c.byRegion[it.region]; keys != nil {
		delete(keys, it.key)
		if len(keys) == 0 {
			delete(c.byRegion, it.region)
		}
	}
}
