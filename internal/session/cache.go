package session

import (
	"fmt"
	"sync"

	"github.com/MahdiBaghbani/confdesk-go/internal/components/interaction"
)

// Cache holds the latest attribute values reported by the session.
// It is safe for concurrent use.
type Cache struct {
	mu     sync.RWMutex
	values map[interaction.ID]map[interaction.Attribute]string
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{values: make(map[interaction.ID]map[interaction.Attribute]string)}
}

// Attribute implements AttributeSource.
func (c *Cache) Attribute(id interaction.ID, a interaction.Attribute) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	attrs, ok := c.values[id]
	if !ok {
		return "", fmt.Errorf("%w: interaction %d", ErrNotCached, id)
	}
	v, ok := attrs[a]
	if !ok {
		return "", fmt.Errorf("%w: %s of interaction %d", ErrNotCached, a, id)
	}
	return v, nil
}

// Set stores one value.
func (c *Cache) Set(id interaction.ID, a interaction.Attribute, v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(id, a, v)
}

func (c *Cache) set(id interaction.ID, a interaction.Attribute, v string) {
	attrs, ok := c.values[id]
	if !ok {
		attrs = make(map[interaction.Attribute]string)
		c.values[id] = attrs
	}
	attrs[a] = v
}

// Store records every value carried by the batch.
func (c *Cache) Store(b Batch) {
	if len(b.Values) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range b.Values {
		for a, raw := range v.Attrs {
			c.set(v.ID, a, raw)
		}
	}
}

// Evict drops the values of interactions and conference items the batch
// removed. Call it after the batch has been applied.
func (c *Cache) Evict(b Batch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range b.Notifications {
		switch n.Kind {
		case InteractionRemoved, ConferenceItemRemoved:
			delete(c.values, n.Target())
		}
	}
}

// Forget drops every value of one interaction.
func (c *Cache) Forget(id interaction.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, id)
}

// Reset drops all values.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = make(map[interaction.ID]map[interaction.Attribute]string)
}

// Len returns the number of cached interactions.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}
