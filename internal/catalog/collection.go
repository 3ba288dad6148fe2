// Package catalog stores the small keyed collections that sit beside the
// ledger: categories, budgets and linked bank accounts.
package catalog

import (
	"sync"

	"github.com/google/uuid"

	"fintrack/internal/core"
)

// Collection is an ordered list of entities addressed by id.
type Collection[T any] struct {
	kind     string
	id       func(T) string
	setID    func(*T, string)
	validate func(T) error

	mu    sync.RWMutex
	items []T
	newID func() string
}

func newCollection[T any](kind string, id func(T) string, setID func(*T, string), validate func(T) error) *Collection[T] {
	return &Collection[T]{
		kind:     kind,
		id:       id,
		setID:    setID,
		validate: validate,
		newID:    uuid.NewString,
	}
}

// Add validates v, assigns an id when it has none and appends it.
func (c *Collection[T]) Add(v T) (T, error) {
	if c.id(v) == "" {
		c.setID(&v, c.newID())
	}
	if err := c.validate(v); err != nil {
		var zero T
		return zero, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.find(c.id(v)) >= 0 {
		var zero T
		return zero, core.NewValidationError("id", core.ErrDuplicateID)
	}
	c.items = append(c.items, v)
	return v, nil
}

// Replace overwrites the entity with the given id.
func (c *Collection[T]) Replace(id string, v T) (T, error) {
	c.setID(&v, id)
	if err := c.validate(v); err != nil {
		var zero T
		return zero, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.find(id)
	if i < 0 {
		var zero T
		return zero, core.NewNotFound(c.kind, id)
	}
	c.items[i] = v
	return v, nil
}

// Remove deletes the entity with the given id, if present.
func (c *Collection[T]) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.find(id)
	if i < 0 {
		return false
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	return true
}

func (c *Collection[T]) Get(id string) (T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := c.find(id)
	if i < 0 {
		var zero T
		return zero, core.NewNotFound(c.kind, id)
	}
	return c.items[i], nil
}

// List returns a copy in insertion order.
func (c *Collection[T]) List() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Restore replaces the contents without validation.
func (c *Collection[T]) Restore(items []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make([]T, len(items))
	copy(c.items, items)
}

// mutate applies fn to the entity with the given id (found=false and the
// zero value when absent) and stores the result, appending when new.
// Nothing is stored when fn fails.
func (c *Collection[T]) mutate(id string, fn func(cur T, found bool) (T, error)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.find(id)
	var cur T
	if i >= 0 {
		cur = c.items[i]
	}
	next, err := fn(cur, i >= 0)
	if err != nil {
		var zero T
		return zero, err
	}
	c.setID(&next, id)
	if err := c.validate(next); err != nil {
		var zero T
		return zero, err
	}
	if i >= 0 {
		c.items[i] = next
	} else {
		c.items = append(c.items, next)
	}
	return next, nil
}

func (c *Collection[T]) find(id string) int {
	for i := range c.items {
		if c.id(c.items[i]) == id {
			return i
		}
	}
	return -1
}
