package ledger

import (
	"iter"
	"strings"

	"fintrack/internal/core"
)

// NameResolver maps a category id to its display name.
type NameResolver interface {
	Name(categoryID string) string
}

// Filter is a conjunction of optional criteria. Zero fields match everything.
type Filter struct {
	// Search matches case-insensitively against the description or the
	// resolved category name.
	Search     string
	CategoryID string
	Type       core.TransactionType
	From       core.Date
	To         core.Date
}

// Validate rejects an unknown type.
func (f Filter) Validate() error {
	if f.Type != "" && !f.Type.Valid() {
		return core.NewValidationError("type", core.ErrInvalidType)
	}
	return nil
}

// Match reports whether tx satisfies every set criterion.
func (f Filter) Match(tx core.Transaction, names NameResolver) bool {
	if f.CategoryID != "" && tx.CategoryID != f.CategoryID {
		return false
	}
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if !f.From.IsZero() && tx.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && tx.Date.After(f.To) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if strings.Contains(strings.ToLower(tx.Description), needle) {
			return true
		}
		if names == nil {
			return false
		}
		return strings.Contains(strings.ToLower(names.Name(tx.CategoryID)), needle)
	}
	return true
}

// Query returns a lazy sequence of matching transactions over a snapshot
// taken at call time. Order is insertion order. names may be nil, in which
// case Search only looks at descriptions.
func (l *Ledger) Query(f Filter, names NameResolver) iter.Seq[core.Transaction] {
	snapshot := l.All()
	return func(yield func(core.Transaction) bool) {
		for _, tx := range snapshot {
			if !f.Match(tx, names) {
				continue
			}
			if !yield(tx) {
				return
			}
		}
	}
}
