package core

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// UnknownCategoryName is shown for references to deleted categories.
	UnknownCategoryName = "Unknown"
	// UnknownCategoryColor is the neutral color used with UnknownCategoryName.
	UnknownCategoryColor = "#95a5a6"
)

// DefaultCategories returns the built-in set used when no categories have
// ever been persisted: six expense and three income categories.
func DefaultCategories() []Category {
	return []Category{
		{ID: "1", Name: "Food & Dining", Type: Expense, Color: "#e74c3c"},
		{ID: "2", Name: "Transportation", Type: Expense, Color: "#3498db"},
		{ID: "3", Name: "Shopping", Type: Expense, Color: "#9b59b6"},
		{ID: "4", Name: "Entertainment", Type: Expense, Color: "#f39c12"},
		{ID: "5", Name: "Bills & Utilities", Type: Expense, Color: "#1abc9c"},
		{ID: "6", Name: "Healthcare", Type: Expense, Color: "#e67e22"},
		{ID: "7", Name: "Salary", Type: Income, Color: "#27ae60"},
		{ID: "8", Name: "Freelance", Type: Income, Color: "#2ecc71"},
		{ID: "9", Name: "Investment", Type: Income, Color: "#34495e"},
	}
}

type categorySeed struct {
	Categories []Category `yaml:"categories"`
}

// LoadCategorySeed reads a YAML file of the form
//
//	categories:
//	  - {id: "1", name: Groceries, type: expense, color: "#e74c3c"}
//
// and returns its entries after validation. An empty path returns the
// built-in defaults.
func LoadCategorySeed(path string) ([]Category, error) {
	if path == "" {
		return DefaultCategories(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category seed: %w", err)
	}
	var seed categorySeed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse category seed: %w", err)
	}
	if len(seed.Categories) == 0 {
		return nil, fmt.Errorf("category seed %s: no categories", path)
	}
	seen := make(map[string]struct{}, len(seed.Categories))
	for i, c := range seed.Categories {
		if c.ID == "" {
			return nil, fmt.Errorf("category seed entry %d: %w", i, invalid("id", ErrEmptyID))
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("category seed entry %d: duplicate id %q", i, c.ID)
		}
		seen[c.ID] = struct{}{}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("category seed entry %d: %w", i, err)
		}
	}
	return seed.Categories, nil
}
