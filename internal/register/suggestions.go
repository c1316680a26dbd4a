package register

import (
	"context"
	"strings"
)

const (
	suggestionScan  = 100
	suggestionLimit = 50
)

var defaultSuggestions = []string{
	"Vegetables", "Tomatoes", "Onions", "Potatoes",
	"Chicken BL", "Chicken WB", "Paneer", "Cheese",
	"Gas Cylinder", "Ice", "Packaging", "Transport",
	"Cleaning", "Repairs", "Petrol", "Chai/Snacks",
}

// ExpenseSuggestions lists the org's recent distinct expense descriptions,
// newest first. A failed or empty lookup falls back to the common items.
func (e *Engine) ExpenseSuggestions(ctx context.Context, caller Caller) ([]string, error) {
	a, err := e.resolveActor(ctx, caller)
	if err != nil {
		return nil, err
	}
	recent, err := e.Store.RecentExpenseDescriptions(ctx, a.orgID, suggestionScan)
	if err != nil {
		e.log().Warn("expense suggestions lookup failed", "org", a.orgID, "err", err)
		return append([]string(nil), defaultSuggestions...), nil
	}

	seen := make(map[string]struct{}, len(recent))
	out := make([]string, 0, suggestionLimit)
	for _, desc := range recent {
		desc = strings.TrimSpace(desc)
		if desc == "" {
			continue
		}
		if _, ok := seen[desc]; ok {
			continue
		}
		seen[desc] = struct{}{}
		out = append(out, desc)
		if len(out) == suggestionLimit {
			break
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultSuggestions...), nil
	}
	return out, nil
}
