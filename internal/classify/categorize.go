package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const categorizePrompt = `I have a list of off-task activities that a user did while they should have been working. Please categorize these activities into logical groups.

Activities:
%s
Analyze these activities and group them into categories that make sense (e.g., "Social Media", "Entertainment", "Shopping", "News", "Communication", etc.). You decide the categories based on what you see - don't use predefined categories.

Respond with JSON only, no markdown. Format:
{"categories": {"Category Name": ["activity 1", "activity 2"], "Another Category": ["activity 3"]}}`

// Categorize asks the model to group off-task activities. The result maps a
// category name to the activities in it.
func Categorize(ctx context.Context, gen Generator, activities []string) (map[string][]string, error) {
	if len(activities) == 0 {
		return map[string][]string{}, nil
	}

	var list strings.Builder
	for i, a := range activities {
		fmt.Fprintf(&list, "%d. %s\n", i+1, a)
	}

	raw, err := gen.Generate(ctx, fmt.Sprintf(categorizePrompt, list.String()))
	if err != nil {
		return nil, fmt.Errorf("categorize: %w", err)
	}

	obj, ok := ExtractObject(raw)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in categorize reply", ErrParse)
	}
	var parsed struct {
		Categories map[string][]string `json:"categories"`
	}
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if parsed.Categories == nil {
		return map[string][]string{}, nil
	}
	return parsed.Categories, nil
}
