package toolkit

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// RegisterBuiltinToolkits registers the baseline math, search and code
// toolkits. External toolkits register through the same Manager.Register
// contract.
func RegisterBuiltinToolkits(m *Manager) error {
	toolkits := [][]Definition{
		MathToolkit(),
		SearchToolkit(nil),
		CodeToolkit(),
	}

	for _, tools := range toolkits {
		for _, def := range tools {
			if err := m.Register(def); err != nil {
				return fmt.Errorf("failed to register tool %s: %w", def.Name, err)
			}
		}
	}
	return nil
}

func numberParams() []Parameter {
	return []Parameter{
		{Name: "a", Type: "number", Description: "First operand", Required: true},
		{Name: "b", Type: "number", Description: "Second operand", Required: true},
	}
}

// MathToolkit returns the arithmetic tools. All are pure and deterministic.
func MathToolkit() []Definition {
	binary := func(name, verb string, op func(a, b float64) (float64, error)) Definition {
		return Definition{
			Name:        name,
			Category:    CategoryMath,
			Description: fmt.Sprintf("%s two numbers", verb),
			Parameters:  numberParams(),
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				a, err := floatParam(params, "a")
				if err != nil {
					return nil, err
				}
				b, err := floatParam(params, "b")
				if err != nil {
					return nil, err
				}
				return op(a, b)
			},
		}
	}

	return []Definition{
		binary("add", "Add", func(a, b float64) (float64, error) { return a + b, nil }),
		binary("subtract", "Subtract", func(a, b float64) (float64, error) { return a - b, nil }),
		binary("multiply", "Multiply", func(a, b float64) (float64, error) { return a * b, nil }),
		binary("divide", "Divide", func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return a / b, nil
		}),
	}
}

// SearchToolkit returns a deterministic local-index search tool. A custom
// index replaces the default demo corpus; external search providers
// register their own tool instead.
func SearchToolkit(index map[string]string) []Definition {
	if index == nil {
		index = map[string]string{
			"machine learning":   "Machine learning covers supervised, unsupervised and reinforcement methods.",
			"message bus":        "A message bus decouples producers from consumers with queues and topics.",
			"golang concurrency": "Go models concurrency with goroutines and channels.",
		}
	}

	return []Definition{
		{
			Name:        "search",
			Category:    CategorySearch,
			Description: "Search the local knowledge index for information",
			Parameters: []Parameter{
				{Name: "query", Type: "string", Description: "Search query", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				query, _ := params["query"].(string)
				query = strings.ToLower(strings.TrimSpace(query))
				if query == "" {
					return nil, fmt.Errorf("query is required")
				}

				var hits []string
				for key, snippet := range index {
					if strings.Contains(query, key) || strings.Contains(key, query) {
						hits = append(hits, snippet)
					}
				}
				sort.Strings(hits)

				if len(hits) == 0 {
					return fmt.Sprintf("No local results for %q.", query), nil
				}
				return strings.Join(hits, " "), nil
			},
		},
	}
}

// CodeToolkit returns a demo code runner that validates and echoes a
// snippet without executing it. Real execution backends register their own
// tool under the same name contract.
func CodeToolkit() []Definition {
	return []Definition{
		{
			Name:        "run_code",
			Category:    CategoryCode,
			Description: "Validate a code snippet and report what would run",
			Parameters: []Parameter{
				{Name: "code", Type: "string", Description: "Code snippet", Required: true},
				{Name: "language", Type: "string", Description: "Snippet language", Required: false},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				code, _ := params["code"].(string)
				if strings.TrimSpace(code) == "" {
					return nil, fmt.Errorf("code is required")
				}
				language, _ := params["language"].(string)
				if language == "" {
					language = "unknown"
				}
				lines := strings.Count(code, "\n") + 1
				return fmt.Sprintf("Accepted %d line(s) of %s code for execution.", lines, language), nil
			},
		},
	}
}

// floatParam reads a numeric parameter accepting the JSON number forms
func floatParam(params map[string]interface{}, key string) (float64, error) {
	v, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("missing parameter: %s", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("parameter %s is not a number", key)
	}
}
