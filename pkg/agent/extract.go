package agent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Extractor derives tool parameters from free-form query text
type Extractor func(query string) (map[string]interface{}, error)

// ExtractorTable maps tool names to their parameter extractors. Toolkits
// shipping their own tools register matching extractors here.
type ExtractorTable struct {
	mu     sync.RWMutex
	byTool map[string]Extractor
}

// DefaultExtractors returns a table covering the built-in toolkits
func DefaultExtractors() *ExtractorTable {
	t := &ExtractorTable{byTool: make(map[string]Extractor)}
	for _, name := range []string{"add", "subtract", "multiply", "divide"} {
		t.Register(name, ExtractNumberPair)
	}
	t.Register("search", ExtractSearchQuery)
	t.Register("run_code", ExtractCodeSnippet)
	return t
}

// Register installs or replaces the extractor for a tool
func (t *ExtractorTable) Register(tool string, fn Extractor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byTool[tool] = fn
}

// Extract runs the registered extractor for a tool against the query
func (t *ExtractorTable) Extract(tool, query string) (map[string]interface{}, error) {
	t.mu.RLock()
	fn, ok := t.byTool[tool]
	t.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: no extractor for tool %s", ErrParameterExtraction, tool)
	}
	return fn(query)
}

var (
	numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)
	quotedPhrase  = regexp.MustCompile(`"([^"]+)"`)
	searchTail    = regexp.MustCompile(`(?i)\b(?:search\s+(?:for\s+)?|look\s*up\s+|lookup\s+|find\s+(?:out\s+about\s+|information\s+(?:on|about)\s+)?|information\s+(?:on|about)\s+)(.+)$`)
	fencedBlock   = regexp.MustCompile("(?s)```([a-zA-Z0-9+]*)\\n?(.*?)```")
)

// ExtractNumberPair pulls the first two numbers out of the query as the
// operands a and b.
func ExtractNumberPair(query string) (map[string]interface{}, error) {
	numbers := numberPattern.FindAllString(query, 3)
	if len(numbers) < 2 {
		return nil, fmt.Errorf("%w: need two numbers, found %d", ErrParameterExtraction, len(numbers))
	}

	a, err := strconv.ParseFloat(numbers[0], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParameterExtraction, err)
	}
	b, err := strconv.ParseFloat(numbers[1], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParameterExtraction, err)
	}

	return map[string]interface{}{"a": a, "b": b}, nil
}

// ExtractSearchQuery pulls the search terms out of the query. A quoted
// phrase wins; otherwise the text after the search keywords is used.
func ExtractSearchQuery(query string) (map[string]interface{}, error) {
	if m := quotedPhrase.FindStringSubmatch(query); m != nil {
		return map[string]interface{}{"query": strings.TrimSpace(m[1])}, nil
	}

	m := searchTail.FindStringSubmatch(query)
	if m == nil {
		return nil, fmt.Errorf("%w: no search terms found", ErrParameterExtraction)
	}

	terms := strings.TrimSpace(strings.Trim(m[1], ".!? "))
	terms = strings.TrimSuffix(terms, " for me")
	terms = strings.TrimSuffix(terms, " please")
	if terms == "" {
		return nil, fmt.Errorf("%w: empty search terms", ErrParameterExtraction)
	}
	return map[string]interface{}{"query": terms}, nil
}

// ExtractCodeSnippet pulls a fenced code block and its language tag
func ExtractCodeSnippet(query string) (map[string]interface{}, error) {
	m := fencedBlock.FindStringSubmatch(query)
	if m == nil {
		return nil, fmt.Errorf("%w: no fenced code block found", ErrParameterExtraction)
	}

	code := strings.TrimSpace(m[2])
	if code == "" {
		return nil, fmt.Errorf("%w: empty code block", ErrParameterExtraction)
	}

	params := map[string]interface{}{"code": code}
	if lang := strings.TrimSpace(m[1]); lang != "" {
		params["language"] = lang
	}
	return params, nil
}
