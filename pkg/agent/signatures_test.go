package agent

import (
	"testing"

	"github.com/nanda/kirana/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeQuery_Math(t *testing.T) {
	selections := AnalyzeQuery("Calculate 15 * 23 for me", DefaultSignatures())

	require.Len(t, selections, 1)
	assert.Equal(t, "multiply", selections[0].Tool)
	assert.Equal(t, registry.CapabilityMath, selections[0].Capability)
}

func TestAnalyzeQuery_MathOperatorWords(t *testing.T) {
	cases := map[string]string{
		"Calculate 4 plus 5":        "add",
		"what is 9 minus 3?":        "subtract",
		"compute 6 times 7":         "multiply",
		"what is 10 divided by 2":   "divide",
		"calculate 1.5 + 2.25 now":  "add",
		"please calculate something": "",
	}

	for query, tool := range cases {
		selections := AnalyzeQuery(query, DefaultSignatures())
		require.Len(t, selections, 1, query)
		assert.Equal(t, tool, selections[0].Tool, query)
	}
}

func TestAnalyzeQuery_Search(t *testing.T) {
	selections := AnalyzeQuery("Search for machine learning", DefaultSignatures())

	require.Len(t, selections, 1)
	assert.Equal(t, "search", selections[0].Tool)
	assert.Equal(t, registry.CapabilitySearch, selections[0].Capability)
}

func TestAnalyzeQuery_Code(t *testing.T) {
	selections := AnalyzeQuery("run this code ```python\nprint(1)\n```", DefaultSignatures())

	require.Len(t, selections, 1)
	assert.Equal(t, "run_code", selections[0].Tool)
}

func TestAnalyzeQuery_MultipleFamilies(t *testing.T) {
	selections := AnalyzeQuery("Calculate 2 + 3 and look up message bus", DefaultSignatures())

	require.Len(t, selections, 2)
	// Families contribute in table order: math before search.
	assert.Equal(t, "add", selections[0].Tool)
	assert.Equal(t, "search", selections[1].Tool)
}

func TestAnalyzeQuery_NoMatch(t *testing.T) {
	assert.Empty(t, AnalyzeQuery("good morning, how are you?", DefaultSignatures()))
}
