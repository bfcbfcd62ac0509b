package agent

import (
	"regexp"
	"strings"

	"github.com/nanda/kirana/pkg/registry"
)

// Signature maps a family of query phrasings to a capability. Resolve picks
// the concrete tool for a matching query; an empty result means the family
// matched but no tool could be determined.
type Signature struct {
	Capability registry.Capability
	Pattern    *regexp.Regexp
	Resolve    func(query string) string
}

// Selection is one tool the coordinator decided to delegate. Tool is empty
// when the capability matched but no concrete tool could be resolved.
type Selection struct {
	Tool       string
	Capability registry.Capability
}

var (
	mathPattern = regexp.MustCompile(`(?i)\bcalculate\b|\bmath\b|\bequation\b|\bformula\b|\d+(?:\.\d+)?\s*(?:[+\-*/x×]|plus|minus|times|divided\s+by)\s*\d+(?:\.\d+)?`)
	mathOpPair  = regexp.MustCompile(`(?i)\d+(?:\.\d+)?\s*([+\-*/x×]|plus|minus|times|divided\s+by)\s*\d+(?:\.\d+)?`)

	searchPattern = regexp.MustCompile(`(?i)\bsearch\b|\blook\s*up\b|\blookup\b|\bfind\s+(?:out|information)\b|\binformation\s+(?:on|about)\b`)

	codePattern = regexp.MustCompile("(?i)\\brun\\b.{0,20}\\bcode\\b|\\bexecute\\b.{0,20}\\b(?:code|script)\\b|```")
)

// DefaultSignatures returns the built-in capability signature table in
// evaluation order. Each family contributes at most one selection.
func DefaultSignatures() []Signature {
	return []Signature{
		{
			Capability: registry.CapabilityMath,
			Pattern:    mathPattern,
			Resolve:    resolveMathTool,
		},
		{
			Capability: registry.CapabilitySearch,
			Pattern:    searchPattern,
			Resolve:    func(string) string { return "search" },
		},
		{
			Capability: registry.CapabilityCodeExecution,
			Pattern:    codePattern,
			Resolve:    func(string) string { return "run_code" },
		},
	}
}

// resolveMathTool maps the operator between a number pair to a tool name
func resolveMathTool(query string) string {
	m := mathOpPair.FindStringSubmatch(query)
	if m == nil {
		return ""
	}
	op := strings.Join(strings.Fields(strings.ToLower(m[1])), " ")
	switch op {
	case "+", "plus":
		return "add"
	case "-", "minus":
		return "subtract"
	case "*", "x", "×", "times":
		return "multiply"
	case "/", "divided by":
		return "divide"
	default:
		return ""
	}
}

// AnalyzeQuery matches a query against the signature table. Families are
// evaluated in order; non-conflicting families may all contribute, so a
// query can select several tools at once.
func AnalyzeQuery(query string, signatures []Signature) []Selection {
	var selections []Selection
	for _, sig := range signatures {
		if !sig.Pattern.MatchString(query) {
			continue
		}
		selections = append(selections, Selection{
			Tool:       sig.Resolve(query),
			Capability: sig.Capability,
		})
	}
	return selections
}
