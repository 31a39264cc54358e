package parser

import "strings"

// modelRate holds USD-per-million-token pricing for one model family.
type modelRate struct {
	prefix      string
	input       float64
	output      float64
	cacheRead   float64
	cacheCreate float64
}

// costTable is matched by longest prefix, so the order of entries does not
// affect which one is chosen.
var costTable = []modelRate{
	{prefix: "claude-opus-4-6", input: 15.00, output: 75.00, cacheRead: 1.50, cacheCreate: 18.75},
	{prefix: "claude-sonnet-4-5", input: 3.00, output: 15.00, cacheRead: 0.30, cacheCreate: 3.75},
	{prefix: "claude-haiku-4-5", input: 0.80, output: 4.00, cacheRead: 0.08, cacheCreate: 1.00},
}

// EstimateCostUSD computes the USD cost of a usage snapshot for the given
// model string, matched by longest prefix against the cost table. An
// unrecognized model yields zero cost.
func EstimateCostUSD(model string, u Usage) float64 {
	rate, ok := matchModelRate(model)
	if !ok {
		return 0
	}
	const perMillion = 1_000_000.0
	return float64(u.InputTokens)*rate.input/perMillion +
		float64(u.OutputTokens)*rate.output/perMillion +
		float64(u.CacheReadTokens)*rate.cacheRead/perMillion +
		float64(u.CacheCreationTokens)*rate.cacheCreate/perMillion
}

// matchModelRate finds the cost table entry whose prefix is the longest
// match for model. Falls back to comparing just the family token
// ("claude-<family>-<major>") when no entry's full prefix matches.
func matchModelRate(model string) (modelRate, bool) {
	if model == "" {
		return modelRate{}, false
	}
	best := modelRate{}
	bestLen := -1
	for _, r := range costTable {
		if strings.HasPrefix(model, r.prefix) && len(r.prefix) > bestLen {
			best = r
			bestLen = len(r.prefix)
		}
	}
	if bestLen >= 0 {
		return best, true
	}
	if parts := strings.SplitN(model, "-", 4); len(parts) >= 3 {
		family := strings.Join(parts[:3], "-") + "-"
		for _, r := range costTable {
			if strings.HasPrefix(r.prefix, family) {
				return r, true
			}
		}
	}
	return modelRate{}, false
}
