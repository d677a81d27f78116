package observer

import "strings"

// ModelPricing holds per-million-token pricing for a model.
type ModelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// DefaultPricing covers the hosted Gemini models and the self-hosted coder
// models served through vLLM, which cost nothing per token. Override or
// extend via [observer.pricing] in gencode.toml.
var DefaultPricing = map[string]ModelPricing{
	"gemini-2.0-flash":      {0.10, 0.40},
	"gemini-2.5-flash":      {0.30, 2.50},
	"gemini-2.5-flash-lite": {0.10, 0.40},
	"gemini-2.5-pro":        {1.25, 10.00},

	"gpt-4.1":      {2.00, 8.00},
	"gpt-4.1-mini": {0.40, 1.60},

	"qwen2.5-coder":  {0, 0},
	"deepseek-coder": {0, 0},
	"codellama":      {0, 0},
}

// CostCalculator computes USD cost from token counts.
type CostCalculator struct {
	pricing map[string]ModelPricing
}

// NewCostCalculator merges overrides over DefaultPricing. Keys are matched
// after normalization, see Lookup.
func NewCostCalculator(overrides map[string]ModelPricing) *CostCalculator {
	merged := make(map[string]ModelPricing, len(DefaultPricing)+len(overrides))
	for k, v := range DefaultPricing {
		merged[normalizeModel(k)] = v
	}
	for k, v := range overrides {
		merged[normalizeModel(k)] = v
	}
	return &CostCalculator{pricing: merged}
}

// Lookup finds pricing for model. The name is lowercased and stripped of an
// "org/" prefix, then the longest priced key that prefixes it wins, so
// "Qwen/Qwen2.5-Coder-7B-Instruct" matches "qwen2.5-coder" and
// "gemini-2.5-flash-001" matches "gemini-2.5-flash".
func (c *CostCalculator) Lookup(model string) (ModelPricing, bool) {
	name := normalizeModel(model)
	if p, ok := c.pricing[name]; ok {
		return p, true
	}
	best, found := "", false
	for key := range c.pricing {
		if strings.HasPrefix(name, key) && len(key) > len(best) {
			best, found = key, true
		}
	}
	return c.pricing[best], found
}

// Calculate returns the cost in USD, or 0 for an unpriced model.
func (c *CostCalculator) Calculate(model string, inputTokens, outputTokens int) float64 {
	p, ok := c.Lookup(model)
	if !ok {
		return 0
	}
	return float64(inputTokens)/1_000_000*p.InputPerMillion +
		float64(outputTokens)/1_000_000*p.OutputPerMillion
}

func normalizeModel(model string) string {
	model = strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndexByte(model, '/'); i >= 0 {
		model = model[i+1:]
	}
	return model
}
