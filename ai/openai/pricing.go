package openai

import "strings"

// ModelPricing is USD per million tokens
type ModelPricing struct {
	PromptPrice     float64
	CompletionPrice float64
}

// modelPricing covers the models featsmith is usually pointed at. OpenRouter
// names carry a vendor prefix ("openai/gpt-4o"); lookups strip it.
var modelPricing = map[string]ModelPricing{
	"gpt-4o":        {PromptPrice: 2.50, CompletionPrice: 10.00},
	"gpt-4o-mini":   {PromptPrice: 0.15, CompletionPrice: 0.60},
	"gpt-4-turbo":   {PromptPrice: 10.00, CompletionPrice: 30.00},
	"gpt-4.1":       {PromptPrice: 2.00, CompletionPrice: 8.00},
	"gpt-4.1-mini":  {PromptPrice: 0.40, CompletionPrice: 1.60},
	"gpt-3.5-turbo": {PromptPrice: 0.50, CompletionPrice: 1.50},
}

// CalculateCost returns the USD cost of one request, or false when the
// model has no known price (local models, unlisted remote ones).
func CalculateCost(model string, promptTokens, completionTokens int) (float64, bool) {
	pricing, ok := GetPricing(model)
	if !ok {
		return 0, false
	}
	prompt := float64(promptTokens) / 1_000_000.0 * pricing.PromptPrice
	completion := float64(completionTokens) / 1_000_000.0 * pricing.CompletionPrice
	return prompt + completion, true
}

// GetPricing looks a model up, ignoring an OpenRouter vendor prefix
func GetPricing(model string) (ModelPricing, bool) {
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	pricing, ok := modelPricing[model]
	return pricing, ok
}
