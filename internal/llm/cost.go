package llm

// costPerToken holds USD per 1K tokens as [input, output]. Models missing
// here, including local ones, cost 0.
var costPerToken = map[string][2]float64{
	"gpt-4o":                  {0.0025, 0.01},
	"gpt-4o-mini":             {0.00015, 0.0006},
	"gpt-4.1-mini":            {0.0004, 0.0016},
	"llama-3.1-8b-instant":    {0.00005, 0.00008},
	"llama-3.3-70b-versatile": {0.00059, 0.00079},

	"claude-3-5-haiku-latest":  {0.0008, 0.004},
	"claude-sonnet-4-20250514": {0.003, 0.015},
}

func CalculateCost(model string, inputTokens, outputTokens int) float64 {
	prices, ok := costPerToken[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1000.0*prices[0] + float64(outputTokens)/1000.0*prices[1]
}
