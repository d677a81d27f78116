package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for spans and metrics.
var (
	AttrLLMModel    = attribute.Key("llm.model")
	AttrLLMProvider = attribute.Key("llm.provider")
	AttrLLMTag      = attribute.Key("llm.tag")

	AttrTokensInput  = attribute.Key("llm.tokens.input")
	AttrTokensOutput = attribute.Key("llm.tokens.output")
	AttrCostUSD      = attribute.Key("llm.cost_usd")

	AttrCodeEngine    = attribute.Key("code.engine")
	AttrCodeLength    = attribute.Key("code.length")
	AttrCodeOutcome   = attribute.Key("code.outcome")
	AttrCodeOutputLen = attribute.Key("code.output_length")

	AttrRunStatus = attribute.Key("run.status")
)
