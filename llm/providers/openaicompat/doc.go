// Package openaicompat provides the completion client used by the LLM
// gateway for every endpoint that speaks the OpenAI Chat Completions format.
//
// A single Provider may back several gateway routes (one per model). HTTP
// failures are mapped to *types.Error with a Retryable flag so the gateway's
// retry policy and circuit breakers can tell transient upstream faults from
// client errors:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName: "deepseek",
//	    APIKey:       cfg.APIKey,
//	    BaseURL:      "https://api.deepseek.com",
//	}, logger)
package openaicompat
