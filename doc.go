// Package gencode turns a natural-language prompt into code, runs that code in
// a restricted execution environment and reports the result back to a chat.
//
// The root package holds the contracts every component implements and the
// small set of types passed between them:
//
//   - [Provider]: generation backend (Gemini, any OpenAI-compatible API)
//   - [Runner]: restricted execution environment (see package sandbox)
//   - [Frontend]: chat channel (Telegram, WebSocket)
//   - [OutputSink]: destination for output captured while code runs
//
// Provider middleware lives here too: [WithRetry] retries transient HTTP
// errors and [WithRateLimit] enforces request and token budgets.
//
// # Quick Start
//
//	llm, err := gemini.New(ctx, apiKey, "gemini-2.5-flash")
//	if err != nil {
//		return err
//	}
//	runner := sandbox.NewInterpreter(sandbox.WithTimeout(5 * time.Second))
//	gen := generate.New(llm, runner)
//
//	err = gen.Handle(ctx, generate.Request{Prompt: "print the first 10 primes"},
//		func(ctx context.Context, text string) error {
//			fmt.Println(text)
//			return nil
//		})
package gencode
