// Package generation turns retrieved context and conversation history into a
// tutor answer.
//
// A Generator is one language model backend. Backends form a fallback chain
// (gemini, openai, ollama, mock) resolved once at startup by Resolve; the
// mock at the end answers offline by quoting the best context chunk, so the
// chain always resolves.
//
// Engine wraps the active Generator with request timeouts and the failure
// policy: a failed or timed-out call yields the canned Apology answer with
// Failed set, never an error.
//
//	gen, report, err := generation.Resolve(ctx, opts, logger)
//	engine := generation.NewEngine(gen, generation.EngineConfig{}, logger, nil)
//	answer := engine.Generate(ctx, chunks, history, "How do I use は?")
package generation
