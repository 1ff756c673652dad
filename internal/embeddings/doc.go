// Package embeddings turns text into fixed-dimension vectors.
//
// Providers (tei, fastembed, ollama, gemini, mock) share the Provider
// interface. Resolve builds the configured chain and returns the first
// provider that constructs and answers its Available check; the mock is
// always available and reports IsMock.
//
// E5-family models are asymmetric: queries are embedded with a "query: "
// prefix and documents with "passage: ". Providers that talk to a raw model
// apply the prefixes themselves.
package embeddings
