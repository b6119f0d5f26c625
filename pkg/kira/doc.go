// Package kira provides a Go client for the Kira regulatory intelligence core:
// LLM generation and embeddings with per-provider retries and cross-provider
// failover, structured JSON generation and hybrid lexical/semantic ranking of
// gazette text.
//
// It is meant for request-handling code that embeds the core directly instead
// of calling the HTTP API.
//
//	client, _ := kira.New(
//	    kira.WithOpenAI(os.Getenv("OPENAI_API_KEY")),
//	    kira.WithGemini(os.Getenv("GEMINI_API_KEY")),
//	    kira.WithRetry(25*time.Second, 2, 200*time.Millisecond),
//	)
//	text, _ := client.Generate(ctx, "Summarize the notification ...")
//	fields, _ := client.GenerateStructured(ctx, "Return JSON with key \"summary\" ...")
//	chunks := client.Rank(ctx, "data retention", records)
//
// Calls fail with ErrProviderKeyMissing when the selected mode names a provider
// without credentials, and with ErrAllProvidersFailed when every provider in the
// fallback order used up its retries.
package kira
