// Package logging provides structured, rotating file logging for the
// fault-case retrieval core. Retrievers, the fusion engine, and the LLM
// picker log structured fields via slog rather than fmt.Printf so
// retriever failures, gray-zone routing decisions, and LLM degradations
// stay machine-parseable.
package logging
