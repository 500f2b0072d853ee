package llm

// New builds a Picker from an LLM config block. An empty APIBase disables
// the picker entirely — callers should treat a nil Picker as "no LLM stage"
// and skip straight to the base router decision.
func New(apiBase, apiKey, model string) Picker {
	if apiBase == "" {
		return nil
	}
	return NewOpenAIPicker(Config{
		APIBase: apiBase,
		APIKey:  apiKey,
		Model:   model,
	})
}
