// Package generation provides the boundary between the job orchestrator and
// external generative-model services. A Generator runs one review either in
// one-shot mode or in streaming mode, reporting each chunk through an
// EmitFunc. The package also holds the operation-mode catalog, system prompt
// loading and token estimation shared by all providers (Bedrock, Gemini,
// OpenAI).
package generation
