// Package gemini provides an implementation of the generation.Generator interface
// that uses Google's Gemini API to review documents.
//
// This package is an infrastructure adapter in the hexagonal architecture,
// connecting the job orchestrator to Google's external Gemini AI service.
// It translates between generation requests and the Gemini API without
// exposing the details of the external service to the core application.
//
// Key components:
//
// 1. Generator:
//   - Implements the generation.Generator interface
//   - Sends PDF documents as inline data and text documents as text parts
//   - Streams response chunks through GenerateContentStream
//
// 2. Error Handling:
//   - Retries one-shot calls with exponential backoff for transient errors
//   - Categorizes API errors into generation sentinel errors
//   - Reports responses blocked by safety filters as ErrContentBlocked
//
// The package depends on the google.golang.org/genai client library.
package gemini
