// Package api exposes the transcription service over HTTP under /api/v1.
//
// Responses use the envelope written by server.RespondOK and
// server.RespondWithError. Request bodies are checked with validation
// struct tags before they reach the service.
package api
