// Package transcribe calls the external transcription provider. It issues a
// single request per attempt; retry policy lives with the orchestrator.
package transcribe
