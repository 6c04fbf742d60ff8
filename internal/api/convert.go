package api

import "parley/internal/deadletter"

// FromEntry converts a stored entry to its wire form. The owner ID never
// leaves the server; callers only ever see their own entries.
func FromEntry(entry *deadletter.Entry) DeadLetter {
	return DeadLetter{
		ID:                   entry.ID,
		AudioFileName:        entry.AudioFileName,
		FileSizeBytes:        entry.FileSizeBytes,
		AudioDurationSeconds: entry.AudioDurationSeconds,
		ErrorKind:            string(entry.ErrorKind),
		ErrorMessage:         entry.ErrorMessage,
		RecordedAt:           entry.RecordedAt,
		FailedAt:             entry.FailedAt,
		RetryCount:           entry.RetryCount,
		LastRetryAt:          entry.LastRetryAt,
	}
}

// FromEntries converts a slice of stored entries.
func FromEntries(entries []*deadletter.Entry) []DeadLetter {
	out := make([]DeadLetter, 0, len(entries))
	for _, entry := range entries {
		out = append(out, FromEntry(entry))
	}
	return out
}
