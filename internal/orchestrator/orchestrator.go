package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"parley/internal/blobstore"
	"parley/internal/classify"
	"parley/internal/deadletter"
	"parley/internal/logging"
	"parley/internal/notifications"
)

// Transcriber is the provider call the orchestrator wraps. Satisfied by
// *transcribe.Worker.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, modelID, mimeType string) (string, error)
	DefaultModel() string
}

// Request describes one transcription attempt. Exactly one of AudioBytes or
// AudioKey must be set: bytes take the ephemeral path with no preservation,
// a key takes the durable path where failures create a dead-letter entry.
type Request struct {
	AudioBytes      []byte
	AudioKey        string
	Model           string
	MimeType        string
	FileName        string
	DurationSeconds float64
	RecordedAt      time.Time
}

// Orchestrator runs the retry and preservation state machine around the
// transcription worker.
type Orchestrator struct {
	store    *deadletter.Store
	blobs    *blobstore.Store
	worker   Transcriber
	notifier notifications.Service
	logger   *slog.Logger
}

// New wires the orchestrator. A nil notifier or logger degrades to no-ops.
func New(store *deadletter.Store, blobs *blobstore.Store, worker Transcriber, notifier notifications.Service, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		store:    store,
		blobs:    blobs,
		worker:   worker,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "orchestrator"),
	}
}

// SaveAudio uploads audio under a fresh owner-scoped key so a later
// transcription attempt can take the durable path. Duration and recording
// time travel as blob tags for best-effort recovery at preservation time.
func (o *Orchestrator) SaveAudio(ownerID, fileName string, data []byte, durationSeconds float64, recordedAt time.Time) (string, error) {
	if len(data) == 0 {
		return "", errors.New("save audio: empty payload")
	}
	key := blobstore.NewAudioKey(ownerID, fileName)
	tags := map[string]string{}
	if fileName != "" {
		tags["file_name"] = fileName
	}
	if durationSeconds > 0 {
		tags["duration_seconds"] = strconv.FormatFloat(durationSeconds, 'f', -1, 64)
	}
	if !recordedAt.IsZero() {
		tags["recorded_at"] = recordedAt.UTC().Format(time.RFC3339Nano)
	}
	if err := o.blobs.Upload(key, data, tags); err != nil {
		return "", fmt.Errorf("save audio: %w", err)
	}
	return key, nil
}

// Transcribe runs a first transcription attempt. On the durable path a
// failure preserves the audio as a dead-letter entry and the returned error
// is a *PreservedError carrying the new entry's ID.
func (o *Orchestrator) Transcribe(ctx context.Context, ownerID string, req Request) (string, error) {
	durable := req.AudioKey != ""
	audio := req.AudioBytes

	if durable {
		if err := blobstore.ValidateOwnerKey(ownerID, req.AudioKey); err != nil {
			return "", err
		}
		data, err := o.blobs.Download(req.AudioKey)
		if err != nil {
			return "", fmt.Errorf("fetch audio: %w", err)
		}
		audio = data
	}

	text, err := o.worker.Transcribe(ctx, audio, req.Model, req.MimeType)
	if err == nil {
		if durable {
			o.deleteBlobBestEffort(req.AudioKey)
		}
		return text, nil
	}

	if !durable {
		// Ephemeral path: preservation only applies to stored audio.
		return "", err
	}

	entry := o.preserve(ctx, ownerID, req, err)
	if entry == nil {
		return "", err
	}
	return "", &PreservedError{EntryID: entry.ID, Kind: entry.ErrorKind, Err: err}
}

// Retry re-runs transcription for a preserved entry. The model is the
// owner's current profile default, not whatever was in use when the entry
// was created.
func (o *Orchestrator) Retry(ctx context.Context, ownerID, entryID string) (string, error) {
	entry, err := o.store.Get(ctx, ownerID, entryID)
	if err != nil {
		return "", err
	}

	audio, err := o.blobs.Download(entry.AudioKey)
	if errors.Is(err, blobstore.ErrNotFound) {
		// The blob is gone but the entry survived; drop the orphan.
		if _, delErr := o.store.Delete(ctx, ownerID, entryID); delErr != nil {
			o.logger.Warn("delete orphaned entry", logging.String("entry_id", entryID), logging.Error(delErr))
		}
		return "", fmt.Errorf("%w: audio may have been deleted", deadletter.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("fetch audio: %w", err)
	}

	model, err := o.store.OwnerDefaultModel(ctx, ownerID)
	if err != nil {
		o.logger.Warn("owner default model lookup", logging.String("owner_id", ownerID), logging.Error(err))
		model = ""
	}
	if model == "" {
		model = o.worker.DefaultModel()
	}

	text, workErr := o.worker.Transcribe(ctx, audio, model, mimeTypeForKey(entry.AudioKey))
	if workErr == nil {
		o.deleteBlobBestEffort(entry.AudioKey)
		if _, err := o.store.Delete(ctx, ownerID, entryID); err != nil {
			o.logger.Warn("delete entry after successful retry", logging.String("entry_id", entryID), logging.Error(err))
		}
		o.notifyRetrySucceeded(ctx, entry)
		return text, nil
	}

	kind := classify.Classify(workErr)
	updateErr := o.store.UpdateOnRetryFailure(ctx, entryID, kind, workErr.Error(), time.Now().UTC(), entry.Version)
	switch {
	case updateErr == nil:
	case errors.Is(updateErr, deadletter.ErrStaleEntry):
		// A concurrent retry recorded its failure first; its update stands.
		o.logger.Info("retry metadata update lost race", logging.String("entry_id", entryID))
	case errors.Is(updateErr, deadletter.ErrNotFound):
		// A concurrent retry succeeded and removed the entry.
		o.logger.Info("entry removed during retry", logging.String("entry_id", entryID))
	default:
		o.logger.Error("record retry failure", logging.String("entry_id", entryID), logging.Error(updateErr))
	}
	return "", workErr
}

// DeleteEntry removes one entry and its audio blob. Reports whether an entry
// was actually removed; a missing entry is success.
func (o *Orchestrator) DeleteEntry(ctx context.Context, ownerID, entryID string) (bool, error) {
	entry, err := o.store.Get(ctx, ownerID, entryID)
	if errors.Is(err, deadletter.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	o.deleteBlobBestEffort(entry.AudioKey)
	return o.store.Delete(ctx, ownerID, entryID)
}

// DeleteAllEntries removes every entry for an owner along with the audio
// blobs, returning the number of entries deleted.
func (o *Orchestrator) DeleteAllEntries(ctx context.Context, ownerID string) (int64, error) {
	entries, err := o.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		o.deleteBlobBestEffort(entry.AudioKey)
	}
	return o.store.DeleteAll(ctx, ownerID)
}

// preserve creates the dead-letter entry for a failed durable attempt.
// Returns nil when the entry itself cannot be written; the original worker
// error still reaches the caller in that case.
func (o *Orchestrator) preserve(ctx context.Context, ownerID string, req Request, workErr error) *deadletter.Entry {
	kind := classify.Classify(workErr)
	entry := &deadletter.Entry{
		OwnerID:              ownerID,
		AudioKey:             req.AudioKey,
		AudioFileName:        req.FileName,
		FileSizeBytes:        int64(len(req.AudioBytes)),
		AudioDurationSeconds: req.DurationSeconds,
		ErrorKind:            kind,
		ErrorMessage:         workErr.Error(),
		RecordedAt:           req.RecordedAt,
	}
	o.fillFromBlobMetadata(entry)

	if err := o.store.Create(ctx, entry); err != nil {
		o.logger.Error("preserve failed transcription",
			logging.String("owner_id", ownerID),
			logging.String("audio_key", req.AudioKey),
			logging.Error(err))
		return nil
	}

	o.logger.Info("transcription preserved",
		logging.String("entry_id", entry.ID),
		logging.String("error_kind", string(kind)))
	if o.notifier != nil {
		if err := o.notifier.NotifyTranscriptionPreserved(ctx, entry.AudioFileName, string(kind)); err != nil {
			o.logger.Warn("preservation notification", logging.Error(err))
		}
	}
	return entry
}

// fillFromBlobMetadata backfills descriptive fields the caller did not
// supply. Lookup failures are ignored; the fields are best-effort.
func (o *Orchestrator) fillFromBlobMetadata(entry *deadletter.Entry) {
	meta, err := o.blobs.Stat(entry.AudioKey)
	if err != nil {
		return
	}
	if entry.FileSizeBytes == 0 {
		entry.FileSizeBytes = meta.SizeBytes
	}
	if entry.AudioFileName == "" {
		entry.AudioFileName = meta.Tags["file_name"]
	}
	if entry.AudioDurationSeconds == 0 {
		if parsed, err := strconv.ParseFloat(meta.Tags["duration_seconds"], 64); err == nil {
			entry.AudioDurationSeconds = parsed
		}
	}
	if entry.RecordedAt.IsZero() {
		if parsed, err := time.Parse(time.RFC3339Nano, meta.Tags["recorded_at"]); err == nil {
			entry.RecordedAt = parsed
		}
	}
}

func (o *Orchestrator) deleteBlobBestEffort(key string) {
	if err := o.blobs.Delete(key); err != nil {
		o.logger.Warn("delete audio blob", logging.String("audio_key", key), logging.Error(err))
	}
}

func (o *Orchestrator) notifyRetrySucceeded(ctx context.Context, entry *deadletter.Entry) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.NotifyRetrySucceeded(ctx, entry.AudioFileName, entry.RetryCount+1); err != nil {
		o.logger.Warn("retry notification", logging.Error(err))
	}
}

func mimeTypeForKey(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	default:
		return "audio/webm"
	}
}
