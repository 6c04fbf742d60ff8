package blobstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates the requested blob does not exist.
var ErrNotFound = errors.New("blob not found")

// ErrPermissionDenied indicates a key outside the caller's namespace.
var ErrPermissionDenied = errors.New("access denied")

// Metadata describes a stored blob. Tags hold best-effort descriptive values
// recorded at upload time.
type Metadata struct {
	SizeBytes  int64             `json:"size_bytes"`
	UploadedAt time.Time         `json:"uploaded_at"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// Store is a filesystem-backed object store. Keys are hierarchical path
// strings scoped owner/<category>/<name>; blobs are written once and deleted
// once, never mutated.
type Store struct {
	root string
}

// Open creates a blob store rooted at dir.
func Open(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("blobstore: root directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create root: %w", err)
	}
	return &Store{root: dir}, nil
}

// NewAudioKey generates a fresh key for an owner's audio blob, preserving the
// original file extension when one is supplied.
func NewAudioKey(ownerID, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		ext = ".webm"
	}
	return path.Join(ownerID, "audio", uuid.NewString()+ext)
}

// KeyOwner extracts the owner segment from a blob key.
func KeyOwner(key string) string {
	cleaned := path.Clean(key)
	if idx := strings.Index(cleaned, "/"); idx > 0 {
		return cleaned[:idx]
	}
	return ""
}

// ValidateOwnerKey rejects keys that escape the owner's namespace before any
// I/O happens.
func ValidateOwnerKey(ownerID, key string) error {
	if ownerID == "" {
		return fmt.Errorf("blobstore: %w: empty owner", ErrPermissionDenied)
	}
	cleaned := path.Clean(key)
	if strings.HasPrefix(cleaned, "..") || path.IsAbs(cleaned) {
		return fmt.Errorf("blobstore: %w: malformed key", ErrPermissionDenied)
	}
	if KeyOwner(cleaned) != ownerID {
		return fmt.Errorf("blobstore: %w", ErrPermissionDenied)
	}
	return nil
}

func (s *Store) blobPath(key string) (string, error) {
	cleaned := path.Clean(key)
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || path.IsAbs(cleaned) {
		return "", fmt.Errorf("blobstore: invalid key %q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

func (s *Store) metaPath(key string) (string, error) {
	blob, err := s.blobPath(key)
	if err != nil {
		return "", err
	}
	return blob + ".meta.json", nil
}

// Upload writes a blob and its metadata sidecar.
func (s *Store) Upload(key string, data []byte, tags map[string]string) error {
	target, err := s.blobPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("blobstore: ensure directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("blobstore: write blob: %w", err)
	}

	meta := Metadata{
		SizeBytes:  int64(len(data)),
		UploadedAt: time.Now().UTC(),
		Tags:       tags,
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("blobstore: encode metadata: %w", err)
	}
	metaTarget, err := s.metaPath(key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(metaTarget, encoded, 0o644); err != nil {
		return fmt.Errorf("blobstore: write metadata: %w", err)
	}
	return nil
}

// Download returns the blob bytes for key.
func (s *Store) Download(key string) ([]byte, error) {
	target, err := s.blobPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("blobstore: %w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("blobstore: read blob: %w", err)
	}
	return data, nil
}

// Exists reports whether the blob is present.
func (s *Store) Exists(key string) (bool, error) {
	target, err := s.blobPath(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(target); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("blobstore: stat blob: %w", err)
	}
	return true, nil
}

// Stat returns blob metadata. When the sidecar is missing, size and mod time
// come from the filesystem and tags are empty.
func (s *Store) Stat(key string) (Metadata, error) {
	var meta Metadata
	target, err := s.blobPath(key)
	if err != nil {
		return meta, err
	}
	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return meta, fmt.Errorf("blobstore: %w: %s", ErrNotFound, key)
		}
		return meta, fmt.Errorf("blobstore: stat blob: %w", err)
	}

	metaTarget, err := s.metaPath(key)
	if err != nil {
		return meta, err
	}
	if encoded, readErr := os.ReadFile(metaTarget); readErr == nil {
		if json.Unmarshal(encoded, &meta) == nil && meta.SizeBytes == info.Size() {
			return meta, nil
		}
	}

	meta = Metadata{SizeBytes: info.Size(), UploadedAt: info.ModTime().UTC()}
	return meta, nil
}

// Delete removes the blob and its sidecar. Deleting a missing blob succeeds;
// blobs are deleted exactly once in the happy path and double-deletes happen
// under concurrent retries.
func (s *Store) Delete(key string) error {
	target, err := s.blobPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("blobstore: delete blob: %w", err)
	}
	metaTarget, err := s.metaPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(metaTarget); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("blobstore: delete metadata: %w", err)
	}
	return nil
}
