package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	KindPublic  = "public"
	KindPrivate = "private"
)

// FileStorage writes PEM pairs to disk and tracks them for cleanup.
type FileStorage struct {
	basePath string
	mu       sync.RWMutex
	files    map[string]*FileKeyInfo
}

type FileKeyInfo struct {
	ID           string    `json:"id"`
	PublicPath   string    `json:"public_path"`
	PrivatePath  string    `json:"private_path"`
	Size         int64     `json:"size"`
	PublicHash   string    `json:"public_hash"`
	PrivateHash  string    `json:"private_hash"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	JobID        string    `json:"job_id,omitempty"`
}

func NewFileStorage(basePath string) (*FileStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	for _, dir := range []string{"keys", "temp"} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0755); err != nil {
			return nil, err
		}
	}

	return &FileStorage{
		basePath: basePath,
		files:    make(map[string]*FileKeyInfo),
	}, nil
}

// KeyPath returns where the given half of a key pair is stored.
func (fs *FileStorage) KeyPath(keyID, kind string) string {
	return filepath.Join(fs.basePath, "keys", fmt.Sprintf("%s_%s.pem", keyID, kind))
}

// StreamingKeyWriter writes to a temp file and moves it into place on Close.
type StreamingKeyWriter struct {
	file      *os.File
	hash      hash.Hash
	size      int64
	tempPath  string
	finalPath string
}

func (fs *FileStorage) CreateStreamingWriter(keyID, kind string) (*StreamingKeyWriter, error) {
	tempPath := filepath.Join(fs.basePath, "temp", fmt.Sprintf("%s_%s.tmp", keyID, kind))

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	return &StreamingKeyWriter{
		file:      file,
		hash:      sha256.New(),
		tempPath:  tempPath,
		finalPath: fs.KeyPath(keyID, kind),
	}, nil
}

func (w *StreamingKeyWriter) Write(p []byte) (n int, err error) {
	n, err = w.file.Write(p)
	if err != nil {
		return n, err
	}

	w.hash.Write(p[:n])
	w.size += int64(n)
	return n, nil
}

func (w *StreamingKeyWriter) Close() error {
	if err := w.file.Close(); err != nil {
		os.Remove(w.tempPath)
		return err
	}

	if err := os.Rename(w.tempPath, w.finalPath); err != nil {
		os.Remove(w.tempPath)
		return fmt.Errorf("failed to move key file: %w", err)
	}
	return nil
}

// Sum returns the hex SHA-256 of everything written.
func (w *StreamingKeyWriter) Sum() string {
	return hex.EncodeToString(w.hash.Sum(nil))
}

// SavePair writes both PEM blocks of key and marks it as file stored. On
// failure no file of the pair is left behind.
func (fs *FileStorage) SavePair(key *StoredKey) (_ *FileKeyInfo, err error) {
	info := &FileKeyInfo{
		ID:        key.ID,
		JobID:     key.JobID,
		CreatedAt: time.Now(),
	}
	defer func() {
		if err != nil && info.PublicPath != "" {
			os.Remove(info.PublicPath)
		}
	}()

	for _, half := range []struct {
		kind string
		pem  string
		path *string
		sum  *string
	}{
		{KindPublic, key.PublicKey, &info.PublicPath, &info.PublicHash},
		{KindPrivate, key.PrivateKey, &info.PrivatePath, &info.PrivateHash},
	} {
		w, err := fs.CreateStreamingWriter(key.ID, half.kind)
		if err != nil {
			return nil, err
		}
		if _, err = io.WriteString(w, half.pem+"\n"); err != nil {
			w.Close()
			os.Remove(w.finalPath)
			return nil, fmt.Errorf("failed to write %s key: %w", half.kind, err)
		}
		if err = w.Close(); err != nil {
			return nil, err
		}
		*half.path = w.finalPath
		*half.sum = w.Sum()
		info.Size += w.size
	}
	info.LastAccessed = info.CreatedAt

	fs.mu.Lock()
	fs.files[key.ID] = info
	fs.mu.Unlock()

	key.FileStored = true
	key.FilePath = info.PrivatePath
	return info, nil
}

// Info returns tracking data for a stored pair.
func (fs *FileStorage) Info(keyID string) (*FileKeyInfo, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	info, ok := fs.files[keyID]
	return info, ok
}

// Remove deletes both files of a pair.
func (fs *FileStorage) Remove(keyID string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if info, ok := fs.files[keyID]; ok {
		os.Remove(info.PublicPath)
		os.Remove(info.PrivatePath)
		delete(fs.files, keyID)
	}
}

// CleanupOldFiles removes pairs not accessed within olderThan.
func (fs *FileStorage) CleanupOldFiles(olderThan time.Duration) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for id, info := range fs.files {
		if info.LastAccessed.Before(cutoff) {
			os.Remove(info.PublicPath)
			os.Remove(info.PrivatePath)
			delete(fs.files, id)
			removed++
		}
	}

	log.Printf("Cleaned up %d old key pairs", removed)
	return removed
}

// GetReader opens one half of a stored pair.
func (fs *FileStorage) GetReader(keyID, kind string) (io.ReadCloser, error) {
	fs.mu.Lock()
	info, exists := fs.files[keyID]
	if exists {
		info.LastAccessed = time.Now()
	}
	fs.mu.Unlock()

	if !exists {
		return nil, fmt.Errorf("%w: no files for %s", ErrKeyNotFound, keyID)
	}

	switch kind {
	case KindPublic:
		return os.Open(info.PublicPath)
	case KindPrivate:
		return os.Open(info.PrivatePath)
	default:
		return nil, fmt.Errorf("unknown key kind: %s", kind)
	}
}

func (fs *FileStorage) GetStats() map[string]interface{} {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var totalSize int64
	for _, info := range fs.files {
		totalSize += info.Size
	}

	return map[string]interface{}{
		"total_pairs": len(fs.files),
		"total_size":  totalSize,
		"base_path":   fs.basePath,
	}
}

// StartCleanupRoutine runs CleanupOldFiles every interval until stop is
// closed.
func (fs *FileStorage) StartCleanupRoutine(interval, maxAge time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				fs.CleanupOldFiles(maxAge)
			case <-stop:
				return
			}
		}
	}()
}
