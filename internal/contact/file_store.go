package contact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var ErrMessageNotFound = errors.New("contact message not found")

// FileStore keeps the whole collection in memory and rewrites a single
// pretty-printed JSON array file on every mutation. All writers are
// serialized behind the store mutex, so concurrent creates cannot lose
// records the way a read-modify-write cycle against the raw file would.
type FileStore struct {
	path   string
	strict bool

	mutex    sync.RWMutex
	messages []Message
	lastID   int64

	// injectable for tests
	NowFunc func() time.Time
}

// NewFileStore loads the collection from the given JSON file. A missing file
// is always an empty collection. A corrupt file is an error when
// strictReadErrors is set, and an empty collection (with a logged error)
// otherwise.
func NewFileStore(path string, strictReadErrors bool) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("messages file path cannot be empty")
	}

	fs := &FileStore{
		path:    path,
		strict:  strictReadErrors,
		NowFunc: time.Now,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create messages dir: %w", err)
	}

	messagesJson, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debugf("messages file [%s] does not exist yet, starting empty", path)
			return fs, nil
		}
		if strictReadErrors {
			return nil, fmt.Errorf("read messages file: %w", err)
		}
		log.Errorf("read messages file [%s], starting empty: %s", path, err)
		return fs, nil
	}

	if err := json.Unmarshal(messagesJson, &fs.messages); err != nil {
		if strictReadErrors {
			return nil, fmt.Errorf("unmarshal messages file: %w", err)
		}
		log.Errorf("messages file [%s] corrupt, starting empty: %s", path, err)
		fs.messages = nil
		return fs, nil
	}

	for _, m := range fs.messages {
		if id, err := strconv.ParseInt(m.ID, 10, 64); err == nil && id > fs.lastID {
			fs.lastID = id
		}
	}

	return fs, nil
}

// newIDLocked derives the id from the current time; a bump past the last
// issued id keeps ids unique and monotonic even for creates within the
// same millisecond.
func (fs *FileStore) newIDLocked() string {
	id := fs.NowFunc().UnixMilli()
	if id <= fs.lastID {
		id = fs.lastID + 1
	}
	fs.lastID = id
	return strconv.FormatInt(id, 10)
}

func (fs *FileStore) Add(_ context.Context, message *Message) (*Message, error) {
	if message == nil {
		return nil, errors.New("message is nil")
	}

	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	stored := *message
	stored.ID = fs.newIDLocked()
	stored.Fecha = fs.NowFunc().UTC()
	stored.Leido = false

	fs.messages = append(fs.messages, stored)
	if err := fs.persistLocked(); err != nil {
		fs.messages = fs.messages[:len(fs.messages)-1]
		return nil, err
	}

	return &stored, nil
}

func (fs *FileStore) List(_ context.Context) ([]Message, error) {
	fs.mutex.RLock()
	defer fs.mutex.RUnlock()

	messages := make([]Message, len(fs.messages))
	copy(messages, fs.messages)
	return messages, nil
}

func (fs *FileStore) Update(_ context.Context, id string, patch Patch) (*Message, error) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	for i := range fs.messages {
		if fs.messages[i].ID != id {
			continue
		}

		previous := fs.messages[i]
		patch.apply(&fs.messages[i])
		// id and fecha are immutable after creation
		fs.messages[i].ID = previous.ID
		fs.messages[i].Fecha = previous.Fecha

		if err := fs.persistLocked(); err != nil {
			fs.messages[i] = previous
			return nil, err
		}

		updated := fs.messages[i]
		return &updated, nil
	}

	return nil, ErrMessageNotFound
}

func (fs *FileStore) Delete(_ context.Context, id string) error {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	for i := range fs.messages {
		if fs.messages[i].ID != id {
			continue
		}

		previous := fs.messages
		fs.messages = append(fs.messages[:i:i], fs.messages[i+1:]...)
		if err := fs.persistLocked(); err != nil {
			fs.messages = previous
			return err
		}
		return nil
	}

	// unknown id, nothing to do
	return nil
}

func (fs *FileStore) Count(_ context.Context) (int, error) {
	fs.mutex.RLock()
	defer fs.mutex.RUnlock()
	return len(fs.messages), nil
}

// persistLocked rewrites the backing file; write to a temp file then rename,
// so a crash mid-write never leaves a truncated collection behind.
func (fs *FileStore) persistLocked() error {
	messages := fs.messages
	if messages == nil {
		messages = []Message{}
	}

	messagesJson, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}

	tmpPath := fs.path + ".tmp"
	if err := os.WriteFile(tmpPath, messagesJson, 0o644); err != nil {
		return fmt.Errorf("write messages file: %w", err)
	}
	if err := os.Rename(tmpPath, fs.path); err != nil {
		return fmt.Errorf("replace messages file: %w", err)
	}

	return nil
}
