package registration

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

var ErrRegistrantNotFound = errors.New("registrant not found")

// FileStore persists all registrants (both tipos) in one JSON array file,
// with the same serialization guarantees as the contact message store.
type FileStore struct {
	path   string
	strict bool

	mutex       sync.RWMutex
	registrants []Registrant
	lastID      int64

	NowFunc func() time.Time
}

func NewFileStore(path string, strictReadErrors bool) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("registrants file path cannot be empty")
	}

	fs := &FileStore{
		path:    path,
		strict:  strictReadErrors,
		NowFunc: time.Now,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create registrants dir: %w", err)
	}

	registrantsJson, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fs, nil
		}
		if strictReadErrors {
			return nil, fmt.Errorf("read registrants file: %w", err)
		}
		log.Errorf("read registrants file [%s], starting empty: %s", path, err)
		return fs, nil
	}

	if err := json.Unmarshal(registrantsJson, &fs.registrants); err != nil {
		if strictReadErrors {
			return nil, fmt.Errorf("unmarshal registrants file: %w", err)
		}
		log.Errorf("registrants file [%s] corrupt, starting empty: %s", path, err)
		fs.registrants = nil
		return fs, nil
	}

	for _, r := range fs.registrants {
		if id, err := strconv.ParseInt(r.ID, 10, 64); err == nil && id > fs.lastID {
			fs.lastID = id
		}
	}

	return fs, nil
}

func (fs *FileStore) newIDLocked() string {
	id := fs.NowFunc().UnixMilli()
	if id <= fs.lastID {
		id = fs.lastID + 1
	}
	fs.lastID = id
	return strconv.FormatInt(id, 10)
}

func (fs *FileStore) Add(_ context.Context, registrant *Registrant) (*Registrant, error) {
	if registrant == nil {
		return nil, errors.New("registrant is nil")
	}
	if !ValidTipo(registrant.Tipo) {
		return nil, fmt.Errorf("invalid registrant tipo: %s", registrant.Tipo)
	}

	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	stored := *registrant
	stored.ID = fs.newIDLocked()
	stored.FechaRegistro = fs.NowFunc().UTC()
	stored.Estado = EstadoPendiente

	fs.registrants = append(fs.registrants, stored)
	if err := fs.persistLocked(); err != nil {
		fs.registrants = fs.registrants[:len(fs.registrants)-1]
		return nil, err
	}

	return &stored, nil
}

// List returns registrants of the given tipo, in registration order.
func (fs *FileStore) List(_ context.Context, tipo string) ([]Registrant, error) {
	if !ValidTipo(tipo) {
		return nil, fmt.Errorf("invalid registrant tipo: %s", tipo)
	}

	fs.mutex.RLock()
	defer fs.mutex.RUnlock()

	var registrants []Registrant
	for _, r := range fs.registrants {
		if r.Tipo == tipo {
			registrants = append(registrants, r)
		}
	}
	return registrants, nil
}

// SetEstado marks a registration as accepted or rejected.
func (fs *FileStore) SetEstado(_ context.Context, tipo, id, estado string) (*Registrant, error) {
	if estado != EstadoAceptado && estado != EstadoRechazado {
		return nil, fmt.Errorf("invalid estado: %s", estado)
	}

	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	for i := range fs.registrants {
		if fs.registrants[i].ID != id || fs.registrants[i].Tipo != tipo {
			continue
		}

		previous := fs.registrants[i].Estado
		fs.registrants[i].Estado = estado
		if err := fs.persistLocked(); err != nil {
			fs.registrants[i].Estado = previous
			return nil, err
		}

		updated := fs.registrants[i]
		return &updated, nil
	}

	return nil, ErrRegistrantNotFound
}

func (fs *FileStore) Delete(_ context.Context, tipo, id string) error {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	for i := range fs.registrants {
		if fs.registrants[i].ID != id || fs.registrants[i].Tipo != tipo {
			continue
		}

		previous := fs.registrants
		fs.registrants = append(fs.registrants[:i:i], fs.registrants[i+1:]...)
		if err := fs.persistLocked(); err != nil {
			fs.registrants = previous
			return err
		}
		return nil
	}

	return nil
}

// Counts returns the dashboard totals, per tipo.
func (fs *FileStore) Counts(_ context.Context) (tatuadores, jurados int, err error) {
	fs.mutex.RLock()
	defer fs.mutex.RUnlock()

	for _, r := range fs.registrants {
		switch r.Tipo {
		case TipoTatuador:
			tatuadores++
		case TipoJurado:
			jurados++
		}
	}
	return tatuadores, jurados, nil
}

func (fs *FileStore) persistLocked() error {
	registrants := fs.registrants
	if registrants == nil {
		registrants = []Registrant{}
	}

	registrantsJson, err := json.MarshalIndent(registrants, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registrants: %w", err)
	}

	tmpPath := fs.path + ".tmp"
	if err := os.WriteFile(tmpPath, registrantsJson, 0o644); err != nil {
		return fmt.Errorf("write registrants file: %w", err)
	}
	if err := os.Rename(tmpPath, fs.path); err != nil {
		return fmt.Errorf("replace registrants file: %w", err)
	}

	return nil
}
