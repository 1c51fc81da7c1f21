package photomatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrStaleVersion is returned when a replacement document does not raise
// the stored version.
var ErrStaleVersion = errors.New("invalid version")

// LoadData reads a data document. A missing file yields an empty document
// at version 0.
func LoadData(path string) (*Data, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Data{}, nil
		}
		return nil, fmt.Errorf("reading data file: %w", err)
	}

	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parsing data file: %w", err)
	}
	return &d, nil
}

// SaveData writes a data document, creating the directory if needed.
func SaveData(path string, d *Data) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	raw, err := json.MarshalIndent(d, "", "    ")
	if err != nil {
		return fmt.Errorf("marshaling data: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("writing data file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("writing data file: %w", err)
	}
	return nil
}

// Store guards the data document and persists every change.
type Store struct {
	mu   sync.RWMutex
	path string
	data *Data
}

// OpenStore loads the document at path. An empty path keeps the document
// in memory only.
func OpenStore(path string) (*Store, error) {
	d := &Data{}
	if path != "" {
		var err error
		if d, err = LoadData(path); err != nil {
			return nil, err
		}
	}
	return &Store{path: path, data: d}, nil
}

// Path returns the backing file, or "" for an in-memory store.
func (s *Store) Path() string {
	return s.path
}

// Version returns the current document version.
func (s *Store) Version() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Metadata.Version
}

// Snapshot returns a deep copy of the document.
func (s *Store) Snapshot() (*Data, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone()
}

// Photo returns a copy of one photo.
func (s *Store) Photo(sceneID, photoID int) (Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, err := s.data.Photo(sceneID, photoID)
	if err != nil {
		return Photo{}, err
	}
	c := *p
	c.Lines = append([]Line(nil), p.Lines...)
	if p.UIData.CameraTransform != nil {
		cam := *p.UIData.CameraTransform
		c.UIData.CameraTransform = &cam
	}
	return c, nil
}

// Replace swaps in a whole document. Its version must be strictly greater
// than the stored one.
func (s *Store) Replace(d *Data) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.Metadata.Version <= s.data.Metadata.Version {
		return fmt.Errorf("%w: got %d, have %d", ErrStaleVersion, d.Metadata.Version, s.data.Metadata.Version)
	}
	next, err := d.Clone()
	if err != nil {
		return err
	}
	return s.commit(next)
}

// UpdatePhoto applies fn to a copy of the photo. When fn succeeds the
// version is raised and the document is saved; otherwise nothing changes.
func (s *Store) UpdatePhoto(sceneID, photoID int, fn func(*Photo) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.data.Clone()
	if err != nil {
		return err
	}
	p, err := next.Photo(sceneID, photoID)
	if err != nil {
		return err
	}
	if err := fn(p); err != nil {
		return err
	}
	next.Metadata.Version = s.data.Metadata.Version + 1
	return s.commit(next)
}

// SetCamera stores the camera of a photo.
func (s *Store) SetCamera(sceneID, photoID int, c CameraTransform) error {
	return s.UpdatePhoto(sceneID, photoID, func(p *Photo) error {
		p.SetCamera(c)
		return nil
	})
}

// commit must be called with mu held.
func (s *Store) commit(next *Data) error {
	if s.path != "" {
		if err := SaveData(s.path, next); err != nil {
			return err
		}
	}
	s.data = next
	return nil
}
