// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jcodagnone/fieldex/classifier"
)

// indexFile holds the Info of every model of a FileStore.
const indexFile = "index.json"

// FileStore keeps models as files of a directory.
type FileStore struct {
	root string
	mu   sync.Mutex
}

// NewFileStore returns a store rooted at root, created on first save.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

// Ensures that the root directory exists.
func (s *FileStore) rootMustExist() error {
	if err := os.MkdirAll(s.root, 0o700); err != nil {
		return fmt.Errorf("setting up artifact store: %w", err)
	}

	return nil
}

func (s *FileStore) path(version string) string {
	return filepath.Join(s.root, version+extension)
}

// Reads the index. A missing index is an empty one.
func (s *FileStore) load() (map[string]Info, error) {
	ret := make(map[string]Info)

	data, err := os.ReadFile(filepath.Join(s.root, indexFile))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading artifact index: %w", err)
		}
	} else if len(data) != 0 {
		if err = json.Unmarshal(data, &ret); err != nil {
			return nil, fmt.Errorf("failed to unmarshal artifact index: %w", err)
		}
	}

	return ret, nil
}

// writeFile replaces path atomically.
func writeFile(path string, write func(f *os.File) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}

	defer func() {
		if err != nil {
			err = errors.Join(err, os.Remove(tmp.Name()))
		}
	}()

	if err := write(tmp); err != nil {
		return errors.Join(err, tmp.Close())
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing file: %w", err)
	}

	return os.Rename(tmp.Name(), path)
}

func (s *FileStore) Save(_ context.Context, m *classifier.Model) error {
	if err := m.Validate(); err != nil {
		return err
	}

	if err := ValidateVersion(m.Version); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.rootMustExist(); err != nil {
		return err
	}

	index, err := s.load()
	if err != nil {
		return err
	}

	var size int64

	if err := writeFile(s.path(m.Version), func(f *os.File) error {
		n, err := m.WriteTo(f)
		size = n

		return err
	}); err != nil {
		return fmt.Errorf("writing model %s: %w", m.Version, err)
	}

	index[m.Version] = Info{Version: m.Version, TrainedAt: m.TrainedAt, Samples: m.Samples, Size: size}

	output, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal artifact index: %w", err)
	}

	return writeFile(filepath.Join(s.root, indexFile), func(f *os.File) error {
		_, err := f.Write(output)

		return err
	})
}

func (s *FileStore) Load(_ context.Context, version string) (*classifier.Model, error) {
	if err := ValidateVersion(version); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Clean(s.path(version)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", version, ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("opening model %s: %w", version, err)
	}
	defer f.Close()

	m, err := classifier.ReadModel(f)
	if err != nil {
		return nil, fmt.Errorf("reading model %s: %w", version, err)
	}

	return m, nil
}

func (s *FileStore) List(_ context.Context) ([]Info, error) {
	s.mu.Lock()
	index, err := s.load()
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}

	ret := make([]Info, 0, len(index))
	for _, info := range index {
		ret = append(ret, info)
	}

	sortInfos(ret)

	return ret, nil
}

func (s *FileStore) Latest(ctx context.Context) (*classifier.Model, error) {
	infos, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	if len(infos) == 0 {
		return nil, ErrNotFound
	}

	return s.Load(ctx, infos[0].Version)
}
