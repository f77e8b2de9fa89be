package backend

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Workspace maps exercise ids to their local directories.
type Workspace interface {
	// ExercisePath returns the recorded path for an exercise.
	ExercisePath(exerciseID int) (string, bool)
	// SetExercisePath records where an exercise lives.
	SetExercisePath(exerciseID int, path string) error
	// RemoveExercise drops the record for an exercise. Unknown ids are
	// not an error.
	RemoveExercise(exerciseID int) error
}

// fileWorkspace persists the index as a JSON object in a single file. The
// whole file is rewritten on every change; the index is small.
type fileWorkspace struct {
	mu      sync.Mutex
	path    string
	entries map[string]string
	loaded  bool
}

// NewFileWorkspace creates a workspace index backed by the given file.
func NewFileWorkspace(path string) Workspace {
	return &fileWorkspace{path: path, entries: make(map[string]string)}
}

func (w *fileWorkspace) load() error {
	if w.loaded {
		return nil
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			w.loaded = true
			return nil
		}
		return fmt.Errorf("reading workspace index: %w", err)
	}
	if err := json.Unmarshal(data, &w.entries); err != nil {
		return fmt.Errorf("parsing workspace index %s: %w", w.path, err)
	}
	w.loaded = true
	return nil
}

func (w *fileWorkspace) save() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0700); err != nil {
		return fmt.Errorf("creating workspace dir: %w", err)
	}
	data, err := json.Marshal(w.entries)
	if err != nil {
		return fmt.Errorf("encoding workspace index: %w", err)
	}
	if err := os.WriteFile(w.path, data, 0600); err != nil {
		return fmt.Errorf("writing workspace index: %w", err)
	}
	return nil
}

func (w *fileWorkspace) ExercisePath(exerciseID int) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.load(); err != nil {
		return "", false
	}
	p, ok := w.entries[strconv.Itoa(exerciseID)]
	return p, ok
}

func (w *fileWorkspace) SetExercisePath(exerciseID int, path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.load(); err != nil {
		return err
	}
	w.entries[strconv.Itoa(exerciseID)] = path
	return w.save()
}

func (w *fileWorkspace) RemoveExercise(exerciseID int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.load(); err != nil {
		return err
	}
	if _, ok := w.entries[strconv.Itoa(exerciseID)]; !ok {
		return nil
	}
	delete(w.entries, strconv.Itoa(exerciseID))
	return w.save()
}
