// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package classifier

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/jcodagnone/fieldex/features"
)

// State is the lifecycle state of an Engine.
type State int32

const (
	StateUnloaded State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Loader produces the model to load, typically from an artifact store.
type Loader func(ctx context.Context) (*Model, error)

// Engine serves predictions from the current model.
//
// Lifecycle: Unloaded -> Loading -> Ready, back to Unloaded on Unload and
// through Loading to Ready on reload. There is a single writer at a time;
// readers take a snapshot of the model pointer so a prediction started before
// a reload finishes on the model it started with. Models are never mutated.
type Engine struct {
	mu    sync.Mutex
	state atomic.Int32
	model atomic.Pointer[Model]
}

// NewEngine returns an unloaded engine.
func NewEngine() *Engine {
	return &Engine{}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Model returns the serving model, nil unless Ready.
func (e *Engine) Model() *Model {
	if e.State() != StateReady {
		return nil
	}

	return e.model.Load()
}

// Load replaces the serving model with the one returned by loader. While
// loading, predictions fail with a retryable not ready error. When loader
// fails or the model does not fit the current feature schema, the engine goes
// back to its previous state and model, and the error is returned.
func (e *Engine) Load(ctx context.Context, loader Loader) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.State()
	e.state.Store(int32(StateLoading))

	m, err := loader(ctx)
	if err == nil {
		err = m.Validate()
	}

	if err == nil {
		err = m.CheckSchema()
	}

	if err != nil {
		e.state.Store(int32(prev))

		return err
	}

	old := e.model.Swap(m)
	e.state.Store(int32(StateReady))

	if old != nil {
		log.Printf("model %s replaced by %s", old.Version, m.Version)
	} else {
		log.Printf("model %s loaded (%d labels, schema %s)", m.Version, len(m.Labels), m.SchemaVersion)
	}

	return nil
}

// Swap loads an in-memory model.
func (e *Engine) Swap(m *Model) error {
	return e.Load(context.Background(), func(context.Context) (*Model, error) {
		return m, nil
	})
}

// Unload drops the serving model.
func (e *Engine) Unload() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.Store(int32(StateUnloaded))

	if old := e.model.Swap(nil); old != nil {
		log.Printf("model %s unloaded", old.Version)
	}
}

// Snapshot returns the serving model, or a retryable not ready error. Callers
// classifying several vectors as a unit use the snapshot so a concurrent
// reload cannot mix model versions.
func (e *Engine) Snapshot() (*Model, error) {
	if s := e.State(); s != StateReady {
		return nil, newError(ErrorTypeNotReady, "model not ready (%s)", s)
	}

	m := e.model.Load()
	if m == nil {
		return nil, newError(ErrorTypeNotReady, "model not ready")
	}

	return m, nil
}

// Predict classifies vec with the serving model.
func (e *Engine) Predict(vec features.Vector) (Prediction, error) {
	m, err := e.Snapshot()
	if err != nil {
		return Prediction{}, err
	}

	return m.Predict(vec)
}
