// Package mock provides scripted collaborators for testing.
package mock

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/videogen/orchestrator/internal/collaborator"
	"github.com/videogen/orchestrator/pkg/models"
)

// Collaborator satisfies models.Collaborator for testing and records every
// input it receives.
type Collaborator struct {
	Name_      string
	InvokeFunc func(ctx context.Context, input models.StageInput) (*models.StageResult, error)

	mu    sync.Mutex
	calls []models.StageInput
}

func (m *Collaborator) Name() string { return m.Name_ }

func (m *Collaborator) Invoke(ctx context.Context, input models.StageInput) (*models.StageResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, input)
	m.mu.Unlock()

	if m.InvokeFunc != nil {
		return m.InvokeFunc(ctx, input)
	}
	return &models.StageResult{Data: json.RawMessage(`{}`)}, nil
}

// Calls returns a copy of all recorded inputs in invocation order.
func (m *Collaborator) Calls() []models.StageInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.StageInput, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Invoke calls observed.
func (m *Collaborator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// NewStatic returns a collaborator that always succeeds with the given JSON
// payload.
func NewStatic(name string, data string) *Collaborator {
	return &Collaborator{
		Name_: name,
		InvokeFunc: func(_ context.Context, _ models.StageInput) (*models.StageResult, error) {
			return &models.StageResult{Data: json.RawMessage(data)}, nil
		},
	}
}

// NewArtifact returns a collaborator that succeeds with a payload and an
// artifact reference, as the composition stage does.
func NewArtifact(name, data, artifact string) *Collaborator {
	return &Collaborator{
		Name_: name,
		InvokeFunc: func(_ context.Context, _ models.StageInput) (*models.StageResult, error) {
			ref := artifact
			return &models.StageResult{Data: json.RawMessage(data), Artifact: &ref}, nil
		},
	}
}

// NewFailing returns a collaborator that always returns the given error.
func NewFailing(name string, err error) *Collaborator {
	return &Collaborator{
		Name_: name,
		InvokeFunc: func(_ context.Context, _ models.StageInput) (*models.StageResult, error) {
			return nil, err
		},
	}
}

// NewTimeout returns a collaborator that blocks until its context is
// cancelled, then reports a retryable timeout.
func NewTimeout(name string) *Collaborator {
	return &Collaborator{
		Name_: name,
		InvokeFunc: func(ctx context.Context, _ models.StageInput) (*models.StageResult, error) {
			<-ctx.Done()
			return nil, collaborator.NewRetryable(collaborator.ReasonTimeout, ctx.Err())
		},
	}
}

// NewFlaky returns a collaborator that fails with err for the first failures
// attempts and then succeeds with the given payload.
func NewFlaky(name string, failures int, err error, data string) *Collaborator {
	var attempts int
	var mu sync.Mutex
	return &Collaborator{
		Name_: name,
		InvokeFunc: func(_ context.Context, _ models.StageInput) (*models.StageResult, error) {
			mu.Lock()
			attempts++
			n := attempts
			mu.Unlock()
			if n <= failures {
				return nil, err
			}
			return &models.StageResult{Data: json.RawMessage(data)}, nil
		},
	}
}

// Compile-time check that Collaborator implements the contract.
var _ models.Collaborator = (*Collaborator)(nil)
