// Package persistence adapts durable key-value stores to the engine. The
// engine reads the workflows and operations collections at startup and
// rewrites them after every committed mutation.
package persistence

import (
	"context"
	"fmt"

	"github.com/petrijr/flowgate/pkg/api"
)

// Persistence gives the engine typed access to a Store.
type Persistence struct {
	Store Store
}

// New wraps store. A nil store yields an in-memory store.
func New(store Store) Persistence {
	if store == nil {
		store = NewInMemoryStore()
	}
	return Persistence{Store: store}
}

// LoadWorkflows reads the workflows collection. A never-written collection
// yields no workflows and no error.
func (p Persistence) LoadWorkflows(ctx context.Context) ([]*api.WorkflowState, error) {
	payload, err := p.Store.ReadCollection(ctx, CollectionWorkflows)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", CollectionWorkflows, err)
	}
	return DecodeRecords[*api.WorkflowState](payload)
}

// SaveWorkflows replaces the workflows collection.
func (p Persistence) SaveWorkflows(ctx context.Context, wfs []*api.WorkflowState) error {
	payload, err := EncodeRecords(wfs)
	if err != nil {
		return fmt.Errorf("encode %s: %w", CollectionWorkflows, err)
	}
	if err := p.Store.WriteCollection(ctx, CollectionWorkflows, payload); err != nil {
		return fmt.Errorf("write %s: %w", CollectionWorkflows, err)
	}
	return nil
}

// LoadOperations reads the operations collection.
func (p Persistence) LoadOperations(ctx context.Context) ([]*api.AtomicOperation, error) {
	payload, err := p.Store.ReadCollection(ctx, CollectionOperations)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", CollectionOperations, err)
	}
	return DecodeRecords[*api.AtomicOperation](payload)
}

// SaveOperations replaces the operations collection.
func (p Persistence) SaveOperations(ctx context.Context, ops []*api.AtomicOperation) error {
	payload, err := EncodeRecords(ops)
	if err != nil {
		return fmt.Errorf("encode %s: %w", CollectionOperations, err)
	}
	if err := p.Store.WriteCollection(ctx, CollectionOperations, payload); err != nil {
		return fmt.Errorf("write %s: %w", CollectionOperations, err)
	}
	return nil
}
