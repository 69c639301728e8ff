package persistence

import "context"

// Collection names a logical record set.
type Collection string

const (
	CollectionWorkflows  Collection = "workflows"
	CollectionOperations Collection = "operations"
)

// Store is the durable key-value collaborator. Each collection is stored as
// one encoded payload that is read and written as a whole.
type Store interface {
	// ReadCollection returns the last written payload, or nil when the
	// collection was never written.
	ReadCollection(ctx context.Context, c Collection) ([]byte, error)

	// WriteCollection replaces the payload of a collection.
	WriteCollection(ctx context.Context, c Collection, payload []byte) error
}
