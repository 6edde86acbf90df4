package vector

import "context"

// Store defines the capability interface for vector storage backends.
// Documents are map[string]any; domain types are converted at the
// application layer.
type Store interface {
	// Store stores a document with the given ID
	Store(ctx context.Context, id string, doc map[string]any) error

	// Get retrieves a document by ID
	Get(ctx context.Context, id string) (map[string]any, error)

	// Search searches for documents based on query
	Search(ctx context.Context, query SearchQuery) ([]map[string]any, error)

	// Delete deletes a document by ID
	Delete(ctx context.Context, id string) error

	// DeleteByQuery deletes documents matching the filters
	DeleteByQuery(ctx context.Context, filters map[string]any) (int, error)

	// Count counts documents matching the filters
	Count(ctx context.Context, filters map[string]any) (int, error)

	// Close closes the storage connection
	Close() error
}
