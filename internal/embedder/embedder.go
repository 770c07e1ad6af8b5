// Package embedder provides the external embedding collaborator contract
// and its Ollama-backed implementation.
package embedder

import (
	"context"
	"errors"
)

// ErrNoEmbedder is returned when indexing requires embeddings but no client
// is configured. Callers must fail fast instead of substituting a client
// that always errors.
var ErrNoEmbedder = errors.New("no embedding client configured")

// Embedder turns texts into vectors. Implementations must preserve input
// order: output vector i corresponds to input text i.
type Embedder interface {
	// Embed returns one vector per input text plus the tokens consumed.
	Embed(ctx context.Context, texts []string) ([][]float32, int, error)
	// Dimension returns the vector size the model produces.
	Dimension() int
	// Model returns the configured model name.
	Model() string
}
