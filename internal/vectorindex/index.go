// Package vectorindex abstracts the external vector database. The
// embedding backend itself is not implemented yet; the only live
// operation is best-effort deletion of points whose chunks are being
// invalidated, so stale vectors do not accumulate once embeddings land.
package vectorindex

import (
	"context"
)

// Index is the narrow contract the chunk lifecycle depends on.
type Index interface {
	// DeletePoints removes the given vector ids. Failures must not
	// block local chunk deletion; callers record them for operator
	// visibility instead.
	DeletePoints(ctx context.Context, ids []string) error
}

// Noop is the default Index while no vector backend is configured.
type Noop struct{}

func (Noop) DeletePoints(context.Context, []string) error { return nil }
