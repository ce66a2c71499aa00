// Package transform defines the seam to the external render collaborator.
// The actual XSLT execution and print reflow run outside this backend; the
// core hands a completed pair across and passes the returned markup through
// without interpreting it.
package transform

import (
	"context"
	"errors"

	"github.com/formpair/backend/internal/models"
)

// ErrNotConfigured is returned when no render collaborator is wired in.
var ErrNotConfigured = errors.New("transform: no invoker configured")

// Invoker renders a completed pair into serialized markup.
type Invoker interface {
	Render(ctx context.Context, pair *models.FilePair) ([]byte, error)
}

// Func adapts a plain function to the Invoker interface.
type Func func(ctx context.Context, pair *models.FilePair) ([]byte, error)

// Render implements Invoker.
func (f Func) Render(ctx context.Context, pair *models.FilePair) ([]byte, error) {
	return f(ctx, pair)
}
