package viewer

import (
	"errors"
	"fmt"

	"github.com/TFMV/graphview/render"
)

// ErrRenderPanic wraps a panic recovered while painting a frame.
var ErrRenderPanic = errors.New("render panicked")

// RenderError is returned by RenderFrame when painting fails. The view
// state is intact; the embedding shell should offer a reload rather than
// retry on its own.
type RenderError struct {
	Mode        render.RenderMode
	Cause       error
	Recoverable bool
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("%s render failed: %v", e.Mode, e.Cause)
}

func (e *RenderError) Unwrap() error { return e.Cause }

// IsRenderError reports whether err is a RenderError and returns it.
func IsRenderError(err error) (*RenderError, bool) {
	var re *RenderError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
