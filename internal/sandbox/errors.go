package sandbox

import "errors"

// Every failure of a sandboxed call wraps exactly one of these.
var (
	ErrModuleNotFound         = errors.New("plugin module not found")
	ErrCompileFailed          = errors.New("plugin compile failed")
	ErrInstantiateFailed      = errors.New("plugin instantiate failed")
	ErrMissingExport          = errors.New("plugin missing required export")
	ErrMemoryWriteOutOfBounds = errors.New("payload does not fit plugin memory")
	ErrInvokeFailed           = errors.New("plugin invoke failed")
	ErrResultOutOfBounds      = errors.New("plugin result offset out of bounds")
	ErrResultUnterminated     = errors.New("plugin result not NUL-terminated")
	ErrInvalidUTF8Result      = errors.New("plugin result is not valid UTF-8")
	ErrInvalidJSONResult      = errors.New("plugin result is not a valid record")
)

// stage names the lifecycle step a sentinel belongs to, for metrics.
func stage(err error) string {
	switch {
	case errors.Is(err, ErrModuleNotFound):
		return "discover"
	case errors.Is(err, ErrCompileFailed):
		return "compile"
	case errors.Is(err, ErrInstantiateFailed), errors.Is(err, ErrMissingExport):
		return "instantiate"
	case errors.Is(err, ErrMemoryWriteOutOfBounds):
		return "marshal_in"
	case errors.Is(err, ErrInvokeFailed):
		return "invoke"
	default:
		return "marshal_out"
	}
}
