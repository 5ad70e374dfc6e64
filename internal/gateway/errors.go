package gateway

import "errors"

var (
	// ErrUnavailable means the engine could not be loaded, usually because
	// the models are still downloading.
	ErrUnavailable = errors.New("model is not yet available")
	// ErrNoFile means a conversion was requested without an upload.
	ErrNoFile = errors.New("no file provided")
	// ErrDraining means the gateway is shutting down.
	ErrDraining = errors.New("gateway is draining")
)

// ConversionError wraps a failure inside the conversion sequence.
type ConversionError struct {
	Err error
}

func (e *ConversionError) Error() string {
	return "Document conversion failed: " + e.Err.Error()
}

func (e *ConversionError) Unwrap() error { return e.Err }

// Detail returns the client-facing message for err.
func Detail(err error) string {
	var ce *ConversionError
	switch {
	case errors.Is(err, ErrUnavailable):
		return "Model is not yet available. Please wait for download to complete."
	case errors.Is(err, ErrNoFile):
		return "A file must be provided for conversion."
	case errors.Is(err, ErrDraining):
		return "Service is shutting down. Please retry on another instance."
	case errors.As(err, &ce):
		return ce.Error()
	default:
		return err.Error()
	}
}
