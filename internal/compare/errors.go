package compare

import "fmt"

// IOError reports a source that could not be read or an output location
// that could not be written.
type IOError struct {
	Location string
	Err      error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io failure on %s: %s", e.Location, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// DecodeError reports input bytes that could not be decoded as a raster
// image. A decoded image with a zero-area footprint is treated the same
// way, so the normalized footprint can never be empty.
type DecodeError struct {
	Location string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %s", e.Location, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ComparisonError wraps any other failure inside the engine with the stage
// that produced it.
type ComparisonError struct {
	Stage string
	Err   error
}

func (e *ComparisonError) Error() string {
	return fmt.Sprintf("comparison failed at %s: %s", e.Stage, e.Err)
}

func (e *ComparisonError) Unwrap() error {
	return e.Err
}
