package gateway

import "fmt"

// UpstreamError covers every way a call to the analysis service can fail:
// transport errors and timeouts, non-2xx statuses, and unparseable bodies.
type UpstreamError struct {
	Op     string
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// TooLargeError rejects an image before it is ever sent upstream.
type TooLargeError struct {
	Size  int64
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("image of %d bytes exceeds the %d byte limit", e.Size, e.Limit)
}
