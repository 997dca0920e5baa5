package transfer

import "fmt"

// ClassificationError means the submitted link is of no supported kind.
// Terminal; the job fails without any transfer attempt.
type ClassificationError struct {
	URL string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("unsupported link type: %s", e.URL)
}

// TransferError represents an engine-reported or verification-detected
// download failure. Terminal for the attempt.
type TransferError struct {
	Stage  string // "download" or "verify"
	Reason string // engine's stated message, or a generic fallback
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed during %s: %s", e.Stage, e.Reason)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// SizeLimitError means the response declared a size above the configured
// cap. Raised before any bytes are written to disk.
type SizeLimitError struct {
	DeclaredBytes int64
	LimitBytes    int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("file size %.2fGB exceeds limit of %.2fGB",
		float64(e.DeclaredBytes)/(1024*1024*1024), float64(e.LimitBytes)/(1024*1024*1024))
}

// NetworkError represents transport-level failures on the streamed fallback
// or the artifact store: connection errors, timeouts, 5xx responses. The
// dispatch layer may re-invoke the whole job run for this kind only.
type NetworkError struct {
	Operation  string
	StatusCode int // 0 for non-HTTP errors
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error during %s (HTTP %d)", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("network error during %s: %v", e.Operation, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// UploadError means the remote artifact store rejected the upload. Terminal.
type UploadError struct {
	RemoteName string
	StatusCode int
	Err        error
}

func (e *UploadError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upload of %s rejected (HTTP %d)", e.RemoteName, e.StatusCode)
	}
	return fmt.Sprintf("upload of %s failed: %v", e.RemoteName, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// IncompleteResultError means a torrent or magnet transfer finished with
// zero files collected. Terminal.
type IncompleteResultError struct {
	Reason string
}

func (e *IncompleteResultError) Error() string {
	return e.Reason
}
