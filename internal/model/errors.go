package model

import "errors"

// Coordination error taxonomy. All of these are locally recoverable: the
// worst case is returning the user to the entry screen. None trigger
// automatic retries.
var (
	// ErrBackendUnavailable indicates the store connection failed at session
	// init. Recovered by falling back to the degraded local mode.
	ErrBackendUnavailable = errors.New("session backend unavailable")

	// ErrSessionFull rejects a join at capacity. Terminal for that attempt;
	// no roster entry is written.
	ErrSessionFull = errors.New("session is full")

	// ErrNoPhotosCaptured indicates a capture loop produced zero artifacts.
	ErrNoPhotosCaptured = errors.New("no photos were captured")

	// ErrArtifactUploadFailed indicates a broadcast write failed. Local
	// state is not rolled back; the captured artifact is retained.
	ErrArtifactUploadFailed = errors.New("failed to share artifact with session")

	// ErrCaptureDeviceUnavailable indicates the capture device could not be
	// opened or read.
	ErrCaptureDeviceUnavailable = errors.New("capture device unavailable")
)
