// Package codec implements the Recorder Task's writer capability: open a
// container at a path/resolution/framerate, append decoded JPEG frames to
// it, and close it. The real implementation shells out to ffmpeg, the same
// external-binary-via-os/exec integration pattern used for video tooling
// elsewhere in the stack; a fake implementation backs unit tests that only
// need to assert frame/byte counts without a real encoder on PATH.
package codec

import "image"

// Handle is an open video writer for one camera session's recording.
type Handle interface {
	// Append encodes img as the next frame and returns the number of bytes
	// written for it (accumulated by the caller into Video.file_size).
	Append(img image.Image) (int64, error)
	// Close finalizes the container. Safe to call exactly once.
	Close() error
}

// Writer opens a Handle for a new recording. Width/height/framerate come
// from the camera's CameraSetting resolution mapping (or the fallback
// values when no setting exists).
type Writer interface {
	Open(path string, width, height, framerate int) (Handle, error)
}
