// Package hub implements the connection router & per-session task graph:
// the Session Supervisor and its four sibling tasks (Inbound, Viewer,
// Recorder, Control Listener), built on top of the Frame Rail and Control
// Rail in package rail.
package hub

import (
	"context"
	"image"
	"time"

	"github.com/google/uuid"

	"github.com/oddmeter/camhub/internal/rail"
)

// Camera is the subset of the Camera record the core needs.
type Camera struct {
	ID     int64
	Name   string
	Active bool
}

// CameraLookup resolves the Session Supervisor's classification protocol.
type CameraLookup interface {
	ByExactAddress(ctx context.Context, addr string) (Camera, error)
	ByWildcardHost(ctx context.Context, host string) (Camera, error)
}

// SettingLookup fetches the camera's current setting, used both at
// classification (Recorder Task sizing) and by the camera-role Control
// Listener Task (initial SettingChanged synthesis).
type SettingLookup interface {
	CurrentSetting(ctx context.Context, cameraID int64) (rail.CameraSettingNoMeta, error)
}

// VideoStore persists the Recorder Task's Video row.
type VideoStore interface {
	StartVideo(ctx context.Context, cameraID int64, filePath string, startTime time.Time) (videoID int64, err error)
	FinishVideo(ctx context.Context, videoID int64, endTime time.Time, fileSize int64) error
}

// EntitlementSource resolves (and refreshes) a viewer's accessible-camera set.
type EntitlementSource interface {
	EntitledCameras(ctx context.Context, userID int64) (map[int64]struct{}, error)
}

// Codec is the Recorder Task's JPEG-decode + video-writer capability,
// reified as a capability interface per design note "Codec as a capability":
// a real implementation wraps an external encoder, a fake implementation
// backs tests.
type Codec interface {
	Open(path string, width, height, framerate int) (CodecHandle, error)
}

type CodecHandle interface {
	Append(img image.Image) (int64, error)
	Close() error
}

// Auditor logs session-lifecycle outcomes; failures are never fatal to the
// session.
type Auditor interface {
	LogSessionEvent(ctx context.Context, action string, cameraID, userID int64, detail string)
}

// Peer is the subset of *websocket.Conn the core needs, narrowed to an
// interface so tests can supply an in-memory fake.
type Peer interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Clock abstracts time.Now so recorder-timing tests are deterministic;
// production code uses RealClock.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// NewSessionID is split out so tests can supply a deterministic generator.
var NewSessionID = func() string { return uuid.NewString() }
