package hub

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/oddmeter/camhub/internal/rail"
)

// viewerFramePayload is the JSON shape written to a viewer peer for each
// entitled frame, matching the wire contract in SPEC_FULL.md §6.1.
type viewerFramePayload struct {
	CameraID  int64  `json:"camera_id"`
	Timestamp int64  `json:"timestamp"`
	ImageB64  string `json:"image_bytes"`
}

// viewerTask relays only entitled frames to its peer. See SPEC_FULL.md §4.4.
type viewerTask struct {
	sess *session
}

func (t *viewerTask) name() string { return "viewer" }

func (t *viewerTask) run(ctx context.Context) error {
	sub := t.sess.frameRail.Subscribe()
	defer t.sess.writeClose("Goodbye")

	for {
		fe, ok := sub.Await(ctx)
		if !ok {
			return nil
		}
		if fe.CameraID == rail.FrameSentinel.CameraID {
			continue
		}
		if !t.sess.entitlements.has(fe.CameraID) {
			continue
		}

		payload := viewerFramePayload{
			CameraID:  fe.CameraID,
			Timestamp: fe.Timestamp,
			ImageB64:  base64.StdEncoding.EncodeToString(fe.Image),
		}
		if err := t.sess.writeJSON(payload); err != nil {
			return fmt.Errorf("serialize/write frame: %w", err)
		}
	}
}
