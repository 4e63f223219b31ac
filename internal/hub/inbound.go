package hub

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oddmeter/camhub/internal/rail"
)

// inboundTask owns the peer's read half exclusively. For cameras it wraps
// every binary message in a FrameEvent and publishes it; for viewers it
// ignores binary messages (a viewer has nothing useful to push upstream).
// It exits on a closed or errored peer read, or, after a message has been
// read, when the session context is done.
type inboundTask struct {
	sess     *session
	isCamera bool
	cameraID int64
}

func (t *inboundTask) name() string { return "inbound" }

func (t *inboundTask) run(ctx context.Context) error {
	for {
		mt, data, err := t.sess.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("peer read: %w", err)
		}
		if t.isCamera && mt == websocket.BinaryMessage {
			t.sess.frameRail.Publish(rail.FrameEvent{
				CameraID:  t.cameraID,
				Timestamp: time.Now().Unix(),
				Image:     data,
			})
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}
