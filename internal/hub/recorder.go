package hub

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"

	"github.com/oddmeter/camhub/internal/rail"
)

// recorderTask persists camera-originated frames as a single video file for
// the lifetime of the session. See SPEC_FULL.md §4.5.
//
// Known limitation, preserved deliberately: if the camera's resolution or
// framerate changes mid-session, the writer is not reconfigured; frames
// continue to be written at the dimensions chosen at startup.
type recorderTask struct {
	sess      *session
	cameraID  int64
	setting   rail.CameraSettingNoMeta
	startTime time.Time
	videoDir  string
	videos    VideoStore
	codec     Codec
}

func (t *recorderTask) name() string { return "recorder" }

func (t *recorderTask) run(ctx context.Context) (runErr error) {
	width, height := t.setting.Dimensions()
	framerate := t.setting.Framerate
	if framerate <= 0 {
		framerate = rail.FallbackFramerate
	}

	path, err := t.reservePath()
	if err != nil {
		return fmt.Errorf("reserve video path: %w", err)
	}

	videoID, err := t.videos.StartVideo(context.Background(), t.cameraID, path, t.startTime)
	if err != nil {
		return fmt.Errorf("start video record: %w", err)
	}

	handle, err := t.codec.Open(path, width, height, framerate)
	if err != nil {
		return fmt.Errorf("open codec writer: %w", err)
	}

	var total int64
	defer func() {
		closeErr := handle.Close()
		end := time.Now()
		if finErr := t.videos.FinishVideo(context.Background(), videoID, end, total); finErr != nil {
			t.sess.logger.Printf("recorder: finalize video %d: %v", videoID, finErr)
		}
		if runErr == nil && closeErr != nil {
			runErr = fmt.Errorf("close codec writer: %w", closeErr)
		}
	}()

	sub := t.sess.frameRail.Subscribe()
	for {
		fe, ok := sub.Await(ctx)
		if !ok {
			return nil // rail torn down or session cancelled: clean drain
		}
		if fe.CameraID != t.cameraID {
			continue
		}

		img, err := jpeg.Decode(bytes.NewReader(fe.Image))
		if err != nil {
			return fmt.Errorf("jpeg decode: %w", err)
		}
		n, err := handle.Append(img)
		if err != nil {
			return fmt.Errorf("writer append: %w", err)
		}
		total += n
	}
}

// reservePath computes {start_time_formatted}.avi under videoDir, appending
// "-<n>" for the smallest unused n when the base name collides with an
// existing file (e.g. two sessions starting within the same timestamp
// resolution after a rapid reconnect).
func (t *recorderTask) reservePath() (string, error) {
	base := t.startTime.UTC().Format("2006-01-02T15-04-05.000000000")
	candidate := filepath.Join(t.videoDir, base+".avi")
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate, nil
	}
	for n := 1; ; n++ {
		candidate = filepath.Join(t.videoDir, fmt.Sprintf("%s-%d.avi", base, n))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
}
