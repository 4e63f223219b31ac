package data

import (
	"context"
	"database/sql"
	"time"
)

// Resolution is one of the two admissible camera resolution strings.
type Resolution string

const (
	ResolutionSVGA Resolution = "SVGA"
	ResolutionVGA  Resolution = "VGA"
)

// Dimensions maps a resolution string to pixel width/height. Unknown values
// fall back to SVGA's (800, 600), matching the camera's own firmware default.
func (r Resolution) Dimensions() (width, height int) {
	switch r {
	case ResolutionVGA:
		return 640, 480
	case ResolutionSVGA:
		return 800, 600
	default:
		return 800, 600
	}
}

func (r Resolution) Valid() bool {
	return r == ResolutionSVGA || r == ResolutionVGA
}

// CameraSetting is the single current configuration row for a camera.
type CameraSetting struct {
	ID                int64     `json:"id"`
	CameraID          int64     `json:"camera_id"`
	FlashlightEnabled bool      `json:"flashlight_enabled"`
	Resolution        Resolution `json:"resolution"`
	Framerate         int       `json:"framerate"`
	LastModified      time.Time `json:"last_modified"`
	ModifiedBy        int64     `json:"modified_by"`
}

const (
	MinFramerate = 1
	MaxFramerate = 60

	DefaultFlashlightEnabled = false
	DefaultResolution        = ResolutionSVGA
	DefaultFramerate         = 5

	// FallbackFramerate is used by the Recorder Task when no setting row
	// exists for the camera at all (should not happen in steady state,
	// since camera creation always provisions a default setting).
	FallbackFramerate = 12
)

type SettingModel struct {
	DB DBTX
}

func (m SettingModel) Create(ctx context.Context, s *CameraSetting) error {
	query := `
		INSERT INTO camera_settings (camera_id, flashlight_enabled, resolution, framerate, modified_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, last_modified`
	return m.DB.QueryRowContext(ctx, query, s.CameraID, s.FlashlightEnabled, s.Resolution, s.Framerate, s.ModifiedBy).
		Scan(&s.ID, &s.LastModified)
}

func (m SettingModel) GetByCameraID(ctx context.Context, cameraID int64) (*CameraSetting, error) {
	query := `
		SELECT id, camera_id, flashlight_enabled, resolution, framerate, last_modified, modified_by
		FROM camera_settings WHERE camera_id = $1`
	var s CameraSetting
	err := m.DB.QueryRowContext(ctx, query, cameraID).Scan(
		&s.ID, &s.CameraID, &s.FlashlightEnabled, &s.Resolution, &s.Framerate, &s.LastModified, &s.ModifiedBy)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (m SettingModel) GetByID(ctx context.Context, id int64) (*CameraSetting, error) {
	query := `
		SELECT id, camera_id, flashlight_enabled, resolution, framerate, last_modified, modified_by
		FROM camera_settings WHERE id = $1`
	var s CameraSetting
	err := m.DB.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.CameraID, &s.FlashlightEnabled, &s.Resolution, &s.Framerate, &s.LastModified, &s.ModifiedBy)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Update overwrites the single current setting row for s.CameraID, bumping
// last_modified and modified_by.
func (m SettingModel) Update(ctx context.Context, s *CameraSetting) error {
	query := `
		UPDATE camera_settings
		SET flashlight_enabled = $1, resolution = $2, framerate = $3,
		    last_modified = NOW(), modified_by = $4
		WHERE id = $5
		RETURNING last_modified`
	err := m.DB.QueryRowContext(ctx, query, s.FlashlightEnabled, s.Resolution, s.Framerate, s.ModifiedBy, s.ID).
		Scan(&s.LastModified)
	if err == sql.ErrNoRows {
		return ErrRecordNotFound
	}
	return err
}
