package data

import (
	"context"
	"database/sql"
	"time"
)

// Video records a single Recorder Task's on-disk output for the lifetime of
// one camera session. EndTime and FileSize are nil until the recorder drains.
type Video struct {
	ID        int64      `json:"id"`
	CameraID  int64      `json:"camera_id"`
	FilePath  string     `json:"file_path"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	FileSize  *int64     `json:"file_size,omitempty"`
}

type VideoModel struct {
	DB DBTX
}

func (m VideoModel) Start(ctx context.Context, cameraID int64, filePath string, startTime time.Time) (int64, error) {
	query := `
		INSERT INTO videos (camera_id, file_path, start_time)
		VALUES ($1, $2, $3)
		RETURNING id`
	var id int64
	err := m.DB.QueryRowContext(ctx, query, cameraID, filePath, startTime).Scan(&id)
	return id, err
}

func (m VideoModel) Finish(ctx context.Context, videoID int64, endTime time.Time, fileSize int64) error {
	query := `UPDATE videos SET end_time = $1, file_size = $2 WHERE id = $3`
	res, err := m.DB.ExecContext(ctx, query, endTime, fileSize, videoID)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (m VideoModel) GetByID(ctx context.Context, id int64) (*Video, error) {
	query := `SELECT id, camera_id, file_path, start_time, end_time, file_size FROM videos WHERE id = $1`
	var v Video
	var endTime sql.NullTime
	var fileSize sql.NullInt64
	err := m.DB.QueryRowContext(ctx, query, id).Scan(&v.ID, &v.CameraID, &v.FilePath, &v.StartTime, &endTime, &fileSize)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	if endTime.Valid {
		v.EndTime = &endTime.Time
	}
	if fileSize.Valid {
		v.FileSize = &fileSize.Int64
	}
	return &v, nil
}

func (m VideoModel) ListByCamera(ctx context.Context, cameraID int64) ([]*Video, error) {
	query := `
		SELECT id, camera_id, file_path, start_time, end_time, file_size
		FROM videos WHERE camera_id = $1 ORDER BY start_time DESC`
	rows, err := m.DB.QueryContext(ctx, query, cameraID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Video
	for rows.Next() {
		var v Video
		var endTime sql.NullTime
		var fileSize sql.NullInt64
		if err := rows.Scan(&v.ID, &v.CameraID, &v.FilePath, &v.StartTime, &endTime, &fileSize); err != nil {
			return nil, err
		}
		if endTime.Valid {
			v.EndTime = &endTime.Time
		}
		if fileSize.Valid {
			v.FileSize = &fileSize.Int64
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}
