package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// Camera is a registered streaming endpoint. Address is either a full
// "host:port" endpoint or a wildcard-port endpoint "host:*" meaning any
// source port from that host is accepted.
type Camera struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

const wildcardSuffix = ":*"

// IsWildcard reports whether the camera accepts any source port from its host.
func (c Camera) IsWildcard() bool {
	return len(c.Address) >= len(wildcardSuffix) && c.Address[len(c.Address)-len(wildcardSuffix):] == wildcardSuffix
}

// Host returns the address with any ":*" wildcard suffix stripped.
func (c Camera) Host() string {
	if c.IsWildcard() {
		return c.Address[:len(c.Address)-len(wildcardSuffix)]
	}
	return c.Address
}

type CameraModel struct {
	DB DBTX
}

func (m CameraModel) Create(ctx context.Context, c *Camera) error {
	query := `
		INSERT INTO cameras (name, address, is_active)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`
	return m.DB.QueryRowContext(ctx, query, c.Name, c.Address, c.IsActive).Scan(&c.ID, &c.CreatedAt)
}

func (m CameraModel) GetByID(ctx context.Context, id int64) (*Camera, error) {
	query := `SELECT id, name, address, is_active, created_at FROM cameras WHERE id = $1`
	var c Camera
	err := m.DB.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Name, &c.Address, &c.IsActive, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByExactAddress looks up an active camera admitted from a specific
// host:port, per the Session Supervisor's "camera" classification.
func (m CameraModel) GetByExactAddress(ctx context.Context, addr string) (*Camera, error) {
	query := `SELECT id, name, address, is_active, created_at FROM cameras WHERE address = $1 AND is_active = true`
	var c Camera
	err := m.DB.QueryRowContext(ctx, query, addr).Scan(&c.ID, &c.Name, &c.Address, &c.IsActive, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByWildcardHost looks up an active camera admitted from the given host
// under a "host:*" wildcard-port registration, per "camera_any_port".
func (m CameraModel) GetByWildcardHost(ctx context.Context, host string) (*Camera, error) {
	query := `SELECT id, name, address, is_active, created_at FROM cameras WHERE address = $1 AND is_active = true`
	var c Camera
	err := m.DB.QueryRowContext(ctx, query, host+wildcardSuffix).Scan(&c.ID, &c.Name, &c.Address, &c.IsActive, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (m CameraModel) List(ctx context.Context) ([]*Camera, error) {
	query := `SELECT id, name, address, is_active, created_at FROM cameras ORDER BY id`
	rows, err := m.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Camera
	for rows.Next() {
		var c Camera
		if err := rows.Scan(&c.ID, &c.Name, &c.Address, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// ListByIDs returns the subset of cameras whose id is in ids, preserving
// no particular order. Used to render a viewer's accessible-camera list.
func (m CameraModel) ListByIDs(ctx context.Context, ids []int64) ([]*Camera, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT id, name, address, is_active, created_at FROM cameras WHERE id = ANY($1) AND is_active = true`
	rows, err := m.DB.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Camera
	for rows.Next() {
		var c Camera
		if err := rows.Scan(&c.ID, &c.Name, &c.Address, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (m CameraModel) Delete(ctx context.Context, id int64) error {
	res, err := m.DB.ExecContext(ctx, `DELETE FROM cameras WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}
