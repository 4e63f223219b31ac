// Package authsession tracks logged-in admin sessions and login lockouts in
// Redis. This is distinct from the per-connection "session" type in
// internal/hub, which is a camera/viewer WebSocket connection's task-graph
// state, not a login session.
package authsession

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	MaxSessionsPerUser = 5
	SessionTTL         = tokensRefreshTTL
	LockoutTTL         = 15 * time.Minute
	LockoutThreshold   = 5
)

// tokensRefreshTTL mirrors internal/tokens.RefreshTokenTTL without importing
// it, keeping this package's only dependency the redis client.
const tokensRefreshTTL = 7 * 24 * time.Hour

type Manager struct {
	client *redis.Client
}

func NewManager(client *redis.Client) *Manager {
	return &Manager{client: client}
}

func userKey(userID int64) string            { return fmt.Sprintf("user_sessions:%d", userID) }
func sessionKey(sessionID string) string     { return fmt.Sprintf("session:%s", sessionID) }
func lockoutKey(username string) string      { return fmt.Sprintf("lockout:%s", username) }
func lockoutCountKey(username string) string { return fmt.Sprintf("lockout_count:%s", username) }

// CreateSession registers a new login session and evicts the oldest beyond
// MaxSessionsPerUser.
func (m *Manager) CreateSession(ctx context.Context, userID int64, sessionID string) error {
	uKey := userKey(userID)
	sKey := sessionKey(sessionID)

	pipe := m.client.Pipeline()
	now := float64(time.Now().Unix())
	pipe.ZAdd(ctx, uKey, redis.Z{Score: now, Member: sessionID})
	pipe.Expire(ctx, uKey, SessionTTL)
	pipe.HSet(ctx, sKey, "user_id", strconv.FormatInt(userID, 10), "created_at", now)
	pipe.Expire(ctx, sKey, SessionTTL)

	removeCount := int64(-1 * (MaxSessionsPerUser + 1))
	pipe.ZRemRangeByRank(ctx, uKey, 0, removeCount)

	_, err := pipe.Exec(ctx)
	return err
}

func (m *Manager) RevokeSession(ctx context.Context, sessionID string) error {
	sKey := sessionKey(sessionID)

	userIDStr, err := m.client.HGet(ctx, sKey, "user_id").Result()
	if err != nil && err != redis.Nil {
		return err
	}

	pipe := m.client.Pipeline()
	pipe.Del(ctx, sKey)
	if userIDStr != "" {
		if userID, convErr := strconv.ParseInt(userIDStr, 10, 64); convErr == nil {
			pipe.ZRem(ctx, userKey(userID), sessionID)
		}
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (m *Manager) RevokeAllUserSessions(ctx context.Context, userID int64) error {
	uKey := userKey(userID)

	sessionIDs, err := m.client.ZRange(ctx, uKey, 0, -1).Result()
	if err != nil {
		return err
	}
	if len(sessionIDs) == 0 {
		return nil
	}

	pipe := m.client.Pipeline()
	pipe.Del(ctx, uKey)
	for _, sid := range sessionIDs {
		pipe.Del(ctx, sessionKey(sid))
	}
	_, err = pipe.Exec(ctx)
	return err
}

// CheckLockout returns true if the given username is currently locked out of
// login attempts.
func (m *Manager) CheckLockout(ctx context.Context, username string) (bool, error) {
	val, err := m.client.Get(ctx, lockoutKey(username)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == "locked", nil
}

// RecordFailedAttempt increments the failure counter and locks the username
// out once LockoutThreshold is reached.
func (m *Manager) RecordFailedAttempt(ctx context.Context, username string) error {
	key := lockoutCountKey(username)
	count, err := m.client.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if count == 1 {
		m.client.Expire(ctx, key, LockoutTTL)
	}
	if count >= LockoutThreshold {
		m.client.Set(ctx, lockoutKey(username), "locked", LockoutTTL)
		m.client.Del(ctx, key)
	}
	return nil
}

// ClearFailedAttempts resets the lockout counter after a successful login.
func (m *Manager) ClearFailedAttempts(ctx context.Context, username string) error {
	return m.client.Del(ctx, lockoutCountKey(username)).Err()
}
