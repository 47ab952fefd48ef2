package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"keytrack/models"

	"github.com/redis/go-redis/v9"
)

type AppSessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewAppSessionStore(rdb *redis.Client, ttl time.Duration) *AppSessionStore {
	return &AppSessionStore{rdb: rdb, ttl: ttl}
}

// AppSession carries the user id plus an identity snapshot from login time.
// The snapshot is for logs and diagnostics only; authorization always
// re-queries the user record.
type AppSession struct {
	UserID   string `json:"uid"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	IssuedAt int64  `json:"iat"`
}

func key(id string) string         { return fmt.Sprintf("ckt:sess:%s", id) }
func userSetKey(uid string) string { return fmt.Sprintf("ckt:user_sessions:%s", uid) }

func (s *AppSessionStore) Create(ctx context.Context, id string, u *models.User) error {
	b, _ := json.Marshal(AppSession{
		UserID:   u.ID,
		Email:    u.Email,
		Name:     u.DisplayName,
		Role:     u.Role,
		IssuedAt: time.Now().Unix(),
	})
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key(id), b, s.ttl)
	pipe.SAdd(ctx, userSetKey(u.ID), id)
	pipe.Expire(ctx, userSetKey(u.ID), s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Get resolves a session and slides its expiry: the TTL counts from the last
// request, not from login, so an active user is never cut off mid-day.
func (s *AppSessionStore) Get(ctx context.Context, id string) (*AppSession, error) {
	b, err := s.rdb.Get(ctx, key(id)).Bytes()
	if err != nil {
		return nil, err
	}
	var as AppSession
	if err := json.Unmarshal(b, &as); err != nil {
		return nil, err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Expire(ctx, key(id), s.ttl)
	pipe.Expire(ctx, userSetKey(as.UserID), s.ttl)
	_, _ = pipe.Exec(ctx) // renewal is best effort

	return &as, nil
}

func (s *AppSessionStore) Delete(ctx context.Context, id string) error {
	as, _ := s.Get(ctx, id) // best effort
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key(id))
	if as != nil {
		pipe.SRem(ctx, userSetKey(as.UserID), id)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// RevokeAllForUser kills every session when a user is deleted or deactivated.
func (s *AppSessionStore) RevokeAllForUser(ctx context.Context, userID string) error {
	ids, err := s.rdb.SMembers(ctx, userSetKey(userID)).Result()
	if err != nil && err != redis.Nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	for _, sid := range ids {
		pipe.Del(ctx, key(sid))
	}
	pipe.Del(ctx, userSetKey(userID))
	_, err = pipe.Exec(ctx)
	return err
}
