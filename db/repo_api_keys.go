package db

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"keytrack/apperr"
	"keytrack/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func hashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// CreateAPIKey returns the raw key exactly once; only its hash is stored.
func (r *Repo) CreateAPIKey(ctx context.Context, label, department string, expiresAt *time.Time) (string, *models.APIKey, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, err
	}
	raw := "ckt_" + hex.EncodeToString(buf)

	k := &models.APIKey{
		ID:         uuid.NewString(),
		KeyHash:    hashAPIKey(raw),
		KeyPrefix:  raw[:8],
		Label:      label,
		Department: department,
		IsActive:   true,
		ExpiresAt:  expiresAt,
	}
	if err := r.DB.WithContext(ctx).Create(k).Error; err != nil {
		return "", nil, err
	}
	return raw, k, nil
}

func (r *Repo) ListAPIKeys(ctx context.Context) ([]models.APIKey, error) {
	var keys []models.APIKey
	err := r.DB.WithContext(ctx).Order("created_at DESC").Find(&keys).Error
	return keys, err
}

func (r *Repo) RevokeAPIKey(ctx context.Context, id string) error {
	res := r.DB.WithContext(ctx).Model(&models.APIKey{}).
		Where("id = ?", id).
		Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.E(apperr.KindNotFound, "api key not found")
	}
	return nil
}

// FindUsableAPIKey authenticates a raw key: hash lookup, then the
// active/expired checks.
func (r *Repo) FindUsableAPIKey(ctx context.Context, raw string, now time.Time) (*models.APIKey, error) {
	var k models.APIKey
	err := r.DB.WithContext(ctx).Where("key_hash = ?", hashAPIKey(raw)).First(&k).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.E(apperr.KindForbidden, "invalid api key")
	}
	if err != nil {
		return nil, err
	}
	if !k.Usable(now) {
		return nil, apperr.E(apperr.KindForbidden, "api key inactive or expired")
	}
	return &k, nil
}

func (r *Repo) TouchAPIKeyUsed(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).Model(&models.APIKey{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"usage_count":  gorm.Expr("usage_count + 1"),
			"last_used_at": gorm.Expr("NOW()"),
		}).Error
}
