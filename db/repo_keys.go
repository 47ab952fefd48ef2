package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"keytrack/apperr"
	"keytrack/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Holder identifies who is taking a key. Name/email/role are snapshotted onto
// the key row so notifications address the holder as they were at take time.
type Holder struct {
	ID    string
	Name  string
	Email string
	Role  string
}

// ReturnOptions gate a return inside the same transaction that mutates the
// row, so authorization and the state check are not observable as two steps.
type ReturnOptions struct {
	// ActorID performs the return. Privileged actors (security/admin) may
	// return on anyone's behalf.
	ActorID    string
	Privileged bool
	// RequireHolderID, when set, demands the key is held by exactly this
	// user (QR return claims). Mismatch is a Validation failure.
	RequireHolderID *string
}

// ReturnResult carries the post-return key plus a snapshot of who held it,
// which the caller needs for audit attribution and notifications.
type ReturnResult struct {
	Key        *models.Key
	PrevHolder Holder
}

// Keys: admin inventory

func (r *Repo) CreateKey(ctx context.Context, k *models.Key) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	if k.Status == "" {
		k.Status = models.KeyAvailable
	}
	k.IsActive = true
	if err := r.DB.WithContext(ctx).Create(k).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "duplicate") {
			return apperr.E(apperr.KindConflict, "key number %s already exists", k.KeyNumber)
		}
		return err
	}
	return nil
}

type UpdateKeyInput struct {
	Name           *string
	Location       *string
	Category       *string
	Department     *string
	FrequentlyUsed *bool
}

func (r *Repo) UpdateKey(ctx context.Context, keyNumber string, in UpdateKeyInput) (*models.Key, error) {
	updates := map[string]interface{}{}
	if in.Name != nil {
		updates["name"] = *in.Name
	}
	if in.Location != nil {
		updates["location"] = *in.Location
	}
	if in.Category != nil {
		updates["category"] = *in.Category
	}
	if in.Department != nil {
		updates["department"] = *in.Department
	}
	if in.FrequentlyUsed != nil {
		updates["frequently_used"] = *in.FrequentlyUsed
	}
	if len(updates) == 0 {
		return r.FindKeyByNumber(ctx, keyNumber)
	}
	res := r.DB.WithContext(ctx).Model(&models.Key{}).
		Where("key_number = ? AND is_active = TRUE", keyNumber).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apperr.E(apperr.KindNotFound, "key %s not found", keyNumber)
	}
	return r.FindKeyByNumber(ctx, keyNumber)
}

// SoftDeleteKey refuses while the key is out.
func (r *Repo) SoftDeleteKey(ctx context.Context, keyNumber string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var k models.Key
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&k, "key_number = ? AND is_active = TRUE", keyNumber).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.E(apperr.KindNotFound, "key %s not found", keyNumber)
			}
			return err
		}
		if k.Status == models.KeyUnavailable {
			return apperr.E(apperr.KindConflict, "key %s is still out", keyNumber)
		}
		return tx.Model(&models.Key{}).Where("id = ?", k.ID).
			Update("is_active", false).Error
	})
}

func (r *Repo) FindKeyByNumber(ctx context.Context, keyNumber string) (*models.Key, error) {
	var k models.Key
	err := r.DB.WithContext(ctx).
		First(&k, "key_number = ? AND is_active = TRUE", keyNumber).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.E(apperr.KindNotFound, "key %s not found", keyNumber)
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

type ListKeysQuery struct {
	Q              string
	Status         string // "", "available", "unavailable"
	Category       string
	Department     string
	FrequentlyUsed bool
	Page           int
	Size           int
}

type PagedKeys struct {
	Total int64        `json:"total"`
	Keys  []models.Key `json:"keys"`
}

func (r *Repo) ListKeys(ctx context.Context, q ListKeysQuery) (*PagedKeys, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Size <= 0 || q.Size > 200 {
		q.Size = 50
	}

	tx := r.DB.WithContext(ctx).Model(&models.Key{}).Where("is_active = TRUE")
	if s := strings.TrimSpace(q.Q); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		tx = tx.Where("LOWER(key_number) LIKE ? OR LOWER(name) LIKE ? OR LOWER(location) LIKE ?", like, like, like)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.Category != "" {
		tx = tx.Where("category = ?", q.Category)
	}
	if q.Department != "" {
		tx = tx.Where("department = ?", q.Department)
	}
	if q.FrequentlyUsed {
		tx = tx.Where("frequently_used = TRUE")
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, err
	}

	var keys []models.Key
	if err := tx.
		Order("frequently_used DESC, key_number ASC").
		Offset((q.Page - 1) * q.Size).
		Limit(q.Size).
		Find(&keys).Error; err != nil {
		return nil, err
	}
	return &PagedKeys{Total: total, Keys: keys}, nil
}

func (r *Repo) ListKeysByHolder(ctx context.Context, holderID string) ([]models.Key, error) {
	var keys []models.Key
	err := r.DB.WithContext(ctx).
		Where("holder_id = ? AND status = ? AND is_active = TRUE", holderID, models.KeyUnavailable).
		Order("taken_at ASC").
		Find(&keys).Error
	return keys, err
}

// ListUnreturnedKeys feeds the overdue sweep.
func (r *Repo) ListUnreturnedKeys(ctx context.Context) ([]models.Key, error) {
	var keys []models.Key
	err := r.DB.WithContext(ctx).
		Where("status = ? AND holder_id IS NOT NULL AND is_active = TRUE", models.KeyUnavailable).
		Order("holder_id, taken_at ASC").
		Find(&keys).Error
	return keys, err
}

// Lifecycle transitions. These are the only writers of status/holder.

// TakeKey: lock the row, check it is available, flip it. Of N concurrent
// takes exactly one sees status=available inside its transaction.
func (r *Repo) TakeKey(ctx context.Context, keyNumber string, h Holder) (*models.Key, error) {
	var out models.Key
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var k models.Key
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&k, "key_number = ? AND is_active = TRUE", keyNumber).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.E(apperr.KindNotFound, "key %s not found", keyNumber)
			}
			return err
		}
		if k.Status != models.KeyAvailable {
			return apperr.E(apperr.KindConflict, "key %s is already taken", keyNumber)
		}

		now := time.Now().UTC()
		if err := tx.Model(&models.Key{}).
			Where("id = ? AND status = ?", k.ID, models.KeyAvailable).
			Updates(map[string]interface{}{
				"status":       models.KeyUnavailable,
				"holder_id":    h.ID,
				"holder_name":  h.Name,
				"holder_email": h.Email,
				"holder_role":  h.Role,
				"taken_at":     now,
				"returned_at":  nil,
			}).Error; err != nil {
			return err
		}

		k.Status = models.KeyUnavailable
		k.HolderID, k.HolderName, k.HolderEmail, k.HolderRole = &h.ID, &h.Name, &h.Email, &h.Role
		k.TakenAt, k.ReturnedAt = &now, nil
		out = k
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ReturnKey: lock, check it is out, authorize the actor, release it.
func (r *Repo) ReturnKey(ctx context.Context, keyNumber string, opts ReturnOptions) (*ReturnResult, error) {
	var res ReturnResult
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var k models.Key
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&k, "key_number = ? AND is_active = TRUE", keyNumber).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.E(apperr.KindNotFound, "key %s not found", keyNumber)
			}
			return err
		}
		if k.Status != models.KeyUnavailable || k.HolderID == nil {
			return apperr.E(apperr.KindConflict, "key %s is not taken", keyNumber)
		}

		if opts.RequireHolderID != nil && *k.HolderID != *opts.RequireHolderID {
			return apperr.E(apperr.KindValidation, "key %s is not held by the named user", keyNumber)
		}
		if !opts.Privileged && *k.HolderID != opts.ActorID {
			return apperr.E(apperr.KindForbidden, "key %s is held by someone else", keyNumber)
		}

		prev := Holder{ID: *k.HolderID}
		if k.HolderName != nil {
			prev.Name = *k.HolderName
		}
		if k.HolderEmail != nil {
			prev.Email = *k.HolderEmail
		}
		if k.HolderRole != nil {
			prev.Role = *k.HolderRole
		}

		now := time.Now().UTC()
		if err := tx.Model(&models.Key{}).
			Where("id = ? AND status = ?", k.ID, models.KeyUnavailable).
			Updates(map[string]interface{}{
				"status":       models.KeyAvailable,
				"holder_id":    nil,
				"holder_name":  nil,
				"holder_email": nil,
				"holder_role":  nil,
				"returned_at":  now,
			}).Error; err != nil {
			return err
		}

		k.Status = models.KeyAvailable
		k.HolderID, k.HolderName, k.HolderEmail, k.HolderRole = nil, nil, nil, nil
		k.ReturnedAt = &now
		res = ReturnResult{Key: &k, PrevHolder: prev}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}
