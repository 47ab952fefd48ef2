package db

import (
	"context"
	"errors"
	"strings"

	"keytrack/apperr"
	"keytrack/models"

	"gorm.io/gorm"
)

type Repo struct{ DB *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{DB: db} }

// Users

func (r *Repo) TouchUserLogin(ctx context.Context, userID, ip, ua string) error {
	return r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"last_login_at": gorm.Expr("NOW()"),
			"last_seen_at":  gorm.Expr("NOW()"),
			"login_count":   gorm.Expr("COALESCE(login_count, 0) + 1"),
			"last_login_ip": ip,
			"last_login_ua": ua,
		}).Error
}

func (r *Repo) TouchUserSeen(ctx context.Context, userID string) error {
	return r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_seen_at", gorm.Expr("NOW()")).Error
}

func (r *Repo) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.E(apperr.KindNotFound, "user not found")
		}
		return nil, err
	}
	return &u, nil
}

func (r *Repo) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := r.DB.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.E(apperr.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) FindOrCreateUser(ctx context.Context, newID, email, displayName, role string) (*models.User, error) {
	email = strings.ToLower(email)
	var u models.User
	err := r.DB.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if role == "" {
			role = models.RoleFaculty
		}
		u = models.User{
			ID:          newID,
			Email:       email,
			DisplayName: displayName,
			Role:        role,
			IsActive:    true,
			Verified:    true,
		}
		if err := r.DB.WithContext(ctx).Create(&u).Error; err != nil {
			return nil, err
		}
		return &u, nil
	}
	return &u, err
}

// ListSecurityUsers returns the recipients of overdue security alerts.
func (r *Repo) ListSecurityUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.DB.WithContext(ctx).
		Where("role = ? AND is_active = TRUE AND verified = TRUE", models.RoleSecurity).
		Order("created_at").
		Find(&users).Error
	return users, err
}

type ListUsersQuery struct {
	Q    string
	Role string
	Page int
	Size int
}

type ListUsersResult struct {
	Users []models.User `json:"users"`
	Total int64         `json:"total"`
}

func (r *Repo) ListUsers(ctx context.Context, q ListUsersQuery) (ListUsersResult, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Size <= 0 || q.Size > 100 {
		q.Size = 20
	}

	tx := r.DB.WithContext(ctx).Model(&models.User{})
	if s := strings.TrimSpace(q.Q); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		tx = tx.Where("LOWER(email) LIKE ? OR LOWER(display_name) LIKE ?", like, like)
	}
	if q.Role != "" {
		tx = tx.Where("role = ?", q.Role)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return ListUsersResult{}, err
	}

	var users []models.User
	if err := tx.
		Order("created_at DESC").
		Offset((q.Page - 1) * q.Size).
		Limit(q.Size).
		Find(&users).Error; err != nil {
		return ListUsersResult{}, err
	}
	return ListUsersResult{Users: users, Total: total}, nil
}

type UpdateUserInput struct {
	DisplayName *string
	Role        *string
	Department  *string
	IsActive    *bool
	Verified    *bool
}

func (r *Repo) UpdateUser(ctx context.Context, id string, in UpdateUserInput) (*models.User, error) {
	updates := map[string]interface{}{}
	if in.DisplayName != nil {
		updates["display_name"] = *in.DisplayName
	}
	if in.Role != nil {
		updates["role"] = *in.Role
	}
	if in.Department != nil {
		updates["department"] = *in.Department
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if in.Verified != nil {
		updates["verified"] = *in.Verified
	}
	if len(updates) == 0 {
		return r.FindUserByID(ctx, id)
	}
	res := r.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apperr.E(apperr.KindNotFound, "user not found")
	}
	return r.FindUserByID(ctx, id)
}

// DeleteUserByID refuses while the user still holds keys.
func (r *Repo) DeleteUserByID(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Key{}).
			Where("holder_id = ? AND status = ?", id, models.KeyUnavailable).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperr.E(apperr.KindConflict, "user still holds %d key(s)", n)
		}
		res := tx.Delete(&models.User{ID: id})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.E(apperr.KindNotFound, "user not found")
		}
		return nil
	})
}
