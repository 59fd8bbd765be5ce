// Package account keeps the local user directory: one record per identity
// token subject, created on first verification.
package account

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kbukum/medscribe/auth"
	"github.com/kbukum/medscribe/database"
	"github.com/kbukum/medscribe/util"
)

const resource = "user"

// User is a registered clinician, admin or patient.
type User struct {
	ID             string     `gorm:"primaryKey;size:128" json:"uid"`
	Email          string     `gorm:"size:320;not null;default:''" json:"email"`
	Name           string     `gorm:"size:255;not null;default:''" json:"name"`
	Role           string     `gorm:"size:32;not null;default:doctor" json:"role"`
	Specialization string     `gorm:"size:255;not null;default:''" json:"specialization,omitempty"`
	LicenseNumber  string     `gorm:"size:128;not null;default:''" json:"licenseNumber,omitempty"`
	LastLoginAt    *time.Time `json:"lastLogin,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func (User) TableName() string { return "users" }

// Profile is a partial profile update. Empty values are ignored.
type Profile struct {
	Name           string `json:"name" validate:"max=255"`
	Specialization string `json:"specialization" validate:"max=255"`
	LicenseNumber  string `json:"licenseNumber" validate:"max=128"`
}

// Repository stores users with GORM.
type Repository struct {
	db  *database.DB
	now func() time.Time
}

func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// DefaultName derives a display name from the name claim or the email's
// local part.
func DefaultName(name, email string) string {
	local, _, _ := strings.Cut(email, "@")
	return util.Coalesce(name, local)
}

// Verify returns the user for claims, creating it with the doctor role on
// first sight, and records the login time.
func (r *Repository) Verify(ctx context.Context, claims *auth.Claims) (*User, error) {
	now := r.now().UTC()
	u := &User{
		ID:          claims.UserID(),
		Email:       claims.Email,
		Name:        DefaultName(claims.Name, claims.Email),
		Role:        auth.RoleDoctor,
		LastLoginAt: &now,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(u)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := tx.Model(&User{}).Where("id = ?", u.ID).Update("last_login_at", now).Error; err != nil {
				return err
			}
		}
		return tx.Where("id = ?", u.ID).First(u).Error
	})
	if err != nil {
		return nil, database.FromDatabase(err, resource)
	}
	return u, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, database.FromDatabase(err, resource)
	}
	return &u, nil
}

// UpdateProfile applies the non-empty fields of p.
func (r *Repository) UpdateProfile(ctx context.Context, id string, p Profile) error {
	updates := map[string]interface{}{"updated_at": r.now().UTC()}
	if p.Name != "" {
		updates["name"] = p.Name
	}
	if p.Specialization != "" {
		updates["specialization"] = p.Specialization
	}
	if p.LicenseNumber != "" {
		updates["license_number"] = p.LicenseNumber
	}
	return r.update(ctx, id, updates)
}

// SetRole assigns role to the user.
func (r *Repository) SetRole(ctx context.Context, id, role string) error {
	return r.update(ctx, id, map[string]interface{}{"role": role, "updated_at": r.now().UTC()})
}

func (r *Repository) update(ctx context.Context, id string, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return database.FromDatabase(res.Error, resource)
	}
	if res.RowsAffected == 0 {
		return database.FromDatabase(gorm.ErrRecordNotFound, resource)
	}
	return nil
}
