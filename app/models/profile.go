package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// Profile stores per-user display data. PlanType mirrors the effective plan of
// the user's Subscription and is only a convenience projection.
type Profile struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"uniqueIndex" json:"user_id"`
	DisplayName string         `gorm:"type:varchar(150);default:''" json:"display_name"`
	PlanType    string         `gorm:"type:varchar(20);default:'free'" json:"plan_type"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// GetOrCreateProfile returns the existing profile or creates a free one.
func GetOrCreateProfile(db *gorm.DB, userID uint) (*Profile, error) {
	var p Profile
	if err := db.Where("user_id = ?", userID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			p = Profile{UserID: userID, PlanType: PlanFree}
			if err := db.Create(&p).Error; err != nil {
				return nil, err
			}
			return &p, nil
		}
		return nil, err
	}
	return &p, nil
}
