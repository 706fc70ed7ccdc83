package repository

import (
	"time"

	"github.com/ManuelReschke/CalcFox/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Register(user *models.User, now time.Time) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	ExistsByEmail(email string) (bool, error)
	TouchLastLogin(id uint, at time.Time) error
}
