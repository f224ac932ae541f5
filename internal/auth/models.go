package auth

import "time"

// User is an admin dashboard account. Station devices authenticate against
// the tracking.stations registry instead.
type User struct {
	UserID         string    `gorm:"primaryKey" json:"user_id"`
	Email          string    `gorm:"uniqueIndex" json:"email"`
	HashedPassword string    `json:"-"`
	Role           string    `gorm:"default:'viewer'" json:"role"`
	IsActive       bool      `gorm:"default:true" json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

func (User) TableName() string { return "app_auth.users" }
