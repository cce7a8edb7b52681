package users

import (
	"strings"
	"time"
)

// Profile is the public row of a user. Counters are derived on read by the social service.
type Profile struct {
	ID        string    `gorm:"column:id;primaryKey;size:190" json:"id"`
	Username  string    `gorm:"column:username;size:30;not null;uniqueIndex" json:"username"`
	FullName  string    `gorm:"column:full_name;size:100" json:"full_name"`
	Bio       string    `gorm:"column:bio;size:500" json:"bio"`
	Gender    string    `gorm:"column:gender;size:32" json:"gender"`
	AvatarURL string    `gorm:"column:avatar_url;size:1024" json:"avatar_url"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName exposes the table backing profiles.
func (Profile) TableName() string {
	return "profiles"
}

// ProfileUpdate lists the mutable profile fields. Nil fields are left untouched.
type ProfileUpdate struct {
	FullName  *string
	Username  *string
	Bio       *string
	Gender    *string
	AvatarURL *string
}

func (u ProfileUpdate) empty() bool {
	return u.FullName == nil && u.Username == nil && u.Bio == nil && u.Gender == nil && u.AvatarURL == nil
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
