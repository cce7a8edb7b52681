package auth

import "time"

// Account is a password identity.
type Account struct {
	ID           string    `gorm:"column:id;primaryKey;size:36"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex"`
	PasswordHash string    `gorm:"column:password_hash;size:100;not null"`
	Username     string    `gorm:"column:username;size:30"`
	FullName     string    `gorm:"column:full_name;size:100"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing password identities.
func (Account) TableName() string {
	return "auth_accounts"
}

// SessionRecord backs one signed-in device. Access tokens reference it by id; the refresh token is stored
// hashed.
type SessionRecord struct {
	ID               string    `gorm:"column:id;primaryKey;size:36"`
	UserID           string    `gorm:"column:user_id;size:190;not null;index"`
	RefreshTokenHash string    `gorm:"column:refresh_token_hash;size:64;not null;uniqueIndex"`
	ExpiresAt        time.Time `gorm:"column:expires_at;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing sessions.
func (SessionRecord) TableName() string {
	return "auth_sessions"
}

// PasswordReset is a single-use reset token, stored hashed.
type PasswordReset struct {
	TokenHash string     `gorm:"column:token_hash;primaryKey;size:64"`
	UserID    string     `gorm:"column:user_id;size:190;not null;index"`
	ExpiresAt time.Time  `gorm:"column:expires_at;not null"`
	UsedAt    *time.Time `gorm:"column:used_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing password resets.
func (PasswordReset) TableName() string {
	return "auth_password_resets"
}

// Models lists the tables owned by this package, in migration order.
func Models() []any {
	return []any{&Account{}, &SessionRecord{}, &PasswordReset{}}
}

// User is the public shape of an identity.
type User struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	UserMetadata UserMetadata `json:"user_metadata"`
	CreatedAt    *time.Time   `json:"created_at,omitempty"`
}

// Session is returned by sign-in and refresh.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	User         User   `json:"user"`
}

// UserFromIdentity builds the public user shape from a verified identity.
func UserFromIdentity(identity Identity) User {
	return User{
		ID:           identity.UserID,
		Email:        identity.Email,
		UserMetadata: identity.Metadata,
	}
}

func userFromAccount(account Account) User {
	createdAt := account.CreatedAt
	return User{
		ID:    account.ID,
		Email: account.Email,
		UserMetadata: UserMetadata{
			Username: account.Username,
			FullName: account.FullName,
		},
		CreatedAt: &createdAt,
	}
}
