package model

import "time"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Active       bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AccessClaims are the verified contents of an access token.
type AccessClaims struct {
	UserID    string    `json:"sub"`
	Role      Role      `json:"role"`
	SessionID string    `json:"sid"`
	Type      string    `json:"typ"`
	TokenID   string    `json:"jti"`
	ExpiresAt time.Time `json:"exp"`
}

type AuthUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
}

func (u User) Public() AuthUser {
	return AuthUser{ID: u.ID, Email: u.Email, FullName: u.FullName, Role: u.Role}
}

// TokenPair is returned by issuance and rotation. RefreshToken only ever
// leaves the server inside the HTTP-only cookie.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
	SessionID        string    `json:"-"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	User             AuthUser  `json:"user"`
}

type UserQuery struct {
	Search string
	Role   *Role
	Active *bool
	Page   int
	Limit  int
}

type UserWithPermissions struct {
	User
	Permissions map[Page]bool `json:"permissions"`
}

type UserListData struct {
	Items []UserWithPermissions `json:"items"`
}

type MeData struct {
	User        AuthUser      `json:"user"`
	Permissions map[Page]bool `json:"permissions"`
}
