package domain

import "time"

// Token describes issued bearer token metadata. Tokens themselves are
// stateless JWTs and are never persisted.
type Token struct {
	Subject   string
	UserID    string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}
