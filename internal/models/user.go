package models

import "time"

// User is the local identity record. Guests have IsAnonymous set and no email.
type User struct {
	ID           string    `json:"id"`
	Email        *string   `json:"email"`
	PasswordHash string    `json:"-"`
	IsAnonymous  bool      `json:"isAnonymous"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Type is "guest" for anonymous users and "regular" otherwise.
func (u *User) Type() string {
	if u.IsAnonymous {
		return "guest"
	}
	return "regular"
}
