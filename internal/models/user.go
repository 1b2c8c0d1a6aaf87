package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "User"
	RoleAdmin Role = "Admin"
)

// ParseRole accepte "user"/"admin" quelle que soit la casse.
func ParseRole(s string) (Role, bool) {
	switch {
	case strings.EqualFold(s, string(RoleUser)):
		return RoleUser, true
	case strings.EqualFold(s, string(RoleAdmin)):
		return RoleAdmin, true
	}
	return "", false
}

type Roles []Role

func (r Roles) Has(role Role) bool {
	for _, have := range r {
		if have == role {
			return true
		}
	}
	return false
}

// With retourne une copie contenant role, sans doublon.
func (r Roles) With(role Role) Roles {
	if r.Has(role) {
		return append(Roles(nil), r...)
	}
	return append(append(Roles(nil), r...), role)
}

func (r Roles) Strings() []string {
	out := make([]string, len(r))
	for i, role := range r {
		out[i] = string(role)
	}
	return out
}

type User struct {
	ID           string    `bson:"_id" json:"id"`
	Username     string    `bson:"username" json:"username"`
	PasswordHash string    `bson:"password_hash" json:"-"`
	Roles        Roles     `bson:"roles" json:"roles"`
	Active       bool      `bson:"active" json:"active"`
	CreatedAt    time.Time `bson:"created_at" json:"createdAt"`
}

func (u *User) IsAdmin() bool {
	return u.Roles.Has(RoleAdmin)
}
