package user

import "github.com/xraph/bookstore/types"

// User is a buyer or seller account. Balance is held in minor currency
// units and never goes below zero.
type User struct {
	types.Entity
	ID           string `json:"id"`
	PasswordHash string `json:"-"`
	Balance      int64  `json:"balance"`
}

// Clone returns a copy safe to hand across goroutines.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
