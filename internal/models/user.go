package models

import "time"

// User is the persisted membership identity. Username is unique within
// ApplicationName; hash and salt are never serialized to JSON.
type User struct {
	ID              string     `bson:"_id,omitempty" json:"id"`
	Username        string     `bson:"username" json:"username"`
	Email           string     `bson:"email" json:"email"`
	PasswordHash    string     `bson:"passwordHash" json:"-"`
	PasswordSalt    string     `bson:"passwordSalt" json:"-"`
	ApplicationName string     `bson:"applicationName" json:"applicationName"`
	DateCreated     time.Time  `bson:"dateCreated" json:"dateCreated"`
	DateLastLogin   *time.Time `bson:"dateLastLogin,omitempty" json:"dateLastLogin,omitempty"`
	// Version is managed by the store and bumped on every committed replace.
	Version int64 `bson:"version" json:"-"`
}

// Clone returns a deep copy so callers can mutate it without touching
// whatever the store handed out.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.DateLastLogin != nil {
		t := *u.DateLastLogin
		c.DateLastLogin = &t
	}
	return &c
}
