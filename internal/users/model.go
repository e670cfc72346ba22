package users

import (
	"strings"
	"time"
)

// User captures one account keyed by the normalized form of the name the
// person typed. The normalized key is the identity: the same person entering
// "Ann" or " ann " from another device must resolve to the same row. The
// generated user id is carried along for clients but never used for lookups.
type User struct {
	NameKey   string    `gorm:"column:name_key;primaryKey;size:190;not null"`
	UserID    string    `gorm:"column:user_id;size:64;not null;uniqueIndex"`
	Name      string    `gorm:"column:name;size:190;not null"`
	Career    string    `gorm:"column:career;size:190"`
	Level     string    `gorm:"column:level;size:190"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	LastLogin time.Time `gorm:"column:last_login;not null"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

// NormalizeName reduces a display name to its identity key.
func NormalizeName(rawName string) string {
	return strings.ToLower(strings.TrimSpace(rawName))
}
