package models

// Operator roles carried in access tokens.
const (
	RoleOperator = 1
	RoleAdmin    = 2
)

// User is a staff account allowed to read any statement and to drive deposit
// lifecycle callbacks.
type User struct {
	Entity
	Email    string `gorm:"column:email;size:191;uniqueIndex;not null" json:"email"`
	Name     string `gorm:"column:name" json:"name"`
	Password string `gorm:"column:password;not null" json:"-"`
	RoleID   int    `gorm:"column:role_id;not null" json:"role_id"`
	Enabled  bool   `gorm:"column:enabled;not null" json:"enabled"`
}

func (User) TableName() string {
	return "users"
}
