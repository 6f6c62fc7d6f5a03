package library

import (
	"strconv"
	"time"

	"github.com/uptrace/bun"
)

// User is the user model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	Username      string    `bun:"username,notnull,unique" json:"username"`
	Email         string    `bun:"email,notnull,unique" json:"email"`
	PasswordHash  string    `bun:"hashed_password,notnull" json:"-"`
	Role          UserRole  `bun:"role,notnull" json:"role"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Book is a catalog entry. Available is true iff no open Borrow references it.
type Book struct {
	bun.BaseModel `bun:"table:books,alias:bk"`
	ID            int64      `bun:"id,pk,autoincrement" json:"id"`
	Title         string     `bun:"title,notnull" json:"title"`
	Author        string     `bun:"author,notnull" json:"author"`
	ISBN          string     `bun:"isbn,notnull" json:"isbn"`
	Available     bool       `bun:"available,notnull" json:"available"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"-"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"-"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

// Borrow records a single loan. A borrow is open while ReturnedAt is nil.
type Borrow struct {
	bun.BaseModel `bun:"table:borrows,alias:brw"`
	ID            int64      `bun:"id,pk,autoincrement" json:"id"`
	UserID        int64      `bun:"user_id,notnull" json:"user_id"`
	BookID        int64      `bun:"book_id,notnull" json:"book_id"`
	BorrowedAt    time.Time  `bun:"borrowed_at,notnull" json:"borrowed_at"`
	ReturnedAt    *time.Time `bun:"returned_at,nullzero" json:"returned_at"`
}

// IsOpen reports whether the book is still out
func (b *Borrow) IsOpen() bool {
	return b != nil && b.ReturnedAt == nil
}

type authIdentity struct {
	user *User
}

func (a authIdentity) ID() string {
	return formatID(a.user.ID)
}

func (a authIdentity) Username() string {
	return a.user.Username
}

func (a authIdentity) Email() string {
	return a.user.Email
}

func (a authIdentity) Role() string {
	return string(a.user.Role)
}

// NewIdentity exposes a user through the Identity interface
func NewIdentity(user *User) Identity {
	return authIdentity{user: user}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
