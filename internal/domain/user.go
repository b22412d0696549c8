package domain

import "time"

// User representa una cuenta registrada. Password siempre guarda un hash.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	FullName  string    `json:"full_name"`
	Address   string    `json:"address"`
	Password  string    `json:"-"`
	IsActive  bool      `json:"is_active"`
	IsDeleted bool      `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewUser agrupa los campos necesarios para insertar una cuenta.
type NewUser struct {
	Email        string
	Phone        string
	FullName     string
	Address      string
	PasswordHash string
}

// UserPatch describe una actualizacion parcial; solo aplican los campos no nil.
type UserPatch struct {
	FullName *string `json:"full_name"`
	Phone    *string `json:"phone"`
	Address  *string `json:"address"`
}

// Empty reporta si el patch no trae ningun campo.
func (p UserPatch) Empty() bool {
	return p.FullName == nil && p.Phone == nil && p.Address == nil
}

// PublicProfile es la vista publica devuelta en registro y login.
type PublicProfile struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

// UserDetails es la vista devuelta por GET /accounts/me.
type UserDetails struct {
	ID        int64     `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
}

func (u User) Profile() PublicProfile {
	return PublicProfile{
		Email:    u.Email,
		FullName: u.FullName,
		Phone:    u.Phone,
		Address:  u.Address,
	}
}

func (u User) Details() UserDetails {
	return UserDetails{
		ID:        u.ID,
		FullName:  u.FullName,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		Address:   u.Address,
		Phone:     u.Phone,
	}
}
