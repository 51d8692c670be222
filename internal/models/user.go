package models

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

type User struct {
	ID        string `json:"id" db:"id" firestore:"id"`
	Email     string `json:"email" db:"email" firestore:"email"`
	Password  string `json:"-" db:"password" firestore:"password"` // Never return password in JSON
	Name      string `json:"name" db:"name" firestore:"name"`
	Role      string `json:"role" db:"role" firestore:"role"` // "staff" or "admin"
	CreatedAt int64  `json:"created_at" db:"created_at" firestore:"created_at"`
	UpdatedAt int64  `json:"updated_at" db:"updated_at" firestore:"updated_at"`
}

type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CreatedAt int64  `json:"created_at"`
}

func (u *User) ToUserResponse() UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}
