package domain

// Role of a user.
type Role string

const (
	RoleAdmin         Role = "admin"
	RoleSeller        Role = "seller"
	RoleDeliveryAgent Role = "delivery_agent"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleSeller || r == RoleDeliveryAgent
}

// User Model
type User struct {
	ID          uint   `gorm:"primaryKey" json:"id"`                    // Primary key
	Username    string `gorm:"size:64;unique;not null" json:"username"` // Unique username
	Password    string `gorm:"not null" json:"-"`                       // Hashed password
	Role        Role   `gorm:"size:16;not null" json:"role"`            // admin, seller or delivery_agent
	Permissions string `gorm:"size:512" json:"permissions,omitempty"`   // Comma separated grants on top of the role
}
