package models

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Username  string     `json:"username"`
	Message   string     `json:"message"`
	JWT       string     `json:"jwt"`
	ExpiresAt *Timestamp `json:"expiresAt,omitempty"`
	Status    bool       `json:"status"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
	Status  bool   `json:"status"`
}

// UserProfile is the authenticated user's account view.
type UserProfile struct {
	UserID      string    `json:"userId"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	FirstName   string    `json:"firstName,omitempty"`
	LastName    string    `json:"lastName,omitempty"`
	FullName    string    `json:"fullName,omitempty"`
	Role        string    `json:"role"`
	Authorities []string  `json:"authorities"`
	IsVerified  bool      `json:"isVerified"`
	CreatedAt   Timestamp `json:"createdAt"`
}
