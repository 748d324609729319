package dto

// RegisterRequest payload for new accounts.
type RegisterRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is the login response: a token and the account's display
// name on success, a null token and a reason on failure.
type AuthResponse struct {
	Token       *string `json:"token"`
	DisplayName string  `json:"displayName,omitempty"`
	Reason      string  `json:"reason,omitempty"`
}
