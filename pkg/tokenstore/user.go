package tokenstore

import "encoding/json"

type Role string

const (
	RoleAdmin          Role = "admin"
	RoleDeviceOperator Role = "device_operator"
	RoleUser           Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDeviceOperator, RoleUser:
		return true
	}
	return false
}

// User is the authenticated identity as the backend reports it.
type User struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	FullName     string `json:"full_name"`
	Role         Role   `json:"role"`
	Phone        string `json:"phone,omitempty"`
	TwoFAEnabled bool   `json:"two_fa_enabled"`
	TOTPEnabled  bool   `json:"is_totp_enabled"`
}

// UnmarshalJSON accepts the older is_2fa_enabled spelling some backend
// revisions still send.
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	aux := struct {
		*plain
		Legacy2FA *bool `json:"is_2fa_enabled"`
	}{plain: (*plain)(u)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Legacy2FA != nil && *aux.Legacy2FA {
		u.TwoFAEnabled = true
	}
	return nil
}
