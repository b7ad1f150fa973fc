package domain

// User is the already-authenticated identity a session acts as.
// Several sessions (browser tabs) may share the same User.ID.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"` // 头像 URL，可选
}

// Valid reports whether the user carries the fields the room logic relies on.
func (u *User) Valid() bool {
	return u != nil && u.ID != "" && u.Name != ""
}
