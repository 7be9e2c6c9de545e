//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

// UserLogin is a local credential row used by the local login strategy.
type UserLogin struct {
	Username     string `db:"username"`
	UserID       string `db:"user_id"`
	PasswordHash string `db:"password_hash"`
	Role         string `db:"role"`
	FirstName    string `db:"first_name"`
	LastName     string `db:"last_name"`
	ScreenName   string `db:"screen_name"`
}
