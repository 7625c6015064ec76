package models

// User represents a Telegram account known to the backend.
type User struct {
	// ID is the Telegram user id.
	ID string

	// Name is the display name (Telegram first name).
	Name string

	// Username is the optional @handle, without the @.
	Username string

	// CreatedAt is the Unix timestamp when the user first authenticated.
	CreatedAt int64

	// UpdatedAt is the Unix timestamp of the last profile refresh.
	UpdatedAt int64
}
