package model

// AccountID identifies a balance holder. Participants use their Telegram
// user id in decimal form; the goal pool uses a configured short id.
type AccountID string

// Account is a named balance holder.
type Account struct {
	ID          AccountID `json:"id"`
	DisplayName string    `json:"display_name"`
	Pool        bool      `json:"pool,omitempty"`
}

// Standing is one row of the leaderboard.
type Standing struct {
	ID      AccountID `json:"id"`
	Name    string    `json:"name"`
	Balance int64     `json:"balance"`
	Pool    bool      `json:"pool,omitempty"`
}
