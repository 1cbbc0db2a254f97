package models

import (
	"time"
)

// Associate is a member of the shared pool staking through bookmaker accounts.
type Associate struct {
	ID             string    `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	Alias          string    `json:"alias" db:"alias"`
	TelegramChatID string    `json:"telegram_chat_id,omitempty" db:"telegram_chat_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

type Bookmaker struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
