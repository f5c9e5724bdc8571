package models

import (
	"time"
)

// Game is a board game known to the platform. The ID is a stable opaque
// slug (e.g. "tic-tac-toe") chosen by the uploader, not a generated UUID.
type Game struct {
	ID        string    `json:"id" gorm:"type:varchar(128);primary_key"`
	Name      string    `json:"name" gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}

func (Game) TableName() string {
	return "meepleai_games"
}
