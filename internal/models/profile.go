package models

import (
	"time"

	"github.com/google/uuid"
)

type Profile struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Username   string
	Bio        string
	PhotoURL   string
	IsComplete bool
	CreatedAt  time.Time
}

// Uploaded profile photo as received from the client
type Photo struct {
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}
