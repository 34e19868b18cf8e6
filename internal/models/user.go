package models

import "time"

type User struct {
	ID           int64
	Username     string
	PasswordHash []byte
	TokenHash    []byte
	ImageSeq     int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// InitialImageSeq is the first sequence number handed out to a new account.
const InitialImageSeq int64 = 1
