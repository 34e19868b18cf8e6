package service

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUsernameNotFound  = errors.New("username not found")
	ErrPasswordIncorrect = errors.New("password incorrect")
	ErrAdminSecretWrong  = errors.New("admin password wrong")
	ErrDuplicateUsername = errors.New("username already exists")
	ErrMissingToken      = errors.New("token required")
	ErrTokenNotFound     = errors.New("token not found")

	ErrNoFile          = errors.New("no file uploaded")
	ErrNotAnImage      = errors.New("file is not a supported image")
	ErrMissingFilename = errors.New("filename required")
	ErrNotOwner        = errors.New("image belongs to another user")
	ErrImageNotFound   = errors.New("image not found")
	ErrNameCollision   = errors.New("image name already taken")
)
