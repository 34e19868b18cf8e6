package service

// Identity is proof that a caller authenticated as an account. Values are only
// produced by AuthService, so holding one means a credential or token was checked.
type Identity struct {
	userID   int64
	username string
}

func (i Identity) UserID() int64 {
	return i.userID
}

func (i Identity) Username() string {
	return i.username
}

// Valid reports whether the identity came from AuthService rather than a zero value.
func (i Identity) Valid() bool {
	return i.userID > 0
}
