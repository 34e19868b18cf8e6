package service

import (
	"context"
	"errors"
	"fmt"

	"imagevault/internal/naming"
	"imagevault/internal/repository"
)

// Namer hands out per-user image names.
type Namer struct {
	users CredentialStore
}

func NewNamer(users CredentialStore) *Namer {
	return &Namer{users: users}
}

// Allocate reserves the caller's next sequence number. The counter advances in the
// same statement, so concurrent uploads never share a number; an upload that fails
// later leaves a gap instead of a reused name.
func (n *Namer) Allocate(ctx context.Context, identity Identity) (naming.Name, error) {
	seq, err := n.users.ReserveImageSeq(ctx, identity.userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return naming.Name{}, ErrTokenNotFound
		}
		return naming.Name{}, fmt.Errorf("reserve sequence: %w", err)
	}
	return naming.Name{OwnerID: identity.userID, Sequence: seq}, nil
}

// Next returns the sequence number the next upload would receive.
func (n *Namer) Next(ctx context.Context, identity Identity) (int64, error) {
	user, err := n.users.GetByID(ctx, identity.userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrTokenNotFound
		}
		return 0, fmt.Errorf("load user: %w", err)
	}
	return user.ImageSeq, nil
}

// Owns reports whether name belongs to identity, judged from the name alone.
func (n *Namer) Owns(identity Identity, name string) bool {
	owner, err := naming.ParseOwnerID(name)
	return err == nil && owner == identity.userID
}
