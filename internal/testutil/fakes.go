// Package testutil provides in-memory stand-ins for the Postgres and blob
// backends so services and handlers can be exercised without infrastructure.
package testutil

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"path/filepath"
	"sync"
	"time"

	"imagevault/internal/models"
	"imagevault/internal/repository"
	"imagevault/internal/security"
	"imagevault/internal/storage"
)

// UserStore mirrors repository.UserRepository semantics in memory.
type UserStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*models.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[int64]*models.User)}
}

func (s *UserStore) Create(_ context.Context, username string, passwordHash, tokenHash []byte) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == username {
			return models.User{}, repository.ErrDuplicateUsername
		}
		if tokenHash != nil && bytes.Equal(u.TokenHash, tokenHash) {
			return models.User{}, repository.ErrTokenCollision
		}
	}

	s.nextID++
	now := time.Now()
	u := &models.User{
		ID:           s.nextID,
		Username:     username,
		PasswordHash: passwordHash,
		TokenHash:    tokenHash,
		ImageSeq:     models.InitialImageSeq,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[u.ID] = u
	return *u, nil
}

func (s *UserStore) FindByUsername(_ context.Context, username string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return *u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *UserStore) FindByTokenHash(_ context.Context, tokenHash []byte) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.TokenHash != nil && bytes.Equal(u.TokenHash, tokenHash) {
			return *u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *UserStore) GetByID(_ context.Context, id int64) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return *u, nil
}

func (s *UserStore) SetTokenHash(_ context.Context, id int64, tokenHash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.TokenHash = tokenHash
	return nil
}

func (s *UserStore) SetPasswordHash(_ context.Context, id int64, passwordHash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (s *UserStore) ReserveImageSeq(_ context.Context, id int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	seq := u.ImageSeq
	u.ImageSeq++
	return seq, nil
}

// Seed inserts a user with an arbitrary stored password hash, e.g. a legacy bcrypt one.
func (s *UserStore) Seed(username string, passwordHash []byte) models.User {
	u, err := s.Create(context.Background(), username, passwordHash, nil)
	if err != nil {
		panic(err)
	}
	return u
}

// BlobStore is an in-memory storage.Store.
type BlobStore struct {
	mu      sync.Mutex
	objects map[string]blob
	now     func() time.Time

	// StatErr, when set, is returned by every Stat call.
	StatErr error
}

type blob struct {
	data    []byte
	ct      string
	modTime time.Time
}

func NewBlobStore() *BlobStore {
	return &BlobStore{objects: make(map[string]blob), now: time.Now}
}

// SetClock overrides the modification time source.
func (s *BlobStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *BlobStore) Create(_ context.Context, key string, data []byte, contentType string) (storage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; ok {
		return storage.Object{}, storage.ErrExists
	}
	b := blob{data: append([]byte(nil), data...), ct: contentType, modTime: s.now()}
	s.objects[key] = b
	return objectOf(key, b), nil
}

func (s *BlobStore) Stat(_ context.Context, key string) (storage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StatErr != nil {
		return storage.Object{}, s.StatErr
	}
	b, ok := s.objects[key]
	if !ok {
		return storage.Object{}, storage.ErrNotFound
	}
	return objectOf(key, b), nil
}

func (s *BlobStore) Open(ctx context.Context, key string) (io.ReadCloser, storage.Object, error) {
	obj, err := s.Stat(ctx, key)
	if err != nil {
		return nil, storage.Object{}, err
	}
	s.mu.Lock()
	data := s.objects[key].data
	s.mu.Unlock()
	return io.NopCloser(bytes.NewReader(data)), obj, nil
}

func (s *BlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return storage.ErrNotFound
	}
	delete(s.objects, key)
	return nil
}

func (s *BlobStore) Ping(context.Context) error { return nil }

// Put stores an object directly, bypassing the no-overwrite rule.
func (s *BlobStore) Put(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = blob{data: data, ct: mime.TypeByExtension(filepath.Ext(key)), modTime: s.now()}
}

func (s *BlobStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}

func objectOf(key string, b blob) storage.Object {
	return storage.Object{Key: key, Size: int64(len(b.data)), ModTime: b.modTime, ContentType: b.ct}
}

// Encoder prefixes the payload with the target format so tests can see what was requested.
type Encoder struct {
	Err error
}

func (e Encoder) Encode(data []byte, format models.ImageFormat) ([]byte, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	return append([]byte(string(format)+":"), data...), nil
}

// Activity records entries in memory.
type Activity struct {
	mu      sync.Mutex
	entries []models.ActivityEntry
	Err     error
}

func (a *Activity) Record(_ context.Context, entry models.ActivityEntry) error {
	if a.Err != nil {
		return a.Err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *Activity) Entries() []models.ActivityEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.ActivityEntry(nil), a.entries...)
}

// JPEG is a minimal payload that passes magic-byte sniffing as a JPEG.
var JPEG = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

// PNG is a minimal payload that passes magic-byte sniffing as a PNG.
var PNG = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00, 0x00, 0x00, 0x0d}

var ErrBoom = errors.New("boom")

// FastHash is a cheap stand-in for argon2id in tests. It keeps the argon2id
// encoding so stored hashes are not treated as legacy.
func FastHash(password string) ([]byte, error) {
	return security.HashPasswordWithParams(password, security.Argon2Params{
		Time: 1, Memory: 8, Threads: 1, KeyLen: 16, SaltLen: 8,
	})
}
