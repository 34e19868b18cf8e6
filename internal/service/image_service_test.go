package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagevault/internal/models"
	"imagevault/internal/testutil"
)

type imageFixture struct {
	auth     *AuthService
	images   *ImageService
	users    *testutil.UserStore
	blobs    *testutil.BlobStore
	activity *testutil.Activity
}

func newImageFixture(t *testing.T, fallback *Fallback) *imageFixture {
	t.Helper()
	users := testutil.NewUserStore()
	blobs := testutil.NewBlobStore()
	activity := &testutil.Activity{}
	return &imageFixture{
		auth:     NewAuthService(users, adminSecret, zerolog.Nop(), WithPasswordHasher(testutil.FastHash)),
		images:   NewImageService(NewNamer(users), blobs, testutil.Encoder{}, activity, fallback, zerolog.Nop()),
		users:    users,
		blobs:    blobs,
		activity: activity,
	}
}

func (f *imageFixture) account(t *testing.T, username string) Identity {
	t.Helper()
	res, err := f.auth.CreateAccount(context.Background(), adminSecret, username, "pw")
	require.NoError(t, err)
	return res.Identity
}

func (f *imageFixture) upload(t *testing.T, id Identity, format string) UploadResult {
	t.Helper()
	res, err := f.images.Upload(context.Background(), id, UploadInput{
		Data:             testutil.JPEG,
		OriginalFilename: "cat.jpg",
		Format:           format,
	})
	require.NoError(t, err)
	return res
}

func TestTargetFormat(t *testing.T) {
	cases := []struct {
		requested, filename string
		want                models.ImageFormat
	}{
		{"webp", "a.jpg", models.FormatWEBP},
		{"JPG", "a.png", models.FormatJPEG},
		{"", "a.PNG", models.FormatPNG},
		{"gif", "a.webp", models.FormatWEBP},
		{"", "a.gif", models.FormatJPEG},
		{"", "", models.FormatJPEG},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TargetFormat(tc.requested, tc.filename), "%q %q", tc.requested, tc.filename)
	}
}

func TestUploadAssignsIncreasingNames(t *testing.T) {
	f := newImageFixture(t, nil)
	alice := f.account(t, "alice")

	for i, want := range []string{"1_1", "1_2", "1_3"} {
		res := f.upload(t, alice, "")
		assert.Equal(t, want, res.Name, "upload %d", i)
		assert.Equal(t, want+".jpg", res.Key)
	}

	res := f.upload(t, alice, "webp")
	assert.Equal(t, "1_4.webp", res.Key)
	assert.Equal(t, models.FormatWEBP, res.Format)
}

func TestUploadConcurrentNamesAreUnique(t *testing.T) {
	f := newImageFixture(t, nil)
	alice := f.account(t, "alice")

	const n = 20
	names := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.images.Upload(context.Background(), alice, UploadInput{Data: testutil.PNG, Format: "png"})
			if err == nil {
				names <- res.Name
			}
		}()
	}
	wg.Wait()
	close(names)

	seen := map[string]bool{}
	for name := range names {
		assert.False(t, seen[name], "duplicate %s", name)
		seen[name] = true
	}
	assert.Len(t, seen, n)
}

func TestUploadValidation(t *testing.T) {
	f := newImageFixture(t, nil)
	alice := f.account(t, "alice")
	ctx := context.Background()

	_, err := f.images.Upload(ctx, Identity{}, UploadInput{Data: testutil.JPEG})
	assert.ErrorIs(t, err, ErrTokenNotFound)

	_, err = f.images.Upload(ctx, alice, UploadInput{})
	assert.ErrorIs(t, err, ErrNoFile)

	_, err = f.images.Upload(ctx, alice, UploadInput{Data: []byte("plain text")})
	assert.ErrorIs(t, err, ErrNotAnImage)

	assert.Empty(t, f.blobs.Keys())
	res := f.upload(t, alice, "")
	assert.Equal(t, "1_1", res.Name, "rejected uploads must not consume names")
}

func TestUploadEncodeFailureIsInternal(t *testing.T) {
	users := testutil.NewUserStore()
	auth := NewAuthService(users, adminSecret, zerolog.Nop(), WithPasswordHasher(testutil.FastHash))
	images := NewImageService(NewNamer(users), testutil.NewBlobStore(), testutil.Encoder{Err: testutil.ErrBoom}, nil, nil, zerolog.Nop())

	res, err := auth.CreateAccount(context.Background(), adminSecret, "alice", "pw")
	require.NoError(t, err)

	_, err = images.Upload(context.Background(), res.Identity, UploadInput{Data: testutil.JPEG})
	require.Error(t, err)
	assert.ErrorIs(t, err, testutil.ErrBoom)
	assert.NotErrorIs(t, err, ErrNotAnImage)
}

func TestUploadRefusesToOverwrite(t *testing.T) {
	f := newImageFixture(t, nil)
	alice := f.account(t, "alice")
	f.blobs.Put("1_1.jpg", []byte("existing"))

	_, err := f.images.Upload(context.Background(), alice, UploadInput{Data: testutil.JPEG})
	assert.ErrorIs(t, err, ErrNameCollision)

	res := f.upload(t, alice, "")
	assert.Equal(t, "1_2", res.Name)
}

func TestUploadRecordsActivity(t *testing.T) {
	f := newImageFixture(t, nil)
	alice := f.account(t, "alice")

	_, err := f.images.Upload(context.Background(), alice, UploadInput{
		Data:             testutil.JPEG,
		OriginalFilename: "cat.jpg",
		Request:          RequestMeta{IP: "10.0.0.1", UserAgent: "curl", Referer: "http://x"},
	})
	require.NoError(t, err)

	entries := f.activity.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].Username)
	assert.Equal(t, "1_1.jpg", entries[0].SavedFilename)
	assert.Equal(t, "cat.jpg", entries[0].PostedFilename)
	assert.Equal(t, "10.0.0.1", entries[0].IP)
	assert.Equal(t, "curl", entries[0].UserAgent)
}

func TestUploadSurvivesActivityFailure(t *testing.T) {
	f := newImageFixture(t, nil)
	f.activity.Err = errors.New("db down")
	alice := f.account(t, "alice")

	res := f.upload(t, alice, "")
	assert.Equal(t, "1_1", res.Name)
	assert.Contains(t, f.blobs.Keys(), "1_1.jpg")
}

func TestDeleteOwnership(t *testing.T) {
	f := newImageFixture(t, nil)
	alice := f.account(t, "alice")
	bob := f.account(t, "bob")
	ctx := context.Background()

	f.upload(t, alice, "")

	_, err := f.images.Delete(ctx, bob, "1_1")
	assert.ErrorIs(t, err, ErrNotOwner)
	_, err = f.images.Delete(ctx, bob, "1_99")
	assert.ErrorIs(t, err, ErrNotOwner, "existence must not leak")
	_, err = f.images.Delete(ctx, bob, "junk")
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = f.images.Delete(ctx, alice, "")
	assert.ErrorIs(t, err, ErrMissingFilename)

	_, err = f.images.Delete(ctx, alice, "1_99")
	assert.ErrorIs(t, err, ErrImageNotFound)

	obj, err := f.images.Delete(ctx, alice, "1_1.jpg")
	require.NoError(t, err)
	assert.Equal(t, "1_1.jpg", obj.Key)

	_, err = f.images.Delete(ctx, alice, "1_1")
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestResolveForServing(t *testing.T) {
	f := newImageFixture(t, nil)
	alice := f.account(t, "alice")
	ctx := context.Background()
	f.upload(t, alice, "png")

	obj, err := f.images.ResolveForServing(ctx, "1_1")
	require.NoError(t, err)
	assert.Equal(t, "1_1.png", obj.Key)

	obj, err = f.images.ResolveForServing(ctx, "1_1.png")
	require.NoError(t, err)
	assert.Equal(t, "1_1.png", obj.Key)

	for _, name := range []string{"1_1.jpg", "1_1.exe", "1_2", "../1_1", "abc"} {
		_, err = f.images.ResolveForServing(ctx, name)
		assert.ErrorIs(t, err, ErrImageNotFound, name)
	}
}

func TestNamesAreCanonicalised(t *testing.T) {
	f := newImageFixture(t, nil)
	alice := f.account(t, "alice")
	bob := f.account(t, "bob")
	ctx := context.Background()
	f.upload(t, alice, "")
	f.upload(t, alice, "")

	for _, name := range []string{"1_1.jpeg", "01_1", "001_1.jpg", "1_01"} {
		obj, err := f.images.ResolveForServing(ctx, name)
		require.NoError(t, err, name)
		assert.Equal(t, "1_1.jpg", obj.Key, name)
	}

	_, err := f.images.Delete(ctx, bob, "01_1")
	assert.ErrorIs(t, err, ErrNotOwner)

	obj, err := f.images.Delete(ctx, alice, "1_1.jpeg")
	require.NoError(t, err)
	assert.Equal(t, "1_1.jpg", obj.Key)

	obj, err = f.images.Delete(ctx, alice, "01_2")
	require.NoError(t, err)
	assert.Equal(t, "1_2.jpg", obj.Key)

	_, err = f.images.Delete(ctx, alice, "1_3.gif")
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestServeWithFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "404.png")
	require.NoError(t, os.WriteFile(path, testutil.PNG, 0o644))
	fallback, err := LoadFallback(path)
	require.NoError(t, err)
	require.Equal(t, "image/png", fallback.ContentType)

	f := newImageFixture(t, fallback)
	alice := f.account(t, "alice")
	f.upload(t, alice, "")

	res, err := f.images.Serve(context.Background(), "1_1")
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.False(t, res.Fallback)
	assert.Equal(t, "image/jpeg", res.Object.ContentType)
	assert.Equal(t, append([]byte("jpeg:"), testutil.JPEG...), body)

	res, err = f.images.Serve(context.Background(), "1_2")
	require.NoError(t, err)
	body, _ = io.ReadAll(res.Body)
	res.Body.Close()
	assert.True(t, res.Fallback)
	assert.Equal(t, testutil.PNG, body)
}

func TestServeWithoutFallback(t *testing.T) {
	f := newImageFixture(t, nil)
	_, err := f.images.Serve(context.Background(), "1_1")
	assert.ErrorIs(t, err, ErrImageNotFound)

	fb, err := LoadFallback("")
	assert.NoError(t, err)
	assert.Nil(t, fb)
}

func TestListNewestFirstSkippingGaps(t *testing.T) {
	f := newImageFixture(t, nil)
	alice := f.account(t, "alice")
	bob := f.account(t, "bob")
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	f.blobs.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	})

	f.upload(t, alice, "")
	f.upload(t, alice, "png")
	f.upload(t, alice, "webp")
	f.upload(t, bob, "")
	_, err := f.images.Delete(ctx, alice, "1_2")
	require.NoError(t, err)

	records, err := f.images.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "1_3", records[0].Name)
	assert.Equal(t, models.FormatWEBP, records[0].Format)
	assert.Equal(t, "1_1", records[1].Name)
	assert.True(t, records[0].Modified.After(records[1].Modified))

	records, err = f.images.List(ctx, bob)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "2_1.jpg", records[0].Key)
}

func TestListEmpty(t *testing.T) {
	f := newImageFixture(t, nil)
	alice := f.account(t, "alice")

	records, err := f.images.List(context.Background(), alice)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestListSurfacesStorageErrors(t *testing.T) {
	f := newImageFixture(t, nil)
	alice := f.account(t, "alice")
	f.upload(t, alice, "")
	f.blobs.StatErr = testutil.ErrBoom

	_, err := f.images.List(context.Background(), alice)
	assert.ErrorIs(t, err, testutil.ErrBoom)

	_, err = f.images.ResolveForServing(context.Background(), "1_1")
	assert.ErrorIs(t, err, testutil.ErrBoom)
	assert.NotErrorIs(t, err, ErrImageNotFound)
}

func TestAliceScenario(t *testing.T) {
	f := newImageFixture(t, nil)
	ctx := context.Background()

	created, err := f.auth.CreateAccount(ctx, adminSecret, "alice", "pw1")
	require.NoError(t, err)
	alice, err := f.auth.ResolveToken(ctx, created.Token)
	require.NoError(t, err)

	first := f.upload(t, alice, "")
	second := f.upload(t, alice, "")
	assert.Equal(t, "1_1", first.Name)
	assert.Equal(t, "1_2", second.Name)

	_, err = f.images.Delete(ctx, alice, "1_1")
	require.NoError(t, err)

	records, err := f.images.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1_2", records[0].Name)

	third := f.upload(t, alice, "")
	assert.Equal(t, "1_3", third.Name, "names are never reused")

	rotated, err := f.auth.RotateToken(ctx, "alice", "pw1")
	require.NoError(t, err)
	_, err = f.auth.ResolveToken(ctx, created.Token)
	assert.ErrorIs(t, err, ErrTokenNotFound)
	_, err = f.auth.ResolveToken(ctx, rotated)
	assert.NoError(t, err)
}
