package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagevault/internal/config"
	"imagevault/internal/handlers"
	"imagevault/internal/server"
	"imagevault/internal/service"
	"imagevault/internal/testutil"
)

const adminSecret = "operator-secret"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type listData struct {
	Images []struct {
		Filename string `json:"filename"`
		Name     string `json:"name"`
		Size     int64  `json:"size"`
		URL      string `json:"url"`
	} `json:"images"`
	Count    int    `json:"count"`
	Username string `json:"username"`
}

type harness struct {
	t      *testing.T
	engine *gin.Engine
	blobs  *testutil.BlobStore
}

func newHarness(t *testing.T, fallback *service.Fallback, mutate ...func(*config.AppConfig)) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.AppConfig{
		Environment: "test",
		HTTP:        config.HTTPConfig{MaxUploadBytes: 1 << 20},
		Storage:     config.StorageConfig{PublicBaseURL: "http://vault.test/"},
	}
	for _, m := range mutate {
		m(cfg)
	}

	users := testutil.NewUserStore()
	blobs := testutil.NewBlobStore()
	auth := service.NewAuthService(users, adminSecret, zerolog.Nop(), service.WithPasswordHasher(testutil.FastHash))
	images := service.NewImageService(service.NewNamer(users), blobs, testutil.Encoder{}, &testutil.Activity{}, fallback, zerolog.Nop())

	set := handlers.NewHandlerSet(zerolog.Nop(), cfg, handlers.Deps{
		Auth:   auth,
		Images: images,
		Store:  blobs,
	})
	return &harness{t: t, engine: server.NewEngine(cfg, zerolog.Nop(), set), blobs: blobs}
}

func (h *harness) do(req *http.Request) (*httptest.ResponseRecorder, envelope) {
	h.t.Helper()
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(h.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func (h *harness) postJSON(path string, body any) (*httptest.ResponseRecorder, envelope) {
	h.t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(h.t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return h.do(req)
}

func (h *harness) createUser(username, password string) string {
	h.t.Helper()
	w, env := h.postJSON("/create_user", map[string]string{
		"admin_password": adminSecret,
		"username":       username,
		"password":       password,
	})
	require.Equal(h.t, http.StatusOK, w.Code, w.Body.String())
	var data struct{ Token string }
	require.NoError(h.t, json.Unmarshal(env.Data, &data))
	return data.Token
}

func (h *harness) upload(token string, data []byte, format string) (*httptest.ResponseRecorder, envelope) {
	h.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if token != "" {
		require.NoError(h.t, mw.WriteField("token", token))
	}
	if format != "" {
		require.NoError(h.t, mw.WriteField("format", format))
	}
	if data != nil {
		part, err := mw.CreateFormFile("image", "photo.jpg")
		require.NoError(h.t, err)
		_, err = part.Write(data)
		require.NoError(h.t, err)
	}
	require.NoError(h.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return h.do(req)
}

func (h *harness) uploadName(token string) string {
	h.t.Helper()
	w, env := h.upload(token, testutil.JPEG, "")
	require.Equal(h.t, http.StatusOK, w.Code, w.Body.String())
	var data struct{ Filename string }
	require.NoError(h.t, json.Unmarshal(env.Data, &data))
	return data.Filename
}

func (h *harness) deleteImage(token, filename string) (*httptest.ResponseRecorder, envelope) {
	h.t.Helper()
	raw, _ := json.Marshal(map[string]string{"token": token, "filename": filename})
	req := httptest.NewRequest(http.MethodDelete, "/delete_image", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return h.do(req)
}

func (h *harness) list(token string) (*httptest.ResponseRecorder, listData) {
	h.t.Helper()
	w, env := h.do(httptest.NewRequest(http.MethodGet, "/api/user-images?token="+url.QueryEscape(token), nil))
	var data listData
	if w.Code == http.StatusOK {
		require.NoError(h.t, json.Unmarshal(env.Data, &data))
	}
	return w, data
}

func TestAliceScenario(t *testing.T) {
	h := newHarness(t, nil)

	t1 := h.createUser("alice", "pw1")
	assert.Len(t, t1, 64)

	assert.Equal(t, "1_1", h.uploadName(t1))
	assert.Equal(t, "1_2", h.uploadName(t1))

	w, data := h.list(t1)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, data.Count)
	assert.Equal(t, "alice", data.Username)

	w, env := h.deleteImage(t1, "1_1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, env.Success)

	w, data = h.list(t1)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, data.Count)
	assert.Equal(t, "1_2", data.Images[0].Name)
	assert.Equal(t, "1_2.jpg", data.Images[0].Filename)
	assert.Equal(t, "http://vault.test/image/1_2", data.Images[0].URL)

	w, _ = h.do(httptest.NewRequest(http.MethodGet, "/image/1_2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, append([]byte("jpeg:"), testutil.JPEG...), w.Body.Bytes())

	w, env = h.do(httptest.NewRequest(http.MethodGet, "/image/1_1", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, env.Success)

	w, env = h.postJSON("/reset_token", map[string]string{"username": "alice", "password": "pw1"})
	require.Equal(t, http.StatusOK, w.Code)
	var rotated struct{ Token string }
	require.NoError(t, json.Unmarshal(env.Data, &rotated))
	assert.NotEqual(t, t1, rotated.Token)

	w, _ = h.list(t1)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Equal(t, "1_3", h.uploadName(rotated.Token))
}

func TestCreateUserErrors(t *testing.T) {
	h := newHarness(t, nil)

	w, env := h.postJSON("/create_user", map[string]string{"admin_password": "nope", "username": "a", "password": "b"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, service.ErrAdminSecretWrong.Error(), env.Error)

	h.createUser("alice", "pw1")
	w, env = h.postJSON("/create_user", map[string]string{"admin_password": adminSecret, "username": "alice", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, service.ErrDuplicateUsername.Error(), env.Error)

	w, _ = h.postJSON("/create_user", map[string]string{"admin_password": adminSecret, "username": "bob"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetToken(t *testing.T) {
	h := newHarness(t, nil)
	t1 := h.createUser("alice", "pw1")

	w, _ := h.postJSON("/get_token", map[string]string{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = h.postJSON("/get_token", map[string]string{"username": "alice", "password": "bad"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = h.postJSON("/get_token", map[string]string{"username": "carol", "password": "pw1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env := h.postJSON("/get_token", map[string]string{"username": "alice", "password": "pw1"})
	require.Equal(t, http.StatusOK, w.Code)
	var data struct{ Token string }
	require.NoError(t, json.Unmarshal(env.Data, &data))

	w, _ = h.list(data.Token)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = h.list(t1)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "issuing a token replaces the previous one")
}

func TestUploadErrors(t *testing.T) {
	h := newHarness(t, nil)
	token := h.createUser("alice", "pw1")

	w, _ := h.upload("", testutil.JPEG, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = h.upload("bogus", testutil.JPEG, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env := h.upload(token, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, service.ErrNoFile.Error(), env.Error)

	w, env = h.upload(token, []byte("definitely not an image"), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, service.ErrNotAnImage.Error(), env.Error)

	assert.Empty(t, h.blobs.Keys())
}

func TestUploadFormatSelection(t *testing.T) {
	h := newHarness(t, nil)
	token := h.createUser("alice", "pw1")

	w, _ := h.upload(token, testutil.JPEG, "webp")
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = h.upload(token, testutil.JPEG, "bmp")
	require.Equal(t, http.StatusOK, w.Code)

	assert.ElementsMatch(t, []string{"1_1.webp", "1_2.jpg"}, h.blobs.Keys())
}

func TestUploadTooLarge(t *testing.T) {
	h := newHarness(t, nil, func(cfg *config.AppConfig) { cfg.HTTP.MaxUploadBytes = 1024 })
	token := h.createUser("alice", "pw1")

	w, env := h.upload(token, append(append([]byte{}, testutil.JPEG...), make([]byte, 4096)...), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "file too large", env.Error)
}

func TestDeleteErrors(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.createUser("alice", "pw1")
	bob := h.createUser("bob", "pw2")
	h.uploadName(alice)

	w, _ := h.deleteImage(bob, "1_1")
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = h.deleteImage(bob, "1_42")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = h.deleteImage(alice, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = h.deleteImage(alice, "1_42")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = h.deleteImage("", "1_1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = h.deleteImage("bogus", "1_1")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Equal(t, []string{"1_1.jpg"}, h.blobs.Keys())
}

func TestServeFallback(t *testing.T) {
	h := newHarness(t, &service.Fallback{Data: testutil.PNG, ContentType: "image/png"})

	w, _ := h.do(httptest.NewRequest(http.MethodGet, "/image/9_9", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	body, _ := io.ReadAll(w.Body)
	assert.Equal(t, testutil.PNG, body)
}

func TestListRequiresToken(t *testing.T) {
	h := newHarness(t, nil)

	w, _ := h.do(httptest.NewRequest(http.MethodGet, "/api/user-images", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = h.list("bogus")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := h.createUser("alice", "pw1")
	w, data := h.list(token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, data.Count)
	assert.NotNil(t, data.Images)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, nil)

	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","database":"disabled","cache":"disabled","storage":"ok","environment":"test"}`, w.Body.String())

	h.uploadName(h.createUser("alice", "pw1"))
	w = httptest.NewRecorder()
	h.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "imagevault_uploads_total")
	assert.Contains(t, w.Body.String(), `route="/upload"`)
}

func TestStorageFailureIsOpaque(t *testing.T) {
	h := newHarness(t, nil)
	token := h.createUser("alice", "pw1")
	h.uploadName(token)
	h.blobs.StatErr = testutil.ErrBoom

	w, data := h.list(token)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Zero(t, data.Count)

	w, env := h.do(httptest.NewRequest(http.MethodGet, "/image/1_1", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal error", env.Error)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestHeadImage(t *testing.T) {
	h := newHarness(t, &service.Fallback{Data: testutil.PNG, ContentType: "image/png"})
	h.uploadName(h.createUser("alice", "pw1"))

	w, _ := h.do(httptest.NewRequest(http.MethodHead, "/image/1_1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))

	w, _ = h.do(httptest.NewRequest(http.MethodHead, "/image/1_9", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
}

func TestImageNameAliases(t *testing.T) {
	h := newHarness(t, nil)
	token := h.createUser("alice", "pw1")
	h.uploadName(token)
	h.uploadName(token)

	w, _ := h.do(httptest.NewRequest(http.MethodGet, "/image/1_1.jpeg", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = h.do(httptest.NewRequest(http.MethodGet, "/image/01_1", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = h.deleteImage(token, "1_1.jpeg")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, _ = h.deleteImage(token, "01_2")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, h.blobs.Keys())
}
