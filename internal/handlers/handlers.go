package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"imagevault/internal/config"
	"imagevault/internal/middleware"
	"imagevault/internal/service"
	"imagevault/internal/storage"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Auth   *service.AuthService
	Images *service.ImageService
	DB     Pinger
	Cache  *redis.Client
	Store  storage.Store
}

type HandlerSet struct {
	log    zerolog.Logger
	cfg    *config.AppConfig
	auth   *service.AuthService
	images *service.ImageService
	db     Pinger
	cache  *redis.Client
	store  storage.Store
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, deps Deps) HandlerSet {
	return HandlerSet{
		log:    log,
		cfg:    cfg,
		auth:   deps.Auth,
		images: deps.Images,
		db:     deps.DB,
		cache:  deps.Cache,
		store:  deps.Store,
	}
}

func (h HandlerSet) Register(router gin.IRouter) {
	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	var scripter redis.Scripter
	if h.cache != nil {
		scripter = h.cache
	}
	limiter := middleware.RateLimit(h.cfg.RateLimit, scripter, h.log)
	router.POST("/create_user", limiter, h.CreateUser)
	router.POST("/get_token", limiter, h.GetToken)
	router.POST("/reset_token", limiter, h.ResetToken)

	router.POST("/upload",
		middleware.BodyLimit(h.cfg.HTTP.MaxUploadBytes),
		middleware.RequireToken(h.auth, middleware.TokenFromMultipart(multipartMemory), http.StatusBadRequest),
		h.Upload,
	)
	router.DELETE("/delete_image",
		middleware.RequireToken(h.auth, middleware.TokenFromJSON, http.StatusBadRequest),
		h.DeleteImage,
	)
	router.GET("/image/:name", h.ServeImage)
	router.HEAD("/image/:name", h.ServeImage)
	router.GET("/api/user-images",
		middleware.RequireToken(h.auth, middleware.TokenFromQuery, http.StatusUnauthorized),
		h.ListImages,
	)
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "error": message})
}

// respondError maps service errors onto HTTP statuses. Anything unrecognised is
// logged and reported as an opaque 500.
func (h HandlerSet) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrAdminSecretWrong),
		errors.Is(err, service.ErrDuplicateUsername),
		errors.Is(err, service.ErrMissingToken),
		errors.Is(err, service.ErrNoFile),
		errors.Is(err, service.ErrNotAnImage),
		errors.Is(err, service.ErrMissingFilename):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUsernameNotFound),
		errors.Is(err, service.ErrPasswordIncorrect),
		errors.Is(err, service.ErrTokenNotFound):
		fail(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrNotOwner):
		fail(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrImageNotFound):
		fail(c, http.StatusNotFound, err.Error())
	default:
		event := h.log.Error().Err(err).
			Str("request_id", middleware.RequestIDFrom(c)).
			Str("route", c.FullPath())
		if identity, ok := middleware.CurrentIdentity(c); ok {
			event = event.Str("username", identity.Username())
		}
		if name := c.Param("name"); name != "" {
			event = event.Str("name", name)
		}
		event.Msg("request failed")
		fail(c, http.StatusInternalServerError, "Internal error")
	}
}

// imageURL is the public address of a stored image.
func (h HandlerSet) imageURL(name string) string {
	return strings.TrimRight(h.cfg.Storage.PublicBaseURL, "/") + "/image/" + name
}
