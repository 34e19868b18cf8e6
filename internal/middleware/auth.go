package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"imagevault/internal/service"
)

const identityKey = "identity"

// TokenResolver maps a bearer token to its owner.
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (service.Identity, error)
}

// TokenSource pulls the raw token out of a request. An error aborts with 400.
type TokenSource func(c *gin.Context) (string, error)

var errFileTooLarge = errors.New("file too large")

// TokenFromQuery reads ?token=.
func TokenFromQuery(c *gin.Context) (string, error) {
	return c.Query("token"), nil
}

// TokenFromMultipart parses the multipart body once and reads the token field.
// Parsing here surfaces an oversized upload before authentication runs.
func TokenFromMultipart(maxMemory int64) TokenSource {
	return func(c *gin.Context) (string, error) {
		if err := c.Request.ParseMultipartForm(maxMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return "", errFileTooLarge
			}
			if !errors.Is(err, http.ErrNotMultipart) {
				return "", errors.New("invalid multipart body")
			}
		}
		return c.Request.FormValue("token"), nil
	}
}

type tokenBody struct {
	Token string `json:"token"`
}

// TokenFromJSON reads the token field of a JSON body and leaves the body readable
// for the handler.
func TokenFromJSON(c *gin.Context) (string, error) {
	var body tokenBody
	if err := c.ShouldBindBodyWith(&body, binding.JSON); err != nil {
		return "", errors.New("invalid JSON body")
	}
	return body.Token, nil
}

// RequireToken authenticates the request and stores the caller's Identity. An
// absent token is answered with missingStatus: form and body routes treat it as
// a malformed request (400), query routes as unauthenticated (401).
func RequireToken(resolver TokenResolver, source TokenSource, missingStatus int) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := source(c)
		if err != nil {
			abortJSON(c, http.StatusBadRequest, err.Error())
			return
		}

		identity, err := resolver.ResolveToken(c.Request.Context(), token)
		switch {
		case err == nil:
		case errors.Is(err, service.ErrMissingToken):
			abortJSON(c, missingStatus, err.Error())
			return
		case errors.Is(err, service.ErrTokenNotFound):
			abortJSON(c, http.StatusUnauthorized, err.Error())
			return
		default:
			_ = c.Error(err)
			abortJSON(c, http.StatusInternalServerError, "Internal error")
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// CurrentIdentity returns the identity stored by RequireToken.
func CurrentIdentity(c *gin.Context) (service.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return service.Identity{}, false
	}
	identity, ok := v.(service.Identity)
	return identity, ok && identity.Valid()
}

// BodyLimit caps the request body size.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

func abortJSON(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": message})
}
