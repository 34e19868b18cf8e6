package handlers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"imagevault/internal/media/sniffer"
	"imagevault/internal/middleware"
	"imagevault/internal/service"
)

type uploadResponse struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

type deleteRequest struct {
	Token    string `json:"token"`
	Filename string `json:"filename"`
}

type imageEntry struct {
	Filename string    `json:"filename"`
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	URL      string    `json:"url"`
}

type listResponse struct {
	Images   []imageEntry `json:"images"`
	Count    int          `json:"count"`
	Username string       `json:"username"`
}

func (h HandlerSet) Upload(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)

	header, err := c.FormFile("image")
	if err != nil {
		h.respondError(c, service.ErrNoFile)
		return
	}
	file, err := header.Open()
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.respondError(c, err)
		return
	}

	res, err := h.images.Upload(c.Request.Context(), identity, service.UploadInput{
		Data:             data,
		OriginalFilename: header.Filename,
		DeclaredType:     sniffer.MimeTypeFromHTTP(header.Header),
		Format:           c.Request.FormValue("format"),
		Request: service.RequestMeta{
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			Referer:   c.Request.Referer(),
		},
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	ok(c, uploadResponse{Filename: res.Name, URL: h.imageURL(res.Name)})
}

func (h HandlerSet) DeleteImage(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)

	var req deleteRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	obj, err := h.images.Delete(c.Request.Context(), identity, req.Filename)
	if err != nil {
		h.respondError(c, err)
		return
	}

	ok(c, gin.H{"message": "deleted " + obj.Key})
}

// ServeImage streams an image by public name. Misses get the placeholder with a 404.
func (h HandlerSet) ServeImage(c *gin.Context) {
	res, err := h.images.Serve(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer res.Body.Close()

	status := http.StatusOK
	headers := map[string]string{}
	if res.Fallback {
		status = http.StatusNotFound
		headers["Cache-Control"] = "no-store"
	} else {
		headers["Cache-Control"] = "public, max-age=86400"
		if !res.Object.ModTime.IsZero() {
			headers["Last-Modified"] = res.Object.ModTime.UTC().Format(http.TimeFormat)
		}
	}
	headers["X-Content-Type-Options"] = "nosniff"

	c.DataFromReader(status, res.Object.Size, res.Object.ContentType, res.Body, headers)
}

func (h HandlerSet) ListImages(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)

	records, err := h.images.List(c.Request.Context(), identity)
	if err != nil {
		h.respondError(c, err)
		return
	}

	images := make([]imageEntry, 0, len(records))
	for _, r := range records {
		images = append(images, imageEntry{
			Filename: r.Key,
			Name:     r.Name,
			Size:     r.SizeBytes,
			Modified: r.Modified,
			URL:      h.imageURL(r.Name),
		})
	}

	c.Header("X-Total-Count", strconv.Itoa(len(images)))
	ok(c, listResponse{Images: images, Count: len(images), Username: identity.Username()})
}
