package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"imagevault/internal/media/encoder"
	"imagevault/internal/media/sniffer"
	"imagevault/internal/metrics"
	"imagevault/internal/models"
	"imagevault/internal/naming"
	"imagevault/internal/storage"
)

// ActivityLogger appends upload audit entries.
type ActivityLogger interface {
	Record(ctx context.Context, entry models.ActivityEntry) error
}

const activityTimeout = 5 * time.Second

type RequestMeta struct {
	IP        string
	UserAgent string
	Referer   string
}

type UploadInput struct {
	Data             []byte
	OriginalFilename string
	DeclaredType     string
	Format           string
	Request          RequestMeta
}

type UploadResult struct {
	Name      string
	Key       string
	Format    models.ImageFormat
	SizeBytes int64
}

type ServeResult struct {
	Body     io.ReadCloser
	Object   storage.Object
	Fallback bool
}

type ImageService struct {
	namer    *Namer
	store    storage.Store
	encoder  encoder.Encoder
	activity ActivityLogger
	fallback *Fallback
	log      zerolog.Logger
}

func NewImageService(
	namer *Namer,
	store storage.Store,
	enc encoder.Encoder,
	activity ActivityLogger,
	fallback *Fallback,
	log zerolog.Logger,
) *ImageService {
	return &ImageService{
		namer:    namer,
		store:    store,
		encoder:  enc,
		activity: activity,
		fallback: fallback,
		log:      log,
	}
}

// TargetFormat picks the stored encoding: the requested format when supported,
// then the uploaded file's extension, then jpeg.
func TargetFormat(requested, originalFilename string) models.ImageFormat {
	if f, ok := naming.ParseFormat(requested); ok {
		return f
	}
	if f, ok := naming.FormatForExtension(filepath.Ext(originalFilename)); ok {
		return f
	}
	return models.FormatJPEG
}

func (s *ImageService) Upload(ctx context.Context, identity Identity, input UploadInput) (UploadResult, error) {
	if !identity.Valid() {
		return UploadResult{}, ErrTokenNotFound
	}
	if len(input.Data) == 0 {
		return UploadResult{}, ErrNoFile
	}
	detected, err := sniffer.DetectHead(input.Data)
	if err != nil {
		return UploadResult{}, ErrNotAnImage
	}
	if input.DeclaredType != "" && input.DeclaredType != detected.MIME {
		s.log.Debug().
			Str("declared", input.DeclaredType).
			Str("detected", detected.MIME).
			Msg("declared content type differs from file contents")
	}

	format := TargetFormat(input.Format, input.OriginalFilename)

	name, err := s.namer.Allocate(ctx, identity)
	if err != nil {
		return UploadResult{}, err
	}
	publicName := name.String()
	log := s.log.With().
		Int64("user_id", identity.userID).
		Str("name", publicName).
		Str("format", string(format)).
		Logger()

	encoded, err := s.encoder.Encode(input.Data, format)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("encode_failed", string(format)).Inc()
		log.Error().Err(err).Str("original", input.OriginalFilename).Msg("encode failed")
		return UploadResult{}, fmt.Errorf("encode image: %w", err)
	}

	key := naming.Key(publicName, format.Extension())
	obj, err := s.store.Create(ctx, key, encoded, format.MIME())
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("store_failed", string(format)).Inc()
		if errors.Is(err, storage.ErrExists) {
			log.Error().Str("key", key).Msg("refusing to overwrite existing image; sequence counter is behind storage")
			return UploadResult{}, fmt.Errorf("%w: %s", ErrNameCollision, key)
		}
		return UploadResult{}, fmt.Errorf("store image: %w", err)
	}

	s.recordActivity(ctx, models.ActivityEntry{
		Username:       identity.username,
		SavedFilename:  key,
		PostedFilename: input.OriginalFilename,
		IP:             input.Request.IP,
		UserAgent:      input.Request.UserAgent,
		Referer:        input.Request.Referer,
		CreatedAt:      time.Now().UTC(),
	})

	metrics.UploadsTotal.WithLabelValues("stored", string(format)).Inc()
	metrics.UploadBytes.Observe(float64(obj.Size))
	log.Info().Str("key", key).Int64("size", obj.Size).Msg("image stored")

	return UploadResult{
		Name:      publicName,
		Key:       key,
		Format:    format,
		SizeBytes: obj.Size,
	}, nil
}

// recordActivity is best-effort and outlives a cancelled request context.
func (s *ImageService) recordActivity(ctx context.Context, entry models.ActivityEntry) {
	if s.activity == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), activityTimeout)
	defer cancel()

	if err := s.activity.Record(ctx, entry); err != nil {
		metrics.ActivityFailuresTotal.Inc()
		s.log.Warn().Err(err).Str("saved_filename", entry.SavedFilename).Msg("activity log write failed")
	}
}

// Delete removes one of the caller's images. Ownership is decided from the name
// before storage is touched, so other users' names never reveal existence.
func (s *ImageService) Delete(ctx context.Context, identity Identity, filename string) (storage.Object, error) {
	if !identity.Valid() {
		return storage.Object{}, ErrTokenNotFound
	}
	if filename == "" {
		return storage.Object{}, ErrMissingFilename
	}
	if !s.namer.Owns(identity, filename) {
		return storage.Object{}, ErrNotOwner
	}
	parsed, err := naming.Parse(filename)
	if err != nil {
		return storage.Object{}, ErrImageNotFound
	}
	candidates, ok := candidateKeys(parsed)
	if !ok {
		return storage.Object{}, ErrImageNotFound
	}

	obj, err := storage.Locate(ctx, s.store, candidates...)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Object{}, ErrImageNotFound
		}
		return storage.Object{}, err
	}

	if err := s.store.Delete(ctx, obj.Key); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Object{}, ErrImageNotFound
		}
		return storage.Object{}, fmt.Errorf("delete %s: %w", obj.Key, err)
	}

	s.log.Info().Int64("user_id", identity.userID).Str("key", obj.Key).Msg("image deleted")
	return obj, nil
}

// ResolveForServing finds the stored object behind a public name without any
// authentication. A name with a known extension is looked up exactly.
func (s *ImageService) ResolveForServing(ctx context.Context, name string) (storage.Object, error) {
	parsed, err := naming.Parse(name)
	if err != nil {
		return storage.Object{}, ErrImageNotFound
	}

	candidates, ok := candidateKeys(parsed)
	if !ok {
		return storage.Object{}, ErrImageNotFound
	}

	obj, err := storage.Locate(ctx, s.store, candidates...)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Object{}, ErrImageNotFound
		}
		return storage.Object{}, err
	}
	return obj, nil
}

// candidateKeys lists the stored keys a parsed name may live under, in probe
// order. The owner and sequence are rendered canonically ("01_1" is "1_1") and
// an explicit extension is normalised ("jpeg" is "jpg").
func candidateKeys(parsed naming.Name) ([]string, bool) {
	base := parsed.String()
	if parsed.Ext == "" {
		keys := make([]string, 0, len(naming.Extensions))
		for _, ext := range naming.Extensions {
			keys = append(keys, naming.Key(base, ext))
		}
		return keys, true
	}
	format, ok := naming.FormatForExtension(parsed.Ext)
	if !ok {
		return nil, false
	}
	return []string{naming.Key(base, format.Extension())}, true
}

// Serve opens the image for name, or the fallback placeholder when it is missing.
// Callers must close Body.
func (s *ImageService) Serve(ctx context.Context, name string) (ServeResult, error) {
	obj, err := s.ResolveForServing(ctx, name)
	if err == nil {
		body, opened, err := s.store.Open(ctx, obj.Key)
		if err == nil {
			return ServeResult{Body: body, Object: opened}, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return ServeResult{}, fmt.Errorf("open %s: %w", obj.Key, err)
		}
	} else if !errors.Is(err, ErrImageNotFound) {
		return ServeResult{}, err
	}

	if s.fallback == nil {
		return ServeResult{}, ErrImageNotFound
	}
	return ServeResult{
		Body: io.NopCloser(bytes.NewReader(s.fallback.Data)),
		Object: storage.Object{
			Size:        int64(len(s.fallback.Data)),
			ContentType: s.fallback.ContentType,
		},
		Fallback: true,
	}, nil
}

// List returns the caller's images, newest first. Sequence numbers without a
// stored file are skipped.
func (s *ImageService) List(ctx context.Context, identity Identity) ([]models.ImageRecord, error) {
	if !identity.Valid() {
		return nil, ErrTokenNotFound
	}

	next, err := s.namer.Next(ctx, identity)
	if err != nil {
		return nil, err
	}

	records := make([]models.ImageRecord, 0, next)
	for seq := int64(1); seq < next; seq++ {
		base := naming.Render(identity.userID, seq)
		for _, ext := range naming.Extensions {
			obj, err := s.store.Stat(ctx, naming.Key(base, ext))
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("stat %s: %w", base, err)
			}
			format, _ := naming.FormatForExtension(ext)
			records = append(records, models.ImageRecord{
				OwnerID:   identity.userID,
				Sequence:  seq,
				Name:      base,
				Key:       obj.Key,
				Format:    format,
				SizeBytes: obj.Size,
				Modified:  obj.ModTime,
			})
			break
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Modified.Equal(records[j].Modified) {
			return records[i].Sequence > records[j].Sequence
		}
		return records[i].Modified.After(records[j].Modified)
	})
	return records, nil
}
