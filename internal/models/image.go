package models

import "time"

type ImageFormat string

const (
	FormatJPEG ImageFormat = "jpeg"
	FormatPNG  ImageFormat = "png"
	FormatWEBP ImageFormat = "webp"
)

// Extension is the file suffix stored on disk for the format.
func (f ImageFormat) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return string(f)
}

func (f ImageFormat) MIME() string {
	return "image/" + string(f)
}

// ImageRecord describes one stored image. It is derived from the blob store and the
// naming scheme; there is no images table.
type ImageRecord struct {
	OwnerID   int64
	Sequence  int64
	Name      string
	Key       string
	Format    ImageFormat
	SizeBytes int64
	Modified  time.Time
}

type ActivityEntry struct {
	ID             int64
	Username       string
	SavedFilename  string
	PostedFilename string
	IP             string
	UserAgent      string
	Referer        string
	CreatedAt      time.Time
}
