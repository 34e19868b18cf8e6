// Package naming renders and parses the public image names of the form
// "{ownerId}_{sequence}" with an optional extension.
package naming

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"imagevault/internal/models"
)

const separator = "_"

var ErrInvalidName = errors.New("invalid image name")

// Extensions lists the stored extensions in probe order.
var Extensions = []string{"jpg", "png", "webp"}

var namePattern = regexp.MustCompile(`^([0-9]+)_([0-9]+)(?:\.([a-z0-9]+))?$`)

type Name struct {
	OwnerID  int64
	Sequence int64
	Ext      string
}

func Render(ownerID, seq int64) string {
	return strconv.FormatInt(ownerID, 10) + separator + strconv.FormatInt(seq, 10)
}

func (n Name) String() string {
	return Render(n.OwnerID, n.Sequence)
}

// Key is the blob key for the name with the given extension.
func Key(name, ext string) string {
	return name + "." + ext
}

// ParseOwnerID returns the leading numeric segment before the first separator.
func ParseOwnerID(name string) (int64, error) {
	head, _, found := strings.Cut(name, separator)
	if !found || head == "" {
		return 0, ErrInvalidName
	}
	id, err := strconv.ParseInt(head, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidName
	}
	return id, nil
}

// Parse validates a public name or stored filename and splits it into its parts.
func Parse(name string) (Name, error) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return Name{}, ErrInvalidName
	}
	owner, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || owner <= 0 {
		return Name{}, ErrInvalidName
	}
	seq, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil || seq <= 0 {
		return Name{}, ErrInvalidName
	}
	return Name{OwnerID: owner, Sequence: seq, Ext: m[3]}, nil
}

// FormatForExtension maps a file extension (with or without the dot) to a supported format.
func FormatForExtension(ext string) (models.ImageFormat, bool) {
	return ParseFormat(strings.TrimPrefix(ext, "."))
}

// ParseFormat accepts a requested format name. "jpg" is an alias for jpeg.
func ParseFormat(s string) (models.ImageFormat, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jpeg", "jpg":
		return models.FormatJPEG, true
	case "png":
		return models.FormatPNG, true
	case "webp":
		return models.FormatWEBP, true
	}
	return "", false
}
