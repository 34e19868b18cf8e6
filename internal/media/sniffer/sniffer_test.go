package sniffer

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectHead(t *testing.T) {
	cases := map[string]struct {
		head []byte
		want MediaType
	}{
		"jpeg": {[]byte{0xff, 0xd8, 0xff, 0xe0, 0x00}, TypeJPEG},
		"png":  {[]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0}, TypePNG},
		"gif":  {[]byte("GIF89a......"), TypeGIF},
		"webp": {[]byte("RIFF\x00\x00\x00\x00WEBPVP8 "), TypeWEBP},
		"avif": {[]byte("\x00\x00\x00\x1cftypavif\x00\x00\x00\x00"), TypeAVIF},
		"tiff": {[]byte{'I', 'I', 0x2a, 0x00, 0x08}, TypeTIFF},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := DetectHead(tc.head)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Type)
		})
	}
}

func TestDetectHeadUnknown(t *testing.T) {
	_, err := DetectHead([]byte("<svg xmlns='http://www.w3.org/2000/svg'/>"))
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = DetectHead(nil)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestMimeTypeFromHTTP(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "image/png; charset=binary")
	assert.Equal(t, "image/png", MimeTypeFromHTTP(h))
	assert.Empty(t, MimeTypeFromHTTP(http.Header{}))
}
