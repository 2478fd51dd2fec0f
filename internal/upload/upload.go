// Package upload validates the image a caller posts and buffers it in memory.
package upload

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
)

const (
	// FieldName is the multipart field carrying the image.
	FieldName = "file"
	// MaxFileSize is the largest accepted image (10 MiB).
	MaxFileSize = 10 << 20
	// MaxRequestSize bounds the whole multipart body, leaving room for the
	// envelope around the file part.
	MaxRequestSize = MaxFileSize + 1<<20
)

var (
	ErrNoFile          = errors.New("upload: no file uploaded")
	ErrFileTooLarge    = errors.New("upload: file exceeds size limit")
	ErrUnsupportedType = errors.New("upload: unsupported file type")
)

var allowedTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
}

// File is an accepted upload, owned by the request that produced it.
type File struct {
	Data     []byte
	MIMEType string
	FileName string
	Size     int64
}

// Allowed reports whether mimeType is one of the accepted image types.
func Allowed(mimeType string) bool {
	_, ok := allowedTypes[normalizeType(mimeType)]
	return ok
}

// FromRequest extracts and validates the single image field of a multipart
// request.
func FromRequest(c *gin.Context) (*File, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxRequestSize)

	header, err := c.FormFile(FieldName)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || c.Request.ContentLength > MaxRequestSize {
			return nil, ErrFileTooLarge
		}
		return nil, ErrNoFile
	}
	if header.Size > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	src, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, MaxFileSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	mimeType := normalizeType(header.Header.Get("Content-Type"))
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = normalizeType(mimetype.Detect(data).String())
	}
	if !Allowed(mimeType) {
		return nil, ErrUnsupportedType
	}

	return &File{
		Data:     data,
		MIMEType: mimeType,
		FileName: header.Filename,
		Size:     int64(len(data)),
	}, nil
}

func normalizeType(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	return mediaType
}
