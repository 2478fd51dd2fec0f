// Package provider talks to the third-party image APIs: it shapes the
// outbound request, performs the call and unwraps the provider envelope.
package provider

import (
	"bytes"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/example/image-relay/internal/upload"
)

// Kind selects one of the supported upstream providers.
type Kind string

const (
	RemoveBackground Kind = "remove-bg"
	EnhanceImage     Kind = "enhance-image"
)

// DefaultDownloadTimeout bounds the second-hop fetch of an enhanced image.
const DefaultDownloadTimeout = 60 * time.Second

// ErrMissingAPIKey is returned before any network call when no key is set.
var ErrMissingAPIKey = errors.New("provider: api key not configured")

// ErrUnknownKind is returned for a provider selector outside Kinds().
var ErrUnknownKind = errors.New("provider: unknown provider")

// Spec describes the fixed shape of one provider endpoint.
type Spec struct {
	Kind        Kind
	DefaultHost string
	Path        string
	FieldName   string
	Timeout     time.Duration
	ContentType string
	FilePrefix  string
	FileExt     string
}

var specs = map[Kind]Spec{
	RemoveBackground: {
		Kind:        RemoveBackground,
		DefaultHost: "background-removal4.p.rapidapi.com",
		Path:        "/v1/results",
		FieldName:   "image",
		Timeout:     60 * time.Second,
		ContentType: "image/png",
		FilePrefix:  "removed-bg",
		FileExt:     ".png",
	},
	EnhanceImage: {
		Kind:        EnhanceImage,
		DefaultHost: "ai-face-enhancer.p.rapidapi.com",
		Path:        "/face/editing/enhance-face",
		FieldName:   "image",
		Timeout:     120 * time.Second,
		ContentType: "image/jpeg",
		FilePrefix:  "enhanced",
		FileExt:     ".jpg",
	},
}

// Lookup returns the spec registered for kind.
func Lookup(kind Kind) (Spec, bool) {
	spec, ok := specs[kind]
	return spec, ok
}

// Kinds lists the supported providers in a stable order.
func Kinds() []Kind {
	return []Kind{RemoveBackground, EnhanceImage}
}

// Endpoint overrides where a provider is reached.
type Endpoint struct {
	Host    string
	BaseURL string
}

// Settings is the read-only provider configuration shared by all requests.
type Settings struct {
	APIKey          string
	Endpoints       map[Kind]Endpoint
	Timeouts        map[Kind]time.Duration
	DownloadTimeout time.Duration
}

// HasAPIKey reports whether outbound calls can be authenticated.
func (s Settings) HasAPIKey() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

func (s Settings) downloadTimeout() time.Duration {
	if s.DownloadTimeout > 0 {
		return s.DownloadTimeout
	}
	return DefaultDownloadTimeout
}

// Request is a fully built outbound call. It is not modified after
// BuildRequest returns.
type Request struct {
	Kind    Kind
	URL     string
	Header  http.Header
	Body    []byte
	Timeout time.Duration
}

// BuildRequest wraps file in a multipart body addressed to the provider
// selected by kind. It performs no I/O.
func BuildRequest(kind Kind, settings Settings, file *upload.File) (*Request, error) {
	spec, ok := Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if !settings.HasAPIKey() {
		return nil, ErrMissingAPIKey
	}
	if file == nil {
		return nil, upload.ErrNoFile
	}

	endpoint := settings.Endpoints[kind]
	host := strings.TrimSpace(endpoint.Host)
	if host == "" {
		host = spec.DefaultHost
	}
	base := strings.TrimRight(strings.TrimSpace(endpoint.BaseURL), "/")
	if base == "" {
		base = "https://" + host
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	partHeader := make(textproto.MIMEHeader)
	partHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		spec.FieldName, quoteEscaper.Replace(uploadName(file))))
	partHeader.Set("Content-Type", file.MIMEType)
	part, err := writer.CreatePart(partHeader)
	if err != nil {
		return nil, fmt.Errorf("provider: create multipart part: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, fmt.Errorf("provider: write multipart part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("provider: close multipart body: %w", err)
	}

	timeout := spec.Timeout
	if override := settings.Timeouts[kind]; override > 0 {
		timeout = override
	}

	header := make(http.Header)
	header.Set("Content-Type", writer.FormDataContentType())
	header.Set("X-RapidAPI-Key", strings.TrimSpace(settings.APIKey))
	header.Set("X-RapidAPI-Host", host)

	return &Request{
		Kind:    kind,
		URL:     base + spec.Path,
		Header:  header,
		Body:    body.Bytes(),
		Timeout: timeout,
	}, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func uploadName(file *upload.File) string {
	if name := strings.TrimSpace(file.FileName); name != "" {
		return name
	}
	return "image"
}
