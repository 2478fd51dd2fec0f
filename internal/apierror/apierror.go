// Package apierror turns relay failures into the JSON error bodies and status
// codes returned to callers.
package apierror

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"

	"github.com/example/image-relay/internal/provider"
	"github.com/example/image-relay/internal/upload"
)

// Outcome is the caller-facing rendition of a failure.
type Outcome struct {
	Status  int    `json:"-"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Message string `json:"message,omitempty"`
	// Security flags credential rejections for operators; it is never
	// serialized.
	Security bool `json:"-"`
}

const (
	MsgNoFile           = "No file uploaded"
	MsgFileTooLarge     = "File too large"
	MsgUnsupportedType  = "Unsupported file type"
	MsgMissingAPIKey    = "API key not configured"
	MsgInvalidResponse  = "Invalid API response format"
	MsgEnhanceFailed    = "Image enhancement failed"
	MsgNoImageURL       = "No enhanced image URL returned"
	MsgInvalidImage     = "Invalid image format or corrupted file"
	MsgAuthError        = "API authentication error"
	MsgRateLimited      = "API rate limit exceeded"
	MsgAIProcessing     = "AI processing error, please retry"
	MsgUnavailable      = "Service temporarily unavailable"
	MsgProcessingFailed = "Processing failed"
	MsgTimeout          = "Request timeout"
	MsgServiceDown      = "Service unavailable"
	MsgInternal         = "Internal server error"
	MsgNotFound         = "Endpoint not found"
)

// Translate maps err onto the fixed error taxonomy. Upstream status codes win
// over transport conditions, which win over domain errors.
func Translate(err error) Outcome {
	if err == nil {
		return Outcome{Status: http.StatusInternalServerError, Error: MsgInternal}
	}

	var statusErr *provider.UpstreamStatusError
	if errors.As(err, &statusErr) {
		if statusErr.Download {
			return fromDownloadStatus(statusErr.Status)
		}
		return fromUpstreamStatus(statusErr.Status)
	}

	if IsTimeout(err) {
		return Outcome{
			Status:  http.StatusGatewayTimeout,
			Error:   MsgTimeout,
			Message: "The image service took too long to respond. Please try again with a smaller image.",
		}
	}
	if IsUnreachable(err) {
		return Outcome{
			Status:  http.StatusServiceUnavailable,
			Error:   MsgServiceDown,
			Message: "Unable to reach the image processing service. Please try again later.",
		}
	}

	var providerErr *provider.ProviderError
	switch {
	case errors.Is(err, upload.ErrNoFile):
		return Outcome{Status: http.StatusBadRequest, Error: MsgNoFile}
	case errors.Is(err, upload.ErrFileTooLarge):
		return Outcome{Status: http.StatusRequestEntityTooLarge, Error: MsgFileTooLarge, Details: "Maximum file size is 10MB"}
	case errors.Is(err, upload.ErrUnsupportedType):
		return Outcome{Status: http.StatusUnsupportedMediaType, Error: MsgUnsupportedType, Details: "Only JPEG, PNG and WebP images are allowed"}
	case errors.Is(err, provider.ErrMissingAPIKey):
		return Outcome{Status: http.StatusInternalServerError, Error: MsgMissingAPIKey}
	case errors.As(err, &providerErr):
		return Outcome{Status: http.StatusInternalServerError, Error: MsgEnhanceFailed, Details: providerErr.Message}
	case errors.Is(err, provider.ErrNoImageURL):
		return Outcome{Status: http.StatusInternalServerError, Error: MsgNoImageURL}
	case errors.Is(err, provider.ErrMalformedResponse):
		return Outcome{Status: http.StatusInternalServerError, Error: MsgInvalidResponse}
	}

	return Outcome{Status: http.StatusInternalServerError, Error: MsgInternal, Details: err.Error()}
}

func fromUpstreamStatus(status int) Outcome {
	switch status {
	case http.StatusBadRequest:
		return Outcome{Status: status, Error: MsgInvalidImage}
	case http.StatusUnauthorized, http.StatusForbidden:
		return Outcome{Status: status, Error: MsgAuthError, Details: "The image service rejected the configured credentials", Security: true}
	case http.StatusTooManyRequests:
		return Outcome{Status: status, Error: MsgRateLimited, Details: "Please wait a moment before trying again"}
	case http.StatusInternalServerError:
		return Outcome{Status: status, Error: MsgAIProcessing}
	case http.StatusServiceUnavailable:
		return Outcome{Status: status, Error: MsgUnavailable}
	default:
		return Outcome{Status: status, Error: MsgProcessingFailed}
	}
}

// fromDownloadStatus covers the result image host. A 4xx there means the
// image URL went stale or was refused, not that the API key was rejected.
func fromDownloadStatus(status int) Outcome {
	if status >= 400 && status < 500 {
		return Outcome{Status: status, Error: MsgProcessingFailed, Details: "The enhanced image could not be retrieved"}
	}
	return fromUpstreamStatus(status)
}

// IsTimeout reports whether err is a deadline or transport timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsUnreachable reports whether err means the upstream could not be reached.
func IsUnreachable(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
