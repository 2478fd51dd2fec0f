package apierror

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"testing"

	"github.com/example/image-relay/internal/logging"
	"github.com/example/image-relay/internal/provider"
	"github.com/example/image-relay/internal/upload"
)

func TestTranslateUpstreamStatus(t *testing.T) {
	tests := []struct {
		status   int
		message  string
		security bool
	}{
		{http.StatusBadRequest, MsgInvalidImage, false},
		{http.StatusUnauthorized, MsgAuthError, true},
		{http.StatusForbidden, MsgAuthError, true},
		{http.StatusTooManyRequests, MsgRateLimited, false},
		{http.StatusInternalServerError, MsgAIProcessing, false},
		{http.StatusServiceUnavailable, MsgUnavailable, false},
		{http.StatusBadGateway, MsgProcessingFailed, false},
		{http.StatusNotFound, MsgProcessingFailed, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := logging.NewOperationError("provider.invoke", "req-1",
				&provider.UpstreamStatusError{Kind: provider.RemoveBackground, Status: tt.status, Body: "secret-body"})

			out := Translate(err)
			if out.Status != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, out.Status)
			}
			if out.Error != tt.message {
				t.Fatalf("expected message %q, got %q", tt.message, out.Error)
			}
			if out.Security != tt.security {
				t.Fatalf("expected security %v, got %v", tt.security, out.Security)
			}
			if strings.Contains(out.Details, "secret-body") {
				t.Fatalf("upstream body leaked into details: %q", out.Details)
			}
		})
	}
}

func TestTranslateDownloadStatus(t *testing.T) {
	tests := []struct {
		status  int
		message string
	}{
		{http.StatusUnauthorized, MsgProcessingFailed},
		{http.StatusForbidden, MsgProcessingFailed},
		{http.StatusBadRequest, MsgProcessingFailed},
		{http.StatusNotFound, MsgProcessingFailed},
		{http.StatusServiceUnavailable, MsgUnavailable},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := logging.NewOperationError("provider.download", "req-1",
				&provider.UpstreamStatusError{Kind: provider.EnhanceImage, Status: tt.status, Download: true})

			out := Translate(err)
			if out.Status != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, out.Status)
			}
			if out.Error != tt.message {
				t.Fatalf("expected message %q, got %q", tt.message, out.Error)
			}
			if out.Security {
				t.Fatal("image download failures must not be flagged as credential rejections")
			}
		})
	}
}

func TestTranslateTransportFailures(t *testing.T) {
	timeout := &url.Error{Op: "Post", URL: "https://x", Err: context.DeadlineExceeded}
	out := Translate(fmt.Errorf("provider: request: %w", timeout))
	if out.Status != http.StatusGatewayTimeout || out.Error != MsgTimeout {
		t.Fatalf("unexpected timeout outcome: %+v", out)
	}
	if !strings.Contains(out.Message, "smaller image") {
		t.Fatalf("expected smaller image hint, got %q", out.Message)
	}

	refused := &url.Error{Op: "Post", URL: "https://x", Err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}}
	out = Translate(refused)
	if out.Status != http.StatusServiceUnavailable || out.Error != MsgServiceDown {
		t.Fatalf("unexpected refused outcome: %+v", out)
	}

	dns := &url.Error{Op: "Post", URL: "https://x", Err: &net.DNSError{Err: "no such host", Name: "x"}}
	if status := Translate(dns).Status; status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for dns failure, got %d", status)
	}
}

func TestTranslateStatusBeatsTimeout(t *testing.T) {
	err := errors.Join(context.DeadlineExceeded, &provider.UpstreamStatusError{Status: http.StatusTooManyRequests})
	if status := Translate(err).Status; status != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", status)
	}
}

func TestTranslateDomainErrors(t *testing.T) {
	tests := []struct {
		err     error
		status  int
		message string
	}{
		{upload.ErrNoFile, http.StatusBadRequest, MsgNoFile},
		{upload.ErrFileTooLarge, http.StatusRequestEntityTooLarge, MsgFileTooLarge},
		{upload.ErrUnsupportedType, http.StatusUnsupportedMediaType, MsgUnsupportedType},
		{provider.ErrMissingAPIKey, http.StatusInternalServerError, MsgMissingAPIKey},
		{provider.ErrNoImageURL, http.StatusInternalServerError, MsgNoImageURL},
		{fmt.Errorf("%w: eof", provider.ErrMalformedResponse), http.StatusInternalServerError, MsgInvalidResponse},
	}
	for _, tt := range tests {
		out := Translate(logging.NewOperationError("stage", "req", tt.err))
		if out.Status != tt.status || out.Error != tt.message {
			t.Fatalf("%v: expected %d %q, got %d %q", tt.err, tt.status, tt.message, out.Status, out.Error)
		}
	}
}

func TestTranslateProviderErrorCarriesDetail(t *testing.T) {
	out := Translate(&provider.ProviderError{Code: 422, Message: "No face detected"})
	if out.Status != http.StatusInternalServerError || out.Error != MsgEnhanceFailed {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Details != "No face detected" {
		t.Fatalf("expected provider detail, got %q", out.Details)
	}
}

func TestTranslateUnknown(t *testing.T) {
	out := Translate(errors.New("boom"))
	if out.Status != http.StatusInternalServerError || out.Error != MsgInternal || out.Details != "boom" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if status := Translate(nil).Status; status != http.StatusInternalServerError {
		t.Fatalf("expected 500 for nil error, got %d", status)
	}
}
