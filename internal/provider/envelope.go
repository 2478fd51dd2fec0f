package provider

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMalformedResponse marks a provider answer missing the expected fields.
	ErrMalformedResponse = errors.New("provider: invalid API response format")
	// ErrNoImageURL marks an enhancement answer without data.image_url.
	ErrNoImageURL = errors.New("provider: no enhanced image URL returned")
)

// ProviderError is a failure the enhancement API reports inside a 2xx body.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider: error_code %d", e.Code)
	}
	return fmt.Sprintf("provider: error_code %d: %s", e.Code, e.Message)
}

// Envelope is the provider-specific JSON wrapper around a result. It is one of
// *RemovalEnvelope or *EnhancementEnvelope.
type Envelope interface {
	Kind() Kind
}

// RemovalEnvelope carries the inline base64 image of the removal API.
type RemovalEnvelope struct {
	Results []struct {
		Entities []struct {
			Image *string `json:"image"`
		} `json:"entities"`
	} `json:"results"`
}

// Kind implements Envelope.
func (*RemovalEnvelope) Kind() Kind { return RemoveBackground }

// Image decodes results[0].entities[0].image.
func (e *RemovalEnvelope) Image() ([]byte, error) {
	if len(e.Results) == 0 || len(e.Results[0].Entities) == 0 || e.Results[0].Entities[0].Image == nil {
		return nil, ErrMalformedResponse
	}
	encoded := strings.TrimSpace(*e.Results[0].Entities[0].Image)
	if strings.HasPrefix(encoded, "data:") {
		if idx := strings.Index(encoded, ";base64,"); idx >= 0 {
			encoded = encoded[idx+len(";base64,"):]
		}
	}
	if encoded == "" {
		return nil, ErrMalformedResponse
	}
	return decodeBase64(encoded)
}

// decodeBase64 accepts the standard and URL-safe alphabets, with or without
// padding. The first error is reported when none of them fit.
func decodeBase64(encoded string) ([]byte, error) {
	var firstErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		data, err := enc.DecodeString(encoded)
		if err == nil {
			return data, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, firstErr)
}

// EnhancementEnvelope is the AILab-style answer of the enhancement API.
type EnhancementEnvelope struct {
	RequestID   string `json:"request_id"`
	LogID       string `json:"log_id"`
	ErrorCode   *int   `json:"error_code"`
	ErrorMsg    string `json:"error_msg"`
	ErrorDetail *struct {
		StatusCode  int    `json:"status_code"`
		Code        string `json:"code"`
		CodeMessage string `json:"code_message"`
		Message     string `json:"message"`
	} `json:"error_detail"`
	Data *struct {
		ImageURL string `json:"image_url"`
	} `json:"data"`
}

// Kind implements Envelope.
func (*EnhancementEnvelope) Kind() Kind { return EnhanceImage }

// EnhancementResult is the outcome of the first enhancement hop: where the
// finished image can be fetched.
type EnhancementResult struct {
	ImageURL  string
	RequestID string
}

// Result validates error_code and extracts data.image_url.
func (e *EnhancementEnvelope) Result() (*EnhancementResult, error) {
	if e.ErrorCode == nil {
		return nil, &ProviderError{Code: -1, Message: e.message()}
	}
	if *e.ErrorCode != 0 {
		return nil, &ProviderError{Code: *e.ErrorCode, Message: e.message()}
	}
	if e.Data == nil || strings.TrimSpace(e.Data.ImageURL) == "" {
		return nil, ErrNoImageURL
	}
	return &EnhancementResult{ImageURL: strings.TrimSpace(e.Data.ImageURL), RequestID: e.RequestID}, nil
}

func (e *EnhancementEnvelope) message() string {
	if d := e.ErrorDetail; d != nil {
		for _, msg := range []string{d.Message, d.CodeMessage, d.Code} {
			if msg = strings.TrimSpace(msg); msg != "" {
				return msg
			}
		}
	}
	return strings.TrimSpace(e.ErrorMsg)
}

// DecodeEnvelope parses raw into the envelope shape used by kind.
func DecodeEnvelope(kind Kind, raw []byte) (Envelope, error) {
	var env Envelope
	switch kind {
	case RemoveBackground:
		env = &RemovalEnvelope{}
	case EnhanceImage:
		env = &EnhancementEnvelope{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err := json.Unmarshal(raw, env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return env, nil
}

// NormalizedResult is the binary image handed back to the caller.
type NormalizedResult struct {
	Data        []byte
	ContentType string
	FileName    string
}

// Normalize labels data with the content type and a timestamped file name for
// kind. The bytes are passed through untouched.
func Normalize(kind Kind, data []byte, now time.Time) (*NormalizedResult, error) {
	spec, ok := Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return &NormalizedResult{
		Data:        data,
		ContentType: spec.ContentType,
		FileName:    spec.FilePrefix + "-" + strconv.FormatInt(now.UnixMilli(), 10) + spec.FileExt,
	}, nil
}
