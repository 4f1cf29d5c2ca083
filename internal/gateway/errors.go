package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/louisbranch/initiative.watch/internal/platform/errors"
)

// maxErrorBody bounds how much of an error response is read. Authority error
// bodies are small; anything larger is not a payload we want in memory.
const maxErrorBody = 64 << 10

// wireError is the JSON error body the authority returns.
type wireError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

// decodeError converts a non-2xx response into a domain error. The body's
// machine-readable code is preferred; without one the HTTP status selects
// the broad taxonomy code. The human-readable message is surfaced verbatim
// when present.
func decodeError(resp *http.Response) *apperrors.Error {
	code := apperrors.CodeFromHTTPStatus(resp.StatusCode)
	message := "authority returned " + resp.Status

	var wire wireError
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err == nil && len(body) > 0 {
		if json.Unmarshal(body, &wire) == nil {
			if wire.Code != "" {
				code = apperrors.Code(wire.Code)
			}
			if strings.TrimSpace(wire.Message) != "" {
				message = wire.Message
			}
		}
	}

	metadata := map[string]string{
		"http_status": strconv.Itoa(resp.StatusCode),
	}
	requestID := wire.RequestID
	if requestID == "" {
		requestID = resp.Header.Get(requestIDHeader)
	}
	if requestID != "" {
		metadata["request_id"] = requestID
	}

	return apperrors.WithMetadata(code, message, metadata)
}

// HTTPStatusOf extracts the HTTP status recorded on a decoded gateway error,
// or zero when the error carries none (e.g. a transport failure).
func HTTPStatusOf(err error) int {
	for err != nil {
		if e, ok := err.(*apperrors.Error); ok {
			if raw := e.Metadata["http_status"]; raw != "" {
				status, convErr := strconv.Atoi(raw)
				if convErr == nil {
					return status
				}
			}
			return 0
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return 0
		}
		err = u.Unwrap()
	}
	return 0
}
