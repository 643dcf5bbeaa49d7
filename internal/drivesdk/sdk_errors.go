package drivesdk

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/imroc/req/v3"
)

var (
	ErrNoServerURL      = errors.New("sdk: server url missing")
	ErrInvalidServerURL = errors.New("sdk: invalid server url")

	// files
	ErrFileNotFound = errors.New("sdk: file not found")
	ErrPinDenied    = errors.New("sdk: pin denied")

	// events
	ErrEventsNotConnected = errors.New("sdk: events: not connected")
)

const (
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error
	CodeAccessDenied   = "E_ACCESS_DENIED"   // access denied
	CodeUnknownError   = "E_UNKNOWN_ERR"     // unknown error

	CodeFileNotFound = "E_FILE_NOT_FOUND" // no file with the given id or path
	CodeListFailed   = "E_LIST_FAILED"    // listing the remote tree failed
	CodePinDenied    = "E_PIN_DENIED"     // the file cannot be pinned
	CodePinFailed    = "E_PIN_FAILED"     // the pin state could not be changed
)

// APIError is the error body returned by the drive service
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func NewAPIError(code, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

// Is maps well known codes to the sdk sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrFileNotFound:
		return e.Code == CodeFileNotFound
	case ErrPinDenied:
		return e.Code == CodePinDenied
	}
	return false
}

// handleAPIError is a helper function that handles the common error pattern
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s %w", operation, requestErr)
	}

	// got a response, but api returned an error
	if resp.IsErrorState() {
		if err, ok := resp.ErrorResult().(*APIError); ok && err.Code != "" {
			return fmt.Errorf("%s %w", operation, err)
		}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%s %w", operation, ErrFileNotFound)
		}
		return fmt.Errorf("api error: %s status %d", operation, resp.StatusCode)
	}

	return nil
}
