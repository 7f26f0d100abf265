package portalclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error
	ErrTypeNetwork ErrorType = iota
	// ErrTypeHTTP indicates an unexpected HTTP status
	ErrTypeHTTP
	// ErrTypeParse indicates a page that could not be understood
	ErrTypeParse
	// ErrTypeValidation indicates invalid request values
	ErrTypeValidation
	// ErrTypeTimeout indicates a request timeout
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates the portal refused the connection
	ErrTypeConnectionRefused
	// ErrTypeBusy indicates the portal is busy with a connection attempt
	ErrTypeBusy
	// ErrTypeRedirect indicates a captive redirect; the address is not the portal
	ErrTypeRedirect
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeParse:
		return "Parse Error"
	case ErrTypeValidation:
		return "Validation Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeBusy:
		return "Portal Busy"
	case ErrTypeRedirect:
		return "Captive Redirect"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// PortalError is an error from talking to a portal.
type PortalError struct {
	Type       ErrorType
	Message    string
	StatusCode int    // HTTP status code, when applicable
	Location   string // redirect target for ErrTypeRedirect
	Err        error
	DeviceURL  string
	Retryable  bool
}

// Error implements the error interface
func (e *PortalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *PortalError) Unwrap() error {
	return e.Err
}

// NewNetworkError classifies a transport error.
func NewNetworkError(message string, err error) *PortalError {
	e := &PortalError{Type: ErrTypeNetwork, Message: message, Err: err, Retryable: true}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	var opErr *net.OpError
	switch {
	case err == nil:
	case errors.Is(err, os.ErrDeadlineExceeded) || os.IsTimeout(err):
		e.Type = ErrTypeTimeout
	case errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.ECONNREFUSED):
		e.Type = ErrTypeConnectionRefused
	case errors.Is(err, syscall.ECONNREFUSED):
		e.Type = ErrTypeConnectionRefused
	}
	if errors.Is(err, context.Canceled) {
		e.Retryable = false
	}
	return e
}

// NewHTTPError creates an error for an unexpected status. 5xx is retryable.
func NewHTTPError(statusCode int, message string) *PortalError {
	return &PortalError{
		Type:       ErrTypeHTTP,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  statusCode >= 500,
	}
}

// NewBusyError is returned for 503 while a connection attempt is pending.
func NewBusyError(retryAfter string) *PortalError {
	msg := "portal is connecting to a network"
	if retryAfter != "" {
		msg += ", retry after " + retryAfter + "s"
	}
	return &PortalError{Type: ErrTypeBusy, Message: msg, StatusCode: 503, Retryable: true}
}

// NewRedirectError is returned when the portal redirects the request.
func NewRedirectError(location string) *PortalError {
	return &PortalError{
		Type:       ErrTypeRedirect,
		Message:    "redirected to " + location,
		StatusCode: 302,
		Location:   location,
	}
}

// NewParseError creates a parsing error
func NewParseError(message string, err error) *PortalError {
	return &PortalError{Type: ErrTypeParse, Message: message, Err: err}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *PortalError {
	return &PortalError{Type: ErrTypeValidation, Message: message}
}

func errorType(err error) (ErrorType, bool) {
	var pe *PortalError
	if errors.As(err, &pe) {
		return pe.Type, true
	}
	return 0, false
}

// IsNetworkError reports transport failures, including timeouts and refusals.
func IsNetworkError(err error) bool {
	t, ok := errorType(err)
	return ok && (t == ErrTypeNetwork || t == ErrTypeTimeout || t == ErrTypeConnectionRefused)
}

// IsBusy reports a 503 from a portal that is mid-connection.
func IsBusy(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeBusy
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeValidation
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	var pe *PortalError
	return errors.As(err, &pe) && pe.Retryable
}

// GetTroubleshootingHint returns user-facing advice for an error.
func GetTroubleshootingHint(err error) string {
	var pe *PortalError
	if !errors.As(err, &pe) {
		return "An unexpected error occurred. Please try again."
	}

	switch pe.Type {
	case ErrTypeTimeout, ErrTypeConnectionRefused, ErrTypeNetwork:
		return strings.Join([]string{
			"The portal did not answer.",
			"Troubleshooting:",
			"  • Join the device's access point first",
			"  • The portal address is usually 192.168.4.1",
			"  • The device may already be on your network; try 'wifiportal-cfg discover'",
		}, "\n")
	case ErrTypeBusy:
		return "The device is trying to join a network. Wait a few seconds and check 'wifiportal-cfg info'."
	case ErrTypeRedirect:
		return fmt.Sprintf("The request was redirected to %s. Use the portal's IP address instead of a hostname.", pe.Location)
	case ErrTypeHTTP:
		return fmt.Sprintf("The portal returned HTTP %d. Check the device logs.", pe.StatusCode)
	case ErrTypeParse:
		return "The page did not look like a wifiportal page. Check the address."
	case ErrTypeValidation:
		return "The values are invalid. Check the error message for details."
	default:
		return "An error occurred. Please check the error message for details."
	}
}
