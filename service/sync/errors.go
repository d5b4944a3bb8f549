package sync

import (
	"errors"

	"github.com/brojonat/moonportal/service/record"
	"github.com/brojonat/moonportal/service/wallet"
)

var (
	// ErrOperationInProgress rejects a request that would overlap one already in flight.
	ErrOperationInProgress = errors.New("operation in progress")

	// ErrInvalidMode rejects a request the current mode does not offer.
	ErrInvalidMode = errors.New("operation not available in current mode")

	// ErrStaleResponse marks a result that no longer matches the current identity
	// or latest request. It is logged and dropped, never shown.
	ErrStaleResponse = errors.New("stale response")

	// ErrStopped is returned when the controller loop is not running.
	ErrStopped = errors.New("controller stopped")
)

// ErrorKind is the user-facing classification of an error.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindProviderUnavailable ErrorKind = "ProviderUnavailable"
	KindUserRejected        ErrorKind = "UserRejected"
	KindNotFound            ErrorKind = "NotFound"
	KindFetchFailed         ErrorKind = "FetchFailed"
	KindAlreadyInitialized  ErrorKind = "AlreadyInitialized"
	KindSubmitFailed        ErrorKind = "SubmitFailed"
	KindOperationInProgress ErrorKind = "OperationInProgress"
	KindInvalidMode         ErrorKind = "InvalidMode"
	KindNotConnected        ErrorKind = "NotConnected"
	KindStaleResponse       ErrorKind = "StaleResponse"
	KindInternal            ErrorKind = "Internal"
)

// KindOf classifies err. A nil error is KindNone.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, wallet.ErrProviderUnavailable):
		return KindProviderUnavailable
	case errors.Is(err, wallet.ErrUserRejected):
		return KindUserRejected
	case errors.Is(err, wallet.ErrNotConnected):
		return KindNotConnected
	case errors.Is(err, record.ErrNotFound):
		return KindNotFound
	case errors.Is(err, record.ErrFetchFailed):
		return KindFetchFailed
	case errors.Is(err, record.ErrAlreadyInitialized):
		return KindAlreadyInitialized
	case errors.Is(err, record.ErrSubmitFailed):
		return KindSubmitFailed
	case errors.Is(err, ErrOperationInProgress):
		return KindOperationInProgress
	case errors.Is(err, ErrInvalidMode):
		return KindInvalidMode
	case errors.Is(err, ErrStaleResponse):
		return KindStaleResponse
	default:
		return KindInternal
	}
}
