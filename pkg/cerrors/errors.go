package cerrors

import "github.com/palantir/stacktrace"

type ErrorType string

const (
	ErrorTypeNonUserFriendly       ErrorType = "NON_USER_FRIENDLY_ERROR"
	ErrorTypeControllerUnavailable ErrorType = "CONTROLLER_UNAVAILABLE"
	ErrorTypeTargetNotFound        ErrorType = "TARGET_NOT_FOUND"
	ErrorTypeTriggerFailed         ErrorType = "TRIGGER_FAILED"
	ErrorTypeStuckNotStarted       ErrorType = "STUCK_NOT_STARTED"
	ErrorTypeChaosTimeout          ErrorType = "CHAOS_TIMEOUT"
	ErrorTypeChaosFailedVerdict    ErrorType = "CHAOS_FAILED_VERDICT"
	ErrorTypeRecoveryTimeout       ErrorType = "RECOVERY_TIMEOUT"
	ErrorTypeCancelled             ErrorType = "CANCELLED"
	ErrorTypeCatalogInvalid        ErrorType = "CATALOG_INVALID"
)

type userFriendly interface {
	UserFriendly() bool
	ErrorType() ErrorType
}

// IsUserFriendly returns true if err is marked as safe to surface in a scenario result
func IsUserFriendly(err error) bool {
	ufe, ok := err.(userFriendly)
	return ok && ufe.UserFriendly()
}

// GetErrorType returns the type of error if the error is user-friendly
func GetErrorType(err error) ErrorType {
	if ufe, ok := err.(userFriendly); ok {
		return ufe.ErrorType()
	}
	return ErrorTypeNonUserFriendly
}

// GetRootCauseAndErrorCode unwraps err down to its root cause and reports
// the taxonomy entry it belongs to
func GetRootCauseAndErrorCode(err error) (string, ErrorType) {
	rootCause := stacktrace.RootCause(err)
	errorType := GetErrorType(rootCause)
	if !IsUserFriendly(rootCause) {
		return err.Error(), errorType
	}
	return rootCause.Error(), errorType
}
