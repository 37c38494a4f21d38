// Package errors provides structured, coded errors for docindex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage and file IO errors
//   - 3XX: Upstream (network, embedding backend) errors
//   - 4XX: Request and data validation errors
//   - 5XX: Internal errors
package errors

// Category classifies an error by the subsystem that raised it.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates database and file I/O errors.
	CategoryStorage Category = "STORAGE"
	// CategoryUpstream indicates failures of external collaborators.
	CategoryUpstream Category = "UPSTREAM"
	// CategoryValidation indicates invalid input or violated constraints.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal aborts the current operation.
	SeverityFatal Severity = "FATAL"
	// SeverityError means the operation failed but the process continues.
	SeverityError Severity = "ERROR"
	// SeverityWarning means degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeStorageIO = "ERR_201_STORAGE_IO"
	ErrCodeFileRead  = "ERR_202_FILE_READ"
	ErrCodeNotFound  = "ERR_203_NOT_FOUND"
	ErrCodeLocked    = "ERR_204_LOCKED"

	// Upstream errors (300-399)
	ErrCodeNetworkTimeout      = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeUpstreamUnavailable = "ERR_302_UPSTREAM_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeBadRequest          = "ERR_401_BAD_REQUEST"
	ErrCodeConstraintViolation = "ERR_402_CONSTRAINT_VIOLATION"
	ErrCodeDimensionMismatch   = "ERR_403_DIMENSION_MISMATCH"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
)

// categoryFromCode extracts the category from the numeric part of a code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryUpstream
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeStorageIO, ErrCodeConfigInvalid, ErrCodeConfigNotFound:
		return SeverityFatal
	}
	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeUpstreamUnavailable, ErrCodeLocked:
		return true
	default:
		return false
	}
}
