package errors

import "strings"

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeValidation         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_003"
	ErrCodeTimeout            ErrorCode = "COMMON_004"
	ErrCodeCancelled          ErrorCode = "COMMON_005"
	ErrCodeSerialization      ErrorCode = "COMMON_006"
	ErrCodeDatabaseError      ErrorCode = "COMMON_007"
	ErrCodeCacheError         ErrorCode = "COMMON_008"
	ErrCodeStorageError       ErrorCode = "COMMON_009"
	ErrCodeMessagingError     ErrorCode = "COMMON_010"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_011"
	ErrCodeConfigInvalid      ErrorCode = "COMMON_012"
)

// Aliases
const (
	CodeUnknown = ErrorCode("UNKNOWN")
	CodeOK      = ErrorCode("OK")
)

// Ontology Module Error Codes
const (
	ErrCodeOntologyLoadFailed   ErrorCode = "ONT_001"
	ErrCodeOntologyParseFailed  ErrorCode = "ONT_002"
	ErrCodeOntologyCycle        ErrorCode = "ONT_003"
	ErrCodeOntologyEmpty        ErrorCode = "ONT_004"
	ErrCodeOntologyImportFailed ErrorCode = "ONT_005"
	ErrCodeOntologyQueryFailed  ErrorCode = "ONT_006"
)

// Input Table Error Codes
const (
	ErrCodeInputUnreadable    ErrorCode = "TBL_001"
	ErrCodeInputMissingColumn ErrorCode = "TBL_002"
	ErrCodeInputMalformedRow  ErrorCode = "TBL_003"
	ErrCodeOutputWriteFailed  ErrorCode = "TBL_004"
	ErrCodeNoMappedConcepts   ErrorCode = "TBL_005"
	ErrCodeNoCases            ErrorCode = "TBL_006"
)

// Similarity Module Error Codes
const (
	ErrCodeICModelEmpty        ErrorCode = "SIM_001"
	ErrCodeICConceptUnobserved ErrorCode = "SIM_002"
	ErrCodeMatrixBuildFailed   ErrorCode = "SIM_003"
	ErrCodeMatrixLabelMismatch ErrorCode = "SIM_004"
)

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal error",
	ErrCodeValidation:         "validation failed",
	ErrCodeNotFound:           "resource not found",
	ErrCodeTimeout:            "operation timed out",
	ErrCodeCancelled:          "operation cancelled",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeStorageError:       "object storage error",
	ErrCodeMessagingError:     "messaging error",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeConfigInvalid:      "invalid configuration",

	ErrCodeOntologyLoadFailed:   "failed to load ontology catalog",
	ErrCodeOntologyParseFailed:  "failed to parse ontology catalog",
	ErrCodeOntologyCycle:        "is-a cycle detected in ontology",
	ErrCodeOntologyEmpty:        "ontology catalog contains no terms",
	ErrCodeOntologyImportFailed: "failed to import ontology into graph store",
	ErrCodeOntologyQueryFailed:  "ontology ancestor query failed",

	ErrCodeInputUnreadable:    "input table is unreadable",
	ErrCodeInputMissingColumn: "input table is missing a required column",
	ErrCodeInputMalformedRow:  "input table row is malformed",
	ErrCodeOutputWriteFailed:  "failed to write output matrix",
	ErrCodeNoMappedConcepts:   "no concept could be mapped to the ontology",
	ErrCodeNoCases:            "input table contains no usable cases",

	ErrCodeICModelEmpty:        "information content model is empty",
	ErrCodeICConceptUnobserved: "concept was not observed in the corpus",
	ErrCodeMatrixBuildFailed:   "similarity matrix computation failed",
	ErrCodeMatrixLabelMismatch: "matrix labels do not match its dimension",
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 1 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}

// Process exit codes returned by the hippo binary.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitUsage    = 2
	ExitInput    = 3
	ExitOntology = 4
)

// ExitCodeForCode maps an ErrorCode onto the process exit status.
func ExitCodeForCode(code ErrorCode) int {
	switch code {
	case CodeOK:
		return ExitOK
	case ErrCodeValidation, ErrCodeConfigInvalid:
		return ExitUsage
	}
	switch ModuleForCode(code) {
	case "TBL":
		return ExitInput
	case "ONT":
		return ExitOntology
	}
	return ExitFailure
}
