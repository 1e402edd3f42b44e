package errors_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bbowles1/HIPPO/pkg/errors"
)

func TestErrorCode_String(t *testing.T) {
	assert.Equal(t, "ONT_001", errors.ErrCodeOntologyLoadFailed.String())
}

func TestDefaultMessageForCode(t *testing.T) {
	assert.Equal(t, "no concept could be mapped to the ontology", errors.DefaultMessageForCode(errors.ErrCodeNoMappedConcepts))
	assert.Equal(t, "unknown error", errors.DefaultMessageForCode("NOPE_999"))
}

func TestEveryCodeHasMessage(t *testing.T) {
	for code, msg := range errors.ErrorCodeMessage {
		assert.NotEmpty(t, msg, "code %s", code)
		assert.NotEqual(t, "UNKNOWN", errors.ModuleForCode(code), "code %s", code)
	}
}

func TestModuleForCode(t *testing.T) {
	tests := []struct {
		code errors.ErrorCode
		want string
	}{
		{errors.ErrCodeInternal, "COMMON"},
		{errors.ErrCodeOntologyCycle, "ONT"},
		{errors.ErrCodeInputUnreadable, "TBL"},
		{errors.ErrCodeMatrixBuildFailed, "SIM"},
		{errors.CodeUnknown, "UNKNOWN"},
		{"_001", "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errors.ModuleForCode(tt.code), string(tt.code))
	}
}

func TestExitCodeForCode(t *testing.T) {
	tests := []struct {
		code errors.ErrorCode
		want int
	}{
		{errors.CodeOK, errors.ExitOK},
		{errors.ErrCodeValidation, errors.ExitUsage},
		{errors.ErrCodeConfigInvalid, errors.ExitUsage},
		{errors.ErrCodeInputMissingColumn, errors.ExitInput},
		{errors.ErrCodeNoMappedConcepts, errors.ExitInput},
		{errors.ErrCodeOntologyLoadFailed, errors.ExitOntology},
		{errors.ErrCodeMatrixBuildFailed, errors.ExitFailure},
		{errors.CodeUnknown, errors.ExitFailure},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errors.ExitCodeForCode(tt.code), string(tt.code))
	}
}
