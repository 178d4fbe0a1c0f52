package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain error")))

	wrapped := fmt.Errorf("context: %w", NewExitError(ExitSuccess, "fine"))
	assert.Equal(t, ExitSuccess, GetExitCode(wrapped))
}

func TestExitError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	err := WrapExitError(ExitFailure, "refresh failed", inner)

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "refresh failed")
	assert.Contains(t, err.Error(), "root cause")
}

func TestOutputFormatter_SuccessJSON(t *testing.T) {
	var out bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &out}

	require.NoError(t, f.Success(map[string]int{"rows": 3}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_ErrorJSON(t *testing.T) {
	var out bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &out}

	require.NoError(t, f.Error(ErrCodeRefreshFailed, "boom", nil))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeRefreshFailed, resp.Error.Code)
}

func TestOutputFormatter_ErrorText(t *testing.T) {
	var out bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &out}

	require.NoError(t, f.Error(ErrCodeBadQuery, "unknown table", nil))
	assert.Equal(t, "Error [E006]: unknown table\n", out.String())
}

func TestOutputFormatter_VerboseLogToErrWriter(t *testing.T) {
	var out, errOut bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &out, ErrWriter: &errOut, Verbose: true}

	f.VerboseLog("loaded %d rows", 7)
	assert.Empty(t, out.String(), "verbose logs never touch JSON output")
	assert.Equal(t, "loaded 7 rows\n", errOut.String())

	f.Verbose = false
	f.VerboseLog("dropped")
	assert.Equal(t, "loaded 7 rows\n", errOut.String())
}
