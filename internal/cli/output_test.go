package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/dao"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
)

func TestOutputFormatter_Success(t *testing.T) {
	tests := []struct {
		name   string
		format string
		data   any
		want   string
	}{
		{"json", "json", map[string]string{"a": "b"}, `{"status":"ok","data":{"a":"b"}}` + "\n"},
		{"text", "text", "done", "done\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := &OutputFormatter{Format: tt.format, Writer: buf}
			require.NoError(t, f.Success(tt.data))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestOutputFormatter_Value(t *testing.T) {
	p := ir.PayloadOf("name", "Alice")

	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}
	require.NoError(t, f.Value(p))
	assert.Equal(t, "{\n  \"name\": \"Alice\"\n}\n", buf.String())

	buf.Reset()
	require.NoError(t, f.Value(ir.Integer(3)))
	assert.Equal(t, "3\n", buf.String())

	buf.Reset()
	require.NoError(t, f.Value(nil))
	assert.Empty(t, buf.String())

	buf.Reset()
	f.Format = "json"
	require.NoError(t, f.Value(ir.Collection{p}))
	assert.JSONEq(t, `{"status":"ok","data":[{"name":"Alice"}]}`, buf.String())
}

func TestOutputFormatter_Error(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}
	require.NoError(t, f.Error("E010", "bad", "why"))
	assert.Equal(t, "Error [E010]: bad\nDetails: why\n", buf.String())

	buf.Reset()
	f.Format = "json"
	require.NoError(t, f.Error("E010", "bad", nil))
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E010", resp.Error.Code)
}

func TestOutputFormatter_Fail(t *testing.T) {
	t.Run("dao error", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}
		err := f.Fail(fmt.Errorf("wrapped: %w", &dao.Error{
			Code: dao.CodeState, Op: "delete", Type: "Customer", ID: "c1", Rule: dao.RuleIntegrity, Message: "still referenced",
		}))
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.JSONEq(t, `{"status":"error","error":{"code":"STATE","message":"still referenced",
			"details":{"op":"delete","type":"Customer","id":"c1","rule":"integrity"}}}`, buf.String())
	})

	t.Run("exit error passes through", func(t *testing.T) {
		f := &OutputFormatter{Format: "text", Writer: &bytes.Buffer{}}
		exit := NewExitError(ExitFailure, "not found")
		assert.Same(t, exit, f.Fail(exit))
	})

	t.Run("other errors are command errors", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: buf}
		err := f.Fail(errors.New("disk full"))
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, buf.String(), "Error [E001]: disk full")
	})
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut}
	f.VerboseLog("hidden")
	assert.Empty(t, errOut.String())

	f.Verbose = true
	f.VerboseLog("loaded %d", 2)
	assert.Empty(t, out.String())
	assert.Equal(t, "loaded 2\n", errOut.String())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "x")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("x")))
	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "inner", errors.New("cause")))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.Equal(t, "outer: inner: cause", wrapped.Error())
}
