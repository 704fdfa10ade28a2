// ABOUTME: Tests for the subprocess executor
// ABOUTME: Uses /bin/sh as the interpreter so tests run without extra tooling

package executor

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newShell(t *testing.T) *Subprocess {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	s, err := NewSubprocess(SubprocessConfig{Command: []string{"sh"}, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return s
}

func TestSubprocess_Execute(t *testing.T) {
	s := newShell(t)

	res, err := s.Execute(context.Background(), "echo first\necho second\n", Options{})
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", res.Output)
	assert.Equal(t, "second", res.Value)
}

func TestSubprocess_Flags(t *testing.T) {
	s := newShell(t)
	code := "echo out\necho 42\n"

	res, err := s.Execute(context.Background(), code, Options{Quiet: true})
	require.NoError(t, err)
	assert.Empty(t, res.Output)
	assert.Equal(t, "42", res.Value)

	res, err = s.Execute(context.Background(), code, Options{Silent: true})
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestSubprocess_NonZeroExit(t *testing.T) {
	s := newShell(t)

	_, err := s.Execute(context.Background(), "echo broken >&2\nexit 3\n", Options{})
	var execErr *ExecError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, 3, execErr.ExitCode)
	assert.Contains(t, execErr.Error(), "broken")
}

func TestSubprocess_Timeout(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	s, err := NewSubprocess(SubprocessConfig{Command: []string{"sh"}, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = s.Execute(context.Background(), "sleep 5\n", Options{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubprocess_OutputLimit(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	s, err := NewSubprocess(SubprocessConfig{Command: []string{"sh"}, Timeout: 10 * time.Second, MaxOutput: 4096})
	require.NoError(t, err)

	start := time.Now()
	_, err = s.Execute(context.Background(), "while :; do echo flood; done\n", Options{})
	assert.ErrorIs(t, err, ErrOutputLimit)
	assert.Less(t, time.Since(start), 5*time.Second, "the interpreter is stopped once the cap is hit")

	_, err = s.Execute(context.Background(), "while :; do echo flood >&2; done\n", Options{})
	assert.ErrorIs(t, err, ErrOutputLimit)

	res, err := s.Execute(context.Background(), "echo small\n", Options{})
	require.NoError(t, err)
	assert.Equal(t, "small", res.Value)
}

func TestCappedBuffer(t *testing.T) {
	var calls int
	b := &cappedBuffer{limit: 5, onOverflow: func() { calls++ }}

	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.False(t, b.overflowed)

	n, err = b.Write([]byte("defgh"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.True(t, b.overflowed)

	_, _ = b.Write([]byte("more"))
	assert.Equal(t, "abcde", b.String())
	assert.Equal(t, 1, calls)
}

func TestNewSubprocess_NoInterpreter(t *testing.T) {
	_, err := NewSubprocess(SubprocessConfig{})
	assert.ErrorIs(t, err, ErrNoInterpreter)
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, "", lastLine(""))
	assert.Equal(t, "b", lastLine("a\nb\n\n"))
	assert.Equal(t, "only", lastLine("only"))
	assert.Equal(t, "x", lastLine("x\r\n"))
}
