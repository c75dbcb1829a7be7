package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunEchoSucceeds(t *testing.T) {
	r := New(nil)
	res, err := r.Run(context.Background(), "echo hello", "")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Stdout, "hello")
}

func TestRunRefusesDangerousCommand(t *testing.T) {
	r := New(nil)
	_, err := r.Run(context.Background(), "rm -rf /tmp/whatever", "")
	require.Error(t, err)
	var refusal *RunError
	require.ErrorAs(t, err, &refusal)
	assert.True(t, refusal.Refused)
}

func TestRunRefusesInjection(t *testing.T) {
	r := New(nil)
	_, err := r.Run(context.Background(), "echo hi; rm -rf /", "")
	require.Error(t, err)
}

func TestRunHonorsExpiredDeadline(t *testing.T) {
	r := New(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Nanosecond)
	defer cancel()
	time.Sleep(2 * time.Millisecond)
	_, err := r.Run(ctx, "echo hello", "")
	require.Error(t, err)
}

func TestRunCapturesTruncation(t *testing.T) {
	r := New(nil, WithCaptureLimit(8))
	res, err := r.Run(context.Background(), "echo 0123456789abcdef", "")
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.LessOrEqual(t, len(res.Stdout), 8)
}
