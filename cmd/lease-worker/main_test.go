package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sungwon/lease-worker/internal/auth"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "lease-worker dev (unknown)\n", out.String())
}

func TestRunCommand_RejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("queue:\n  type: kafka\n"), 0o600))

	cmd := rootCmd()
	cmd.SetArgs([]string{"run", "--config", dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown queue.type "kafka"`)
}

func TestParseAttrs(t *testing.T) {
	got, err := parseAttrs([]string{"tenant=acme", "note=a=b", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"tenant": "acme", "note": "a=b", "empty": ""}, got)

	got, err = parseAttrs(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseAttrs([]string{"novalue"})
	assert.ErrorContains(t, err, `invalid attribute "novalue"`)
	_, err = parseAttrs([]string{"=x"})
	assert.Error(t, err)
}

func TestKeygenCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"keygen"})
	require.NoError(t, cmd.Execute())

	var key, hash string
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		label, value, ok := strings.Cut(line, ":")
		require.True(t, ok, line)
		switch strings.TrimSpace(label) {
		case "api key":
			key = strings.TrimSpace(value)
		case "http.api_key_hash":
			hash = strings.TrimSpace(value)
		}
	}
	require.NotEmpty(t, key)
	require.NotEmpty(t, hash)
	assert.NoError(t, auth.VerifyAPIKey(hash, key))
}

type countingPublisher struct {
	n int
}

func (p *countingPublisher) Publish(context.Context, []byte, map[string]string) (string, error) {
	p.n++
	return fmt.Sprintf("id-%d", p.n), nil
}

func TestPublishN(t *testing.T) {
	var out bytes.Buffer
	pub := &countingPublisher{}

	require.NoError(t, publishN(context.Background(), pub, &out, []byte("x"), nil, 3, 0))
	assert.Equal(t, "id-1\nid-2\nid-3\n", out.String())
}

func TestPublishN_StopsWaitingOnCancel(t *testing.T) {
	var out bytes.Buffer
	pub := &countingPublisher{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- publishN(ctx, pub, &out, []byte("x"), nil, 5, time.Hour) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Contains(t, err.Error(), "sent 1 of 5 messages")
	case <-time.After(2 * time.Second):
		t.Fatal("publishN kept sleeping after cancellation")
	}
	assert.Equal(t, 1, pub.n)
}
