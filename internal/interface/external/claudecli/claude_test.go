package claudecli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_Args(t *testing.T) {
	r := Runner{Bin: "claude", SkipPermissions: true}
	args := r.Args(Request{
		Prompt:        "do it",
		ResumeSession: "sess-1",
		JSONSchema:    `{"type":"object"}`,
		AllowedTools:  []string{"Read", "Edit"},
	})

	assert.Equal(t, []string{
		"-p", "--output-format", "json",
		"--dangerously-skip-permissions",
		"--resume", "sess-1",
		"--json-schema", `{"type":"object"}`,
		"--allowed-tools", "Read,Edit",
		"do it",
	}, args)
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name      string
		out       string
		want      string
		session   string
		wantError bool
	}{
		{
			name:    "envelope",
			out:     `{"type":"result","subtype":"success","result":"done","session_id":"s1","total_cost_usd":0.12}`,
			want:    "done",
			session: "s1",
		},
		{
			name:    "structured output replaces result",
			out:     `{"type":"result","result":"ignored","session_id":"s2","structured_output":{"tasks":["a"]}}`,
			want:    `{"tasks":["a"]}`,
			session: "s2",
		},
		{
			name: "plain text",
			out:  "not json at all\n",
			want: "not json at all",
		},
		{
			name:      "empty",
			out:       "  ",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := ParseResponse([]byte(tt.out))
			if tt.wantError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Result)
			assert.Equal(t, tt.session, resp.SessionID)
		})
	}
}

// fakeClaude writes a script standing in for the claude binary
func fakeClaude(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claude")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestRunner_Run(t *testing.T) {
	bin := fakeClaude(t, `echo '{"type":"result","result":"ok from '"$(pwd)"'","session_id":"abc"}'`)
	dir := t.TempDir()

	resp, err := Runner{Bin: bin, Timeout: 10 * time.Second}.Run(context.Background(), Request{Prompt: "hi", Cwd: dir})
	require.NoError(t, err)
	assert.Equal(t, "abc", resp.SessionID)
	assert.Contains(t, resp.Result, filepath.Base(dir))
}

func TestRunner_RunErrorEnvelope(t *testing.T) {
	bin := fakeClaude(t, `echo '{"type":"result","is_error":true,"result":"rate limited"}'; exit 1`)

	_, err := Runner{Bin: bin}.Run(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestRunner_RunTimeout(t *testing.T) {
	bin := fakeClaude(t, `sleep 5`)

	_, err := Runner{Bin: bin, Timeout: 100 * time.Millisecond}.Run(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}
