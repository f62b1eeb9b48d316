package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/musicbox/internal/ir"
)

func runRenderCmd(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRenderCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRenderWritesWAV(t *testing.T) {
	dbPath := writeJournal(t, map[string][]ir.Intent{"lobby": contestedGrab()})
	out := filepath.Join(t.TempDir(), "lobby.wav")

	text, err := runRenderCmd(t, "text",
		"--db", dbPath, "--session", "lobby", "--out", out, "--tps", "4", "--rate", "8000")
	require.NoError(t, err)
	assert.Contains(t, text, "✓ Rendered "+out)
	assert.Contains(t, text, "from 6 intents")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Greater(t, len(data), 44)
	assert.Equal(t, "RIFF", string(data[:4]))
	assert.Equal(t, "WAVE", string(data[8:12]))
}

func TestRenderJSON(t *testing.T) {
	dbPath := writeJournal(t, map[string][]ir.Intent{"lobby": contestedGrab()})
	out := filepath.Join(t.TempDir(), "lobby.wav")

	text, err := runRenderCmd(t, "json",
		"--db", dbPath, "--session", "lobby", "-o", out, "--tps", "2", "--rate", "8000")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   RenderResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "lobby", resp.Data.Session)
	assert.Equal(t, 6, resp.Data.Intents)
	assert.Equal(t, 8000, resp.Data.Rate)
	assert.Equal(t, int64(500), resp.Data.PeriodMS)
}

func TestRenderErrors(t *testing.T) {
	dbPath := writeJournal(t, map[string][]ir.Intent{"lobby": contestedGrab()})
	out := filepath.Join(t.TempDir(), "x.wav")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing flags", []string{"--db", dbPath}, "required flag"},
		{"missing journal", []string{"--db", filepath.Join(t.TempDir(), "no.db"), "--session", "lobby", "--out", out}, "journal not found"},
		{"unknown session", []string{"--db", dbPath, "--session", "nope", "--out", out}, "failed to read session"},
		{"zero tps", []string{"--db", dbPath, "--session", "lobby", "--out", out, "--tps", "0"}, "tick rate must be positive"},
		{"zero rate", []string{"--db", dbPath, "--session", "lobby", "--out", out, "--rate", "0"}, "sample rate must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runRenderCmd(t, "text", tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	assert.NoFileExists(t, out)
}

func TestRenderPeriodFromConfig(t *testing.T) {
	dbPath := writeJournal(t, map[string][]ir.Intent{"lobby": contestedGrab()})
	cfgPath := writeConfig(t, `session: {name: "lobby", tps: 5}`)
	out := filepath.Join(t.TempDir(), "lobby.wav")

	text, err := runRenderCmd(t, "json",
		"--db", dbPath, "--session", "lobby", "--out", out, "--config", cfgPath, "--rate", "8000")
	require.NoError(t, err)

	var resp struct {
		Data RenderResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &resp))
	assert.Equal(t, int64(200), resp.Data.PeriodMS)
}
