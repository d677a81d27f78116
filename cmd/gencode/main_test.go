package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gencode "github.com/nevindra/gencode"
	"github.com/nevindra/gencode/internal/config"
	"github.com/nevindra/gencode/sandbox"
)

func TestNewRunner_Engines(t *testing.T) {
	cfg := config.Default().Sandbox

	r, closeFn, err := newRunner(cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, closeFn)
	assert.IsType(t, &sandbox.Interpreter{}, r)

	cfg.Engine = "remote"
	_, _, err = newRunner(cfg, nil)
	assert.ErrorContains(t, err, "sandbox.remote.url")

	cfg.Remote.URL = "http://sandbox:9000"
	r, _, err = newRunner(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &sandbox.Remote{}, r)

	cfg.Engine = "wasm"
	_, _, err = newRunner(cfg, nil)
	assert.ErrorContains(t, err, "unknown engine")
}

func TestNewRunner_Capabilities(t *testing.T) {
	cfg := config.Default().Sandbox
	cfg.Profile = "nope"
	_, _, err := newRunner(cfg, nil)
	assert.Error(t, err)

	cfg.Profile = "default"
	cfg.Allow = []string{"enumerate"}
	r, _, err := newRunner(cfg, nil)
	require.NoError(t, err)
	assert.True(t, r.(*sandbox.Interpreter).Capabilities().Has("enumerate"))
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	send := printer(&buf)
	require.NoError(t, send(context.Background(), "one"))
	require.NoError(t, send(context.Background(), "two"))
	assert.Equal(t, "one\n\ntwo\n", buf.String())
}

func TestReadSource(t *testing.T) {
	code, err := readSource(strings.NewReader("print(1)"), "-")
	require.NoError(t, err)
	assert.Equal(t, "print(1)", code)

	path := filepath.Join(t.TempDir(), "prog.py")
	require.NoError(t, os.WriteFile(path, []byte("print(2)"), 0o644))
	code, err = readSource(nil, path)
	require.NoError(t, err)
	assert.Equal(t, "print(2)", code)

	_, err = readSource(nil, filepath.Join(t.TempDir(), "missing.py"))
	assert.Error(t, err)
}

func TestBuildStack_ProviderOptional(t *testing.T) {
	cfg := config.Default()
	cfg.Provider.Name = "gemini" // no key
	flags := &globalFlags{}

	_, err := buildStack(context.Background(), &cfg, flags, true)
	assert.Error(t, err)

	s, err := buildStack(context.Background(), &cfg, flags, false)
	require.NoError(t, err)
	defer s.Close()
	assert.NotNil(t, s.runner)
	assert.Nil(t, s.gen)
}

func TestIgnoreCancel(t *testing.T) {
	assert.NoError(t, ignoreCancel(context.Canceled))
	boom := errors.New("boom")
	assert.Equal(t, boom, ignoreCancel(boom))
}

func TestOpenHistory(t *testing.T) {
	ctx := context.Background()
	logger := newLogger(false)

	store, err := openHistory(ctx, config.HistoryConfig{}, logger)
	require.NoError(t, err)
	assert.Nil(t, store)

	_, err = openHistory(ctx, config.HistoryConfig{Driver: "mongo"}, logger)
	assert.ErrorContains(t, err, "unknown driver")

	_, err = openHistory(ctx, config.HistoryConfig{Driver: "postgres"}, logger)
	assert.ErrorContains(t, err, "history.dsn")

	path := filepath.Join(t.TempDir(), "runs.db")
	store, err = openHistory(ctx, config.HistoryConfig{Driver: "sqlite", DSN: path}, logger)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.SaveRun(ctx, gencode.Run{ID: "r1", ChatID: "cli", Status: gencode.RunOK}))
	runs, err := store.ListRuns(ctx, "cli", 5)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestPrintRuns(t *testing.T) {
	var buf bytes.Buffer
	runs := []gencode.Run{
		{ChatID: "c1", Prompt: "sum   the\nnumbers", Status: gencode.RunOK, DurationMs: 1500, CreatedAt: 0},
		{ChatID: "c2", Prompt: strings.Repeat("x", 80), Status: gencode.RunExecutionFailed, Kind: gencode.OutcomeResourceExceeded},
	}
	require.NoError(t, printRuns(&buf, runs))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "TIME"))
	assert.Contains(t, lines[1], "1970-01-01 00:00:00")
	assert.Contains(t, lines[1], "1.5s")
	assert.Contains(t, lines[1], "sum the numbers")
	assert.Contains(t, lines[2], "execution_failed/resource_exceeded")
	assert.Contains(t, lines[2], strings.Repeat("x", 57)+"...")
}
