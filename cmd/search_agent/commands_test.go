package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/talent-search/internal/config"
	"github.com/jonathan/talent-search/internal/grading"
	"github.com/jonathan/talent-search/internal/logger"
	"github.com/jonathan/talent-search/internal/signature"
)

// executeCommand runs the root command in-process and returns its stdout.
func executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		signSecret = ""
		suggestJobTitle = ""
		migrateConfigPath = ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSignCommand_File(t *testing.T) {
	payload := []byte(`{"search_id":"7d0c9e4e-3f55-4a8e-9d8f-3c1f4f0b7a10","status":"ready"}`)
	path := filepath.Join(t.TempDir(), "payload.json")
	require.NoError(t, os.WriteFile(path, payload, 0644))

	out, err := executeCommand(t, "", "sign", "--secret", "whsec_cli", path)
	require.NoError(t, err)

	want := signature.HeaderName + ": " + signature.Sign(payload, []byte("whsec_cli")) + "\n"
	assert.Equal(t, want, out)
}

func TestSignCommand_StdinAndEnvSecret(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "whsec_env")

	out, err := executeCommand(t, "{}", "sign")
	require.NoError(t, err)
	assert.Contains(t, out, signature.Sign([]byte("{}"), []byte("whsec_env")))
}

func TestSignCommand_NoSecret(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "")

	_, err := executeCommand(t, "{}", "sign")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret is required")
}

func TestSuggestCommand(t *testing.T) {
	out, err := executeCommand(t, "", "suggest", "--job-title", "SRE")
	require.NoError(t, err)

	var got grading.Suggestion
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.NoError(t, grading.Validate(got.Dimensions, got.Weights))
}

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: config.DriverSQLite, SQLitePath: filepath.Join(dir, "searches.db")},
		Blob:     config.BlobConfig{Driver: config.BlobFile, Dir: filepath.Join(dir, "attachments")},
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestMigrateCommand_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrate.db")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DATABASE_DRIVER", config.DriverSQLite)
	t.Setenv("SQLITE_PATH", path)
	t.Setenv("LOG_LEVEL", "error")

	out, err := executeCommand(t, "", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Migrations applied (sqlite)")

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestBuildServer_SQLite(t *testing.T) {
	cfg := sqliteConfig(t)

	srv, cleanup, err := buildServer(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = srv.Shutdown()
		cleanup()
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/connections", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"database":"ok"`)
	assert.Contains(t, rec.Body.String(), `"blob":"ok"`)

	// Without a secret the callback route refuses everything.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/automation/search-updated", strings.NewReader("{}")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBuildServer_BadReplayURL(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Replay.RedisURL = "not-a-redis-url"

	_, _, err := buildServer(context.Background(), cfg, logger.Nop())
	assert.Error(t, err)
}

func TestOpenBlobs_Unsupported(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Blob.Driver = "s3"

	_, err := openBlobs(context.Background(), cfg)
	assert.Error(t, err)
}
