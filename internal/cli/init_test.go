package cli

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tally/internal/core"
)

func TestSetupLoggerHonoursLevel(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := setupLogger(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown")
	slog.Error("via default")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "via default") {
		t.Fatalf("expected warn and default error records, got %q", out)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("TALLY_CLI_TEST_KEY=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Chdir(dir)
	t.Setenv("TALLY_CLI_TEST_KEY", "")
	os.Unsetenv("TALLY_CLI_TEST_KEY")

	LoadEnvFile()
	if got := os.Getenv("TALLY_CLI_TEST_KEY"); got != "from-dotenv" {
		t.Fatalf("expected value from .env, got %q", got)
	}
}

func TestInitSQLite(t *testing.T) {
	repo := InitSQLite(slog.Default(), filepath.Join(t.TempDir(), "tally.db"), core.NewEntitySet(core.DefaultEntities))
	defer repo.Close()
	if err := repo.Ping(t.Context()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
