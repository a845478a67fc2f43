package cmd

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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/leaddesk/api"
	"github.com/jmcleod/leaddesk/config"
	"github.com/jmcleod/leaddesk/internal/util"
	"github.com/jmcleod/leaddesk/ratelimit"
	"github.com/jmcleod/leaddesk/storage"
	"github.com/jmcleod/leaddesk/storage/memory"
)

// runCommand executes the root command with args and returns stdout.
func runCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		resetFlags()
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func resetFlags() {
	configPath = ""
	exportKind, exportStatus, exportOutput = "", "", ""
}

func writeConfig(t *testing.T, dbPath string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leaddesk.yaml")
	yaml := "storage:\n  driver: bbolt\n  path: " + dbPath + "\n" +
		"admin:\n  username: owner\n  password_hash: unused\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "leaddesk "+Version+" ("))
}

func TestHashPasswordCommand(t *testing.T) {
	out, err := runCommand(t, "s3cret-passphrase\n", "hash-password")
	require.NoError(t, err)

	hash := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))
	ok, err := util.VerifyPassword("s3cret-passphrase", hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHashPasswordCommand_Empty(t *testing.T) {
	_, err := runCommand(t, "\n", "hash-password")
	assert.Error(t, err)
}

func TestLeadsExportCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "data", "leads.db")
	cfg := config.Default()
	cfg.Storage.Path = dbPath

	repo, closeRepo, err := openRepository(context.Background(), cfg.Storage)
	require.NoError(t, err)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, l := range []*storage.Lead{
		{ID: "a", Kind: storage.KindContact, Status: storage.StatusNew, Email: "a@example.com", CreatedAt: base},
		{ID: "b", Kind: storage.KindChat, Status: storage.StatusNew, CreatedAt: base.Add(time.Hour)},
		{ID: "c", Kind: storage.KindContact, Status: storage.StatusArchived, CreatedAt: base.Add(2 * time.Hour)},
	} {
		l.UpdatedAt = l.CreatedAt
		require.NoError(t, repo.Put(context.Background(), l), "lead %d", i)
	}
	require.NoError(t, closeRepo())

	configFile := writeConfig(t, dbPath)

	out, err := runCommand(t, "", "leads", "export", "--config", configFile, "--kind", "contact")
	require.NoError(t, err)
	var export leadExport
	require.NoError(t, json.Unmarshal([]byte(out), &export))
	assert.Equal(t, 2, export.Count)
	assert.Equal(t, storage.KindContact, export.Filter.Kind)
	require.Len(t, export.Leads, 2)
	assert.Equal(t, "c", export.Leads[0].ID, "newest first")
	assert.Equal(t, "a", export.Leads[1].ID)

	outFile := filepath.Join(t.TempDir(), "leads.json")
	_, err = runCommand(t, "", "leads", "export", "--config", configFile, "--status", "archived", "-o", outFile)
	require.NoError(t, err)
	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &export))
	assert.Equal(t, 1, export.Count)
	assert.Equal(t, "c", export.Leads[0].ID)
}

func TestLeadsExportCommand_InvalidFilter(t *testing.T) {
	_, err := runCommand(t, "", "leads", "export", "--status", "done")
	assert.ErrorContains(t, err, "invalid --status")
}

func TestWriteExport_EmptyIsArray(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeExport(&buf, storage.Filter{}, nil, time.Unix(0, 0).UTC()))
	assert.Contains(t, buf.String(), `"leads": []`)
	assert.Contains(t, buf.String(), `"count": 0`)
}

func TestOpenRepository(t *testing.T) {
	repo, closeRepo, err := openRepository(context.Background(), config.StorageConfig{Driver: config.DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &memory.Repository{}, repo)
	assert.NoError(t, closeRepo())

	_, _, err = openRepository(context.Background(), config.StorageConfig{Driver: "mongo"})
	assert.ErrorContains(t, err, "unknown storage driver")
}

func TestServerTLSConfig(t *testing.T) {
	tlsConfig, err := serverTLSConfig(config.ServerConfig{})
	require.NoError(t, err)
	assert.Nil(t, tlsConfig, "plain HTTP when no TLS is configured")

	tlsConfig, err = serverTLSConfig(config.ServerConfig{SelfSignedTLS: true})
	require.NoError(t, err)
	require.NotNil(t, tlsConfig)
	assert.Len(t, tlsConfig.Certificates, 1)

	_, err = serverTLSConfig(config.ServerConfig{TLSCert: "/nonexistent.pem", TLSKey: "/nonexistent.key"})
	assert.Error(t, err)
}

func TestBuildLimiters_InMemory(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimits.Contact = ratelimit.Config{MaxPerMinute: 1}

	l, closeFn, err := buildLimiters(cfg, discardLogger())
	require.NoError(t, err)
	defer closeFn()

	assert.IsType(t, &ratelimit.Limiter{}, l.Contact)
	assert.IsType(t, &ratelimit.DailyLimiter{}, l.ChatSessions)
	assert.False(t, l.Contact.IsRateLimited("10.0.0.1"))
	assert.True(t, l.Contact.IsRateLimited("10.0.0.1"))
}

func TestBuildLimiters_Redis(t *testing.T) {
	cfg := config.Default()
	cfg.Redis.Addr = "127.0.0.1:0"

	l, closeFn, err := buildLimiters(cfg, discardLogger())
	require.NoError(t, err)
	defer closeFn()

	assert.IsType(t, &ratelimit.RedisLimiter{}, l.Contact)
	assert.IsType(t, &ratelimit.RedisLimiter{}, l.Login)
	assert.IsType(t, &ratelimit.RedisLimiter{}, l.ChatSessions)
}

func TestBuildLimiters_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimits.Login = ratelimit.Config{}
	_, _, err := buildLimiters(cfg, discardLogger())
	assert.ErrorIs(t, err, ratelimit.ErrInvalidConfig)
}

func TestRouter(t *testing.T) {
	cfg := config.Default()
	cfg.Admin = config.AdminConfig{Username: "owner", PasswordHash: "unused"}
	a, closeAPI, err := buildAPI(cfg, memory.NewRepository(), api.Limiters{}, discardLogger())
	require.NoError(t, err)
	defer closeAPI()

	h, err := newRouter(a, discardLogger())
	require.NoError(t, err)

	for _, tt := range []struct {
		path   string
		status int
	}{
		{"/health", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/api/openapi.yaml", http.StatusOK},
		{"/", http.StatusOK},
		{"/admin/leads", http.StatusOK},
		{"/no-such-page", http.StatusNotFound},
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		assert.Equal(t, tt.status, rec.Code, tt.path)
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"), tt.path)
	}
}
