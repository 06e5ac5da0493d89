package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"smsrelay/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// writeTestConfig writes a config pointing at endpointURL with a queue in a
// temp dir and returns the config and database paths.
func writeTestConfig(t *testing.T, endpointURL string) (string, string) {
	t.Helper()
	for _, key := range []string{"SMSRELAY_ENDPOINT_URL", "SMSRELAY_TOKEN", "SMSRELAY_DB_PATH", "SMSRELAY_ENV", "SMSRELAY_LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "queue.db")
	configPath := filepath.Join(dir, "config.yaml")
	content := "endpoint:\n  url: " + endpointURL + "\n  token: tok\ndatabase:\n  path: " + dbPath + "\nlog_level: error\n"
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))
	return configPath, dbPath
}

func seedQueue(t *testing.T, dbPath string, payloads ...string) {
	t.Helper()
	db, err := database.New(dbPath, false)
	require.NoError(t, err)
	defer db.Close()
	for i, payload := range payloads {
		_, err := db.Append(context.Background(), payload, int64(1700000000000+i))
		require.NoError(t, err)
	}
}

func queueCount(t *testing.T, dbPath string) int {
	t.Helper()
	db, err := database.New(dbPath, false)
	require.NoError(t, err)
	defer db.Close()
	count, err := db.Count(context.Background())
	require.NoError(t, err)
	return count
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "smsrelay "+Version)
	assert.Contains(t, out, "Git Commit")
}

func TestSealCommand(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	encoded := base64.StdEncoding.EncodeToString(der)

	out, err := runCommand(t, "seal", "--key", encoded, "--hybrid=false", "hello", "world")
	require.NoError(t, err)

	ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)
	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, key, ciphertext, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(plaintext))
}

func TestSealCommand_BadKey(t *testing.T) {
	_, err := runCommand(t, "seal", "--key", "not-a-key", "--hybrid=false", "hello")
	assert.Error(t, err)
}

func TestQueueListCommand(t *testing.T) {
	configPath, dbPath := writeTestConfig(t, "http://127.0.0.1:1/sms")
	seedQueue(t, dbPath, `{"sender":"+15551234","content":"a"}`, `[{"sender":"BANK","content":"b"}]`)

	out, err := runCommand(t, "queue", "list", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "records=1 sender=+****1234 content=[1 chars]")
	assert.Contains(t, out, "records=1 sender=BANK content=[1 chars]")
	assert.NotContains(t, out, "+15551234")
	assert.NotContains(t, out, `"content"`)
	assert.Contains(t, out, "2 entries")
}

func TestPayloadSummary(t *testing.T) {
	assert.Equal(t, "[unparseable, 8 bytes]", payloadSummary("not json"))
	assert.Equal(t, "records=0", payloadSummary("[]"))
	assert.Equal(t, "records=2 sender=+****4567 content=[6 chars]",
		payloadSummary(`[{"sender":"+15554567","content":"код 42"},{"sender":"X"}]`))

	long := payloadSummary(`{"sender":"` + strings.Repeat("é", 80) + `"}`)
	assert.True(t, utf8.ValidString(long))
	assert.True(t, strings.HasSuffix(long, "..."))
	assert.Equal(t, previewLength+3, utf8.RuneCountInString(long))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "short", truncateRunes("short", 10))
	assert.Equal(t, "日本...", truncateRunes("日本語テキスト", 2))
	assert.True(t, utf8.ValidString(truncateRunes("ééééé", 3)))
}

func TestQueuePurgeCommand(t *testing.T) {
	configPath, dbPath := writeTestConfig(t, "http://127.0.0.1:1/sms")
	seedQueue(t, dbPath, `{"sender":"a"}`, `{"sender":"b"}`)

	_, err := runCommand(t, "queue", "purge", "--config", configPath, "--yes=false")
	require.Error(t, err)
	assert.Equal(t, 2, queueCount(t, dbPath))

	out, err := runCommand(t, "queue", "purge", "--config", configPath, "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "purged 2 entries")
	assert.Equal(t, 0, queueCount(t, dbPath))
}

func TestDrainCommand(t *testing.T) {
	var hits int32
	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer endpoint.Close()

	configPath, dbPath := writeTestConfig(t, endpoint.URL)
	seedQueue(t, dbPath, `{"sender":"a","content":"1"}`, `{"sender":"b","content":"2"}`)

	out, err := runCommand(t, "drain", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "retried 2 entries, 0 remaining")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, 0, queueCount(t, dbPath))
}

func TestDrainCommand_EndpointDown(t *testing.T) {
	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer endpoint.Close()

	configPath, dbPath := writeTestConfig(t, endpoint.URL)
	seedQueue(t, dbPath, `{"sender":"a","content":"1"}`)

	out, err := runCommand(t, "drain", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "retried 1 entries, 1 remaining")
}

func TestDrainCommand_InvalidConfig(t *testing.T) {
	configPath, _ := writeTestConfig(t, "ftp://nowhere")
	_, err := runCommand(t, "drain", "--config", configPath)
	assert.Error(t, err)
}

func TestMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fresh.db")

	out, err := runCommand(t, "migrate", "--list=false", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Applied 001_failed_events")

	out, err = runCommand(t, "migrate", "--list=false", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Schema is up to date")
	assert.Equal(t, 0, queueCount(t, dbPath))
}

func TestMigrateCommand_List(t *testing.T) {
	out, err := runCommand(t, "migrate", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "001_failed_events.sql")
}

func TestMigrateCommand_RejectsTraversal(t *testing.T) {
	_, err := runCommand(t, "migrate", "--list=false", "--db", "../queue.db")
	assert.ErrorContains(t, err, "directory traversal")
}
