package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

// executeCmd runs the root command with args and returns captured stdout
// and any error.
func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

// writeConfig writes content to a config file in a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configPath
}

func TestRunValidate_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
port: 8080
poll_interval: 4s
topology: path
base_url: http://vm.example.com
sources:
  - slot: check
    url: http://checks.example.com/checks
`)

	output, err := executeCmd(t, "validate", "-c", configPath)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}

	expectedPhrases := []string{
		"Config is valid!",
		"Port:          8080",
		"Poll interval: 4s",
		"Notice TTL:    7s",
		"Topology:      path",
		"Update URL:    http://vm.example.com/consistency_check/update",
		"Sources:       5",
		"http://vm.example.com/analyzer/stream/chats?index={{.Index}}",
		"http://checks.example.com/checks",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, output)
		}
	}
}

func TestRunValidate_InvalidConfig(t *testing.T) {
	configPath := writeConfig(t, `
port: 8080
sources:
  - slot: ""
    url: https://example.com
`)

	_, err := executeCmd(t, "validate", "-c", configPath)
	if err == nil {
		t.Fatal("validate command expected error for invalid config, got nil")
	}

	if !strings.Contains(err.Error(), "slot is required") {
		t.Errorf("error should mention 'slot is required', got: %v", err)
	}
}

func TestRunValidate_MissingFile(t *testing.T) {
	_, err := executeCmd(t, "validate", "-c", "/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("validate command expected error for missing file, got nil")
	}

	if !strings.Contains(err.Error(), "failed to read") {
		t.Errorf("error should mention 'failed to read', got: %v", err)
	}
}

func TestRunUpdate_Success(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"updated": true}`))
	}))
	defer server.Close()

	configPath := writeConfig(t, `
update_url: `+server.URL+`/consistency_check/update
sources:
  - slot: check
    url: `+server.URL+`/consistency_check/checks
`)

	output, err := executeCmd(t, "update", "-c", configPath, "--log-level", "error")
	if err != nil {
		t.Fatalf("update command error = %v", err)
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
	for _, phrase := range []string{"Update successful!", "Status:  200", `Reply:   {"updated":true}`} {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, output)
		}
	}
}

func TestRunUpdate_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	configPath := writeConfig(t, `
update_url: `+server.URL+`/update
sources:
  - slot: check
    url: `+server.URL+`/checks
`)

	_, err := executeCmd(t, "update", "-c", configPath, "--log-level", "error")
	if err == nil {
		t.Fatal("update command expected error, got nil")
	}
	if !strings.Contains(err.Error(), "update failed") {
		t.Errorf("error = %v, want to mention 'update failed'", err)
	}
}

func TestRunUpdate_NoUpdateURL(t *testing.T) {
	configPath := writeConfig(t, `
topology: port
base_url: http://localhost
`)

	_, err := executeCmd(t, "update", "-c", configPath, "--log-level", "error")
	if err == nil {
		t.Fatal("update command expected error, got nil")
	}
	if !strings.Contains(err.Error(), "no update endpoint configured") {
		t.Errorf("error = %v", err)
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	configPath := writeConfig(t, "topology: path\nbase_url: http://localhost\n")

	_, err := executeCmd(t, "update", "-c", configPath, "--log-level", "loud")
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "invalid --log-level") {
		t.Errorf("error = %v", err)
	}
}

func TestVersion(t *testing.T) {
	output, err := executeCmd(t, "version")
	if err != nil {
		t.Fatalf("version command error = %v", err)
	}
	if !strings.Contains(output, "statboard dev") {
		t.Errorf("output = %q, want to contain %q", output, "statboard dev")
	}
}
