package errors_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/usorama/pingmem/internal/memstore"
	"github.com/usorama/pingmem/internal/preflight"
)

// TestErrorWrapping_Preflight verifies preflight errors are wrapped with context.
func TestErrorWrapping_Preflight(t *testing.T) {
	// MarkPassed should wrap os.MkdirAll errors
	err := preflight.MarkPassed("/nonexistent/deeply/nested/path/that/cannot/exist")
	if err == nil {
		t.Skip("Expected error creating marker in nonexistent path")
	}

	// Error should contain context about what operation failed
	errMsg := err.Error()
	if !strings.Contains(errMsg, "create") && !strings.Contains(errMsg, "marker") && !strings.Contains(errMsg, "directory") {
		t.Errorf("Error should contain context about creating marker directory, got: %s", errMsg)
	}
}

// TestErrorWrapping_Memstore verifies memstore.Open wraps malformed-file errors
// with context about what step failed.
func TestErrorWrapping_Memstore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memories.json")
	if err := os.WriteFile(path, []byte("not valid json"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	_, err := memstore.Open(path)
	if err == nil {
		t.Fatal("expected error opening malformed memory store")
	}

	errMsg := err.Error()
	if !strings.Contains(errMsg, "parse") {
		t.Errorf("error should mention the parse step that failed, got: %s", errMsg)
	}
}
