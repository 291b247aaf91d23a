package fees

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestOverflowErrorIdentification(t *testing.T) {
	overflow := &OverflowError{PropertyID: 3, Block: 100, Current: 10, Amount: 20}
	if !IsOverflow(overflow) {
		t.Fatal("expected IsOverflow for OverflowError")
	}
	if !IsOverflow(fmt.Errorf("add fee: %w", overflow)) {
		t.Fatal("expected IsOverflow through wrapping")
	}
	if IsOverflow(errors.New("something else")) {
		t.Fatal("unexpected IsOverflow for unrelated error")
	}
}

func TestPurgeChainState(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "persist")
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "nested", "state"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := PurgeChainState(dir); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatal("expected chain state dir to be removed")
	}

	// Purging an already-missing dir is fine.
	if err := PurgeChainState(dir); err != nil {
		t.Fatalf("purge missing: %v", err)
	}

	if err := PurgeChainState(""); err == nil {
		t.Fatal("expected error for empty dir")
	}
}
