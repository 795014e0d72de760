package archive

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLedgerAddAndIsInSuccessIds(t *testing.T) {
	dir := t.TempDir()
	l := NewLedger(dir, "1001")

	if err := l.InitSuccessIds(); err != nil {
		t.Fatalf("InitSuccessIds: %v", err)
	}
	if l.IsInSuccessIds(5) {
		t.Fatal("expected 5 to be absent initially")
	}

	if err := l.AddSuccessId(5); err != nil {
		t.Fatalf("AddSuccessId: %v", err)
	}
	if !l.IsInSuccessIds(5) {
		t.Error("expected 5 present after AddSuccessId")
	}

	data, err := os.ReadFile(filepath.Join(dir, "success-1001.txt"))
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	if string(data) != "5\r\n" {
		t.Errorf("ledger content = %q, want %q", data, "5\r\n")
	}
}

func TestLedgerInitClearsStaleTemp(t *testing.T) {
	dir := t.TempDir()
	tempPath := filepath.Join(dir, "success-1001-temp.txt")
	if err := os.WriteFile(tempPath, []byte("7\r\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLedger(dir, "1001")
	if err := l.InitSuccessIds(); err != nil {
		t.Fatalf("InitSuccessIds: %v", err)
	}

	if _, err := os.Stat(tempPath); !os.IsNotExist(err) {
		t.Errorf("expected stale temp ledger removed, stat err = %v", err)
	}
}

func TestLedgerSeesPeerIds(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "success-2002.txt"), []byte("11\r\n12\r\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLedger(dir, "1001")
	if err := l.InitSuccessIds(); err != nil {
		t.Fatalf("InitSuccessIds: %v", err)
	}

	if !l.IsInSuccessIds(11) || !l.IsInSuccessIds(12) {
		t.Error("expected peer ids 11 and 12 to be visible")
	}
	if l.IsInSuccessIds(13) {
		t.Error("expected id 13 to be absent")
	}
}

func TestLedgerRemoveSuccessIdPreservesOrder(t *testing.T) {
	dir := t.TempDir()
	l := NewLedger(dir, "1001")
	if err := l.InitSuccessIds(); err != nil {
		t.Fatalf("InitSuccessIds: %v", err)
	}

	for _, id := range []int64{1, 2, 3, 4} {
		if err := l.AddSuccessId(id); err != nil {
			t.Fatalf("AddSuccessId(%d): %v", id, err)
		}
	}

	if err := l.RemoveSuccessId(2); err != nil {
		t.Fatalf("RemoveSuccessId: %v", err)
	}
	if l.IsInSuccessIds(2) {
		t.Error("expected 2 removed")
	}

	data, err := os.ReadFile(filepath.Join(dir, "success-1001.txt"))
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	want := "1\r\n3\r\n4\r\n"
	if string(data) != want {
		t.Errorf("ledger content = %q, want %q", data, want)
	}
}

func TestLedgerAddTempSuccessId(t *testing.T) {
	dir := t.TempDir()
	l := NewLedger(dir, "1001")
	if err := l.AddTempSuccessId(9); err != nil {
		t.Fatalf("AddTempSuccessId: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "success-1001-temp.txt"))
	if err != nil {
		t.Fatalf("read temp ledger: %v", err)
	}
	if string(data) != "9\r\n" {
		t.Errorf("temp ledger content = %q, want %q", data, "9\r\n")
	}
}
