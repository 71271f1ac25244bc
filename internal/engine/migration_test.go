package engine

import (
	"os"
	"testing"
)

func TestMigrate(t *testing.T) {
	src, err := NewPersistence(t.TempDir(), "", false)
	if err != nil {
		t.Fatalf("NewPersistence failed: %v", err)
	}
	dst, err := NewPersistence(t.TempDir(), "", false)
	if err != nil {
		t.Fatalf("NewPersistence failed: %v", err)
	}

	src.Save("Steve", []byte("vault1: abc\nnote: kept\n"))
	src.Save("Alex", []byte("vault2: def\n"))

	n, err := Migrate(src, dst)
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 migrated files, got %d", n)
	}

	data, found, _ := dst.Load("Steve")
	if !found {
		t.Fatal("Steve was not migrated")
	}
	rec, err := ParseRecord(data)
	if err != nil {
		t.Fatalf("Migrated document does not parse: %v", err)
	}
	if v, _ := rec.Vault(1); v != "abc" {
		t.Errorf("Expected vault1 abc, got %q", v)
	}
	if rec.values["note"] != "kept" {
		t.Errorf("Unknown keys were dropped: %v", rec.values)
	}
}

func TestMigrate_StopsOnCorruptDocument(t *testing.T) {
	src, _ := NewPersistence(t.TempDir(), "", false)
	dst, _ := NewPersistence(t.TempDir(), "", false)

	src.Save("Alex", []byte("vault1: ok\n"))
	os.WriteFile(src.Path("Steve"), []byte("vault1: [unclosed"), 0644)

	n, err := Migrate(src, dst)
	if err == nil {
		t.Fatal("Expected corrupt document to fail the migration")
	}
	if n != 1 {
		t.Errorf("Expected 1 file copied before the failure, got %d", n)
	}
	if dst.Exists("Steve") {
		t.Error("Corrupt document must not reach the destination")
	}
}
