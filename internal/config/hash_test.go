package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFingerprint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("machine: {transport: sim}\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	fp, err := cfg.Fingerprint()
	if err != nil {
		t.Fatal(err)
	}
	if len(fp) != 64 {
		t.Fatalf("fingerprint %q is not a 256-bit hex digest", fp)
	}
	if err := VerifyFileHash(path, fp); err != nil {
		t.Fatalf("VerifyFileHash() = %v", err)
	}

	if err := os.WriteFile(path, []byte("machine: {transport: sim, name: other}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := VerifyFileHash(path, fp); err == nil {
		t.Fatal("VerifyFileHash() should fail after modification")
	}
}

func TestFingerprintInMemory(t *testing.T) {
	fp, err := Defaults().Fingerprint()
	if err != nil || fp != "" {
		t.Fatalf("Fingerprint() = %q, %v", fp, err)
	}
	if HashBytes([]byte("G28\n")) == HashBytes([]byte("G28 \n")) {
		t.Fatal("distinct inputs hashed equal")
	}
}
