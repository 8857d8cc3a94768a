package peerid

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestLoadOrCreateCreates(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "test.key")

	kp, err := LoadOrCreate(keyPath)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if kp.Priv == nil {
		t.Fatal("LoadOrCreate returned nil private key")
	}

	info, err := os.Stat(keyPath)
	if err != nil {
		t.Fatalf("key file not created: %v", err)
	}
	if runtime.GOOS != "windows" {
		if mode := info.Mode().Perm(); mode != 0600 {
			t.Errorf("key file permissions = %04o, want 0600", mode)
		}
	}
}

func TestLoadOrCreateLoads(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "test.key")

	kp1, err := LoadOrCreate(keyPath)
	if err != nil {
		t.Fatalf("first LoadOrCreate: %v", err)
	}
	kp2, err := LoadOrCreate(keyPath)
	if err != nil {
		t.Fatalf("second LoadOrCreate: %v", err)
	}
	if !kp1.ID.Equal(kp2.ID) {
		t.Errorf("peer ids differ: %s != %s", kp1.ID, kp2.ID)
	}
}

func TestLoadOrCreateBadPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file permissions not applicable on Windows")
	}
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "test.key")

	if _, err := LoadOrCreate(keyPath); err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if err := os.Chmod(keyPath, 0644); err != nil {
		t.Fatalf("Chmod: %v", err)
	}

	_, err := LoadOrCreate(keyPath)
	if err == nil {
		t.Fatal("LoadOrCreate should fail with insecure permissions")
	}
}

func TestSignAndVerify(t *testing.T) {
	dir := t.TempDir()
	kp, err := LoadOrCreate(filepath.Join(dir, "test.key"))
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}

	msg := []byte("a signed document")
	sig, err := kp.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	ok, err := kp.ID.Verify(msg, sig)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Error("signature should verify")
	}

	ok, err = kp.ID.Verify([]byte("tampered"), sig)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Error("tampered message should not verify")
	}
}

func TestParseRoundTrip(t *testing.T) {
	dir := t.TempDir()
	kp, err := LoadOrCreate(filepath.Join(dir, "test.key"))
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}

	parsed, err := Parse(kp.ID.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !parsed.Equal(kp.ID) {
		t.Errorf("parsed id %s != original %s", parsed, kp.ID)
	}
}

func TestFromPublicKeyBytesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	kp, err := LoadOrCreate(filepath.Join(dir, "test.key"))
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}

	raw, err := kp.ID.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	id2, err := FromPublicKeyBytes(raw)
	if err != nil {
		t.Fatalf("FromPublicKeyBytes: %v", err)
	}
	if !id2.Equal(kp.ID) {
		t.Errorf("round-tripped id %s != original %s", id2, kp.ID)
	}
}
