package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reminderd/internal/httpapi"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCheckConfig(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(good, []byte("storage:\n  driver: memory\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("storage:\n  driver: memory\nunknown: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	env := filepath.Join(dir, "none.env")

	out, err := run(t, "check-config", "--config", good, "--env-file", env)
	if err != nil || !strings.Contains(out, "config ok") {
		t.Fatalf("good config: out=%q err=%v", out, err)
	}
	if _, err := run(t, "check-config", "--config", bad, "--env-file", env); err == nil {
		t.Fatalf("bad config accepted")
	}
}

func TestTokenRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := run(t, "token", "u1", "--env-file", filepath.Join(t.TempDir(), "none.env")); err == nil {
		t.Fatalf("token minted without a secret")
	}

	t.Setenv("JWT_SECRET", "s3cret")
	out, err := run(t, "token", "u1", "--env-file", filepath.Join(t.TempDir(), "none.env"))
	if err != nil {
		t.Fatalf("token: out=%q err=%v", out, err)
	}
	uid, err := httpapi.ParseUserToken([]byte("s3cret"), strings.TrimSpace(out))
	if err != nil || uid != "u1" {
		t.Fatalf("minted token parses as %q, %v", uid, err)
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil || !strings.HasPrefix(out, "reminderd ") {
		t.Fatalf("version: out=%q err=%v", out, err)
	}
}
