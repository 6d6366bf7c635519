package envutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseBool(t *testing.T) {
	cases := map[string]bool{
		"1":     true,
		"true":  true,
		"TRUE":  true,
		"yes":   true,
		"on":    true,
		"false": false,
		"0":     false,
		"":      false,
	}
	for input, want := range cases {
		if got := ParseBool(input); got != want {
			t.Fatalf("ParseBool(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestDuration(t *testing.T) {
	os.Setenv("APPFORGE_TEST_DURATION", "90")
	defer os.Unsetenv("APPFORGE_TEST_DURATION")
	if got := Duration("APPFORGE_TEST_DURATION", time.Second); got != 90*time.Second {
		t.Fatalf("bare seconds: got %v", got)
	}
	os.Setenv("APPFORGE_TEST_DURATION", "2m")
	if got := Duration("APPFORGE_TEST_DURATION", time.Second); got != 2*time.Minute {
		t.Fatalf("duration string: got %v", got)
	}
	os.Setenv("APPFORGE_TEST_DURATION", "bogus")
	if got := Duration("APPFORGE_TEST_DURATION", 7*time.Second); got != 7*time.Second {
		t.Fatalf("fallback: got %v", got)
	}
	if got := Duration("APPFORGE_TEST_DURATION_UNSET", 3*time.Second); got != 3*time.Second {
		t.Fatalf("unset fallback: got %v", got)
	}
}

func TestInt(t *testing.T) {
	os.Setenv("APPFORGE_TEST_INT", "42")
	defer os.Unsetenv("APPFORGE_TEST_INT")
	if got := Int("APPFORGE_TEST_INT", 1); got != 42 {
		t.Fatalf("int: got %d", got)
	}
	os.Setenv("APPFORGE_TEST_INT", "x")
	if got := Int("APPFORGE_TEST_INT", 5); got != 5 {
		t.Fatalf("fallback: got %d", got)
	}
}

func TestLoadDotenvPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nAPPFORGE_TEST_A=hello\nexport APPFORGE_TEST_B=\"quoted\"\nAPPFORGE_TEST_EXISTING=file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	os.Setenv("APPFORGE_TEST_EXISTING", "env")
	defer os.Unsetenv("APPFORGE_TEST_EXISTING")
	defer os.Unsetenv("APPFORGE_TEST_A")
	defer os.Unsetenv("APPFORGE_TEST_B")

	res := LoadDotenvPath(path)
	if res.Err != nil {
		t.Fatalf("load: %v", res.Err)
	}
	if !res.Loaded || res.Keys != 2 {
		t.Fatalf("expected 2 keys loaded, got %d (loaded=%v)", res.Keys, res.Loaded)
	}
	if os.Getenv("APPFORGE_TEST_A") != "hello" {
		t.Fatalf("plain value not set")
	}
	if os.Getenv("APPFORGE_TEST_B") != "quoted" {
		t.Fatalf("quoted value not stripped")
	}
	if os.Getenv("APPFORGE_TEST_EXISTING") != "env" {
		t.Fatalf("existing env var overridden")
	}
}
