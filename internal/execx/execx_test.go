package execx

import (
	"os"
	"strings"
	"testing"
)

func envValue(env []string, key string) (string, bool) {
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

func TestMergeEnvInheritsWhenEmpty(t *testing.T) {
	if got := mergeEnv(Options{}); got != nil {
		t.Fatalf("mergeEnv() = %v, want nil (inherit)", got)
	}
}

func TestMergeEnvOverlaysVariables(t *testing.T) {
	t.Setenv("WESTKIT_TEST_VAR", "parent")

	env := mergeEnv(Options{Env: map[string]string{
		"WESTKIT_TEST_VAR": "overlay",
		"WESTKIT_TEST_NEW": "fresh",
	}})

	if v, _ := envValue(env, "WESTKIT_TEST_VAR"); v != "overlay" {
		t.Fatalf("WESTKIT_TEST_VAR = %q, want overlay", v)
	}
	if v, _ := envValue(env, "WESTKIT_TEST_NEW"); v != "fresh" {
		t.Fatalf("WESTKIT_TEST_NEW = %q, want fresh", v)
	}
}

func TestMergeEnvPrependsPath(t *testing.T) {
	t.Setenv("PATH", "/usr/bin")

	env := mergeEnv(Options{PathPrepend: []string{"/tools/env/bin", "/tools/cmake/bin"}})

	path, ok := envValue(env, "PATH")
	if !ok {
		t.Fatal("PATH missing from merged env")
	}
	sep := string(os.PathListSeparator)
	want := "/tools/env/bin" + sep + "/tools/cmake/bin" + sep + "/usr/bin"
	if path != want {
		t.Fatalf("PATH = %q, want %q", path, want)
	}
}

func TestPathKeyIsCaseInsensitive(t *testing.T) {
	if got := pathKey(map[string]string{"Path": "x"}); got != "Path" {
		t.Fatalf("pathKey() = %q, want Path", got)
	}
	if got := pathKey(map[string]string{"HOME": "/root"}); got != "PATH" {
		t.Fatalf("pathKey() fallback = %q, want PATH", got)
	}
}
