package onnx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-iesched/internal/config"
)

func TestDetectRuntimePrefersIESCHEDORTLIB(t *testing.T) {
	tmp := t.TempDir()
	lib := filepath.Join(tmp, "libonnxruntime.so")
	if err := os.WriteFile(lib, []byte("fake"), 0o644); err != nil {
		t.Fatalf("write fake lib: %v", err)
	}

	t.Setenv("IESCHED_ORT_LIB", lib)
	t.Setenv("ORT_LIBRARY_PATH", filepath.Join(tmp, "does-not-exist"))

	info, err := DetectRuntime(config.EngineConfig{})
	if err != nil {
		t.Fatalf("DetectRuntime failed: %v", err)
	}
	if info.LibraryPath != lib {
		t.Fatalf("expected %q, got %q", lib, info.LibraryPath)
	}
}

func TestDetectRuntimeConfigWinsOverEnv(t *testing.T) {
	tmp := t.TempDir()
	lib := filepath.Join(tmp, "libonnxruntime.so.1.22.0")
	if err := os.WriteFile(lib, []byte("fake"), 0o644); err != nil {
		t.Fatalf("write fake lib: %v", err)
	}

	t.Setenv("IESCHED_ORT_LIB", filepath.Join(tmp, "other.so"))

	info, err := DetectRuntime(config.EngineConfig{ORTLibraryPath: lib})
	if err != nil {
		t.Fatalf("DetectRuntime failed: %v", err)
	}
	if info.LibraryPath != lib {
		t.Fatalf("expected %q, got %q", lib, info.LibraryPath)
	}
	if info.Version != "1.22.0" {
		t.Fatalf("expected version inferred from file name, got %q", info.Version)
	}
}

func TestDetectRuntimeMissingLibrary(t *testing.T) {
	t.Setenv("IESCHED_ORT_LIB", "")
	t.Setenv("ORT_LIBRARY_PATH", "")

	_, err := DetectRuntime(config.EngineConfig{ORTLibraryPath: filepath.Join(t.TempDir(), "missing.so")})
	if err == nil {
		t.Fatal("expected error for missing library")
	}
}
