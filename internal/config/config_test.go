package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultHasSaneInfiniteLoopBound(t *testing.T) {
	cfg := Default()
	if cfg.MaxInfiniteLoopRepeat <= 0 {
		t.Fatal("Default must enable the infinite-loop heuristic by default")
	}
	if cfg.Debug || cfg.Is32Bit || cfg.Linux {
		t.Fatal("Default must start with every boolean flag off")
	}
}

func TestLoadMergesOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	yamlBody := "debug: true\nis_32bit: true\ntrace_file: /tmp/out.csv\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug || !cfg.Is32Bit {
		t.Fatal("expected debug and is_32bit to be set from the file")
	}
	if cfg.TraceFile != "/tmp/out.csv" {
		t.Fatalf("TraceFile = %q, want /tmp/out.csv", cfg.TraceFile)
	}
	if cfg.MaxInfiniteLoopRepeat != Default().MaxInfiniteLoopRepeat {
		t.Fatal("fields absent from the YAML file must keep their default values")
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load("/nonexistent/path/cfg.yaml"); err == nil {
		t.Fatal("expected an error loading a nonexistent config file")
	}
}
