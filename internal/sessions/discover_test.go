package sessions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hnrobert/vtlogin/internal/config"
)

func writeScript(t *testing.T, dir, name string, mode os.FileMode) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"), mode); err != nil {
		t.Fatal(err)
	}
}

func TestDiscover(t *testing.T) {
	cfg := config.Default()
	cfg.XSessionsDir = t.TempDir()
	cfg.WaylandSessionsDir = t.TempDir()

	writeScript(t, cfg.XSessionsDir, "i3", 0755)
	writeScript(t, cfg.XSessionsDir, "awesome", 0755)
	writeScript(t, cfg.XSessionsDir, "README", 0644) // not executable
	writeScript(t, cfg.WaylandSessionsDir, "sway", 0755)

	choices := Discover(cfg)

	want := []struct {
		name string
		kind Kind
	}{
		{"awesome", KindX11},
		{"i3", KindX11},
		{"sway", KindWayland},
		{"shell", KindShell},
	}
	if len(choices) != len(want) {
		t.Fatalf("got %d choices: %+v", len(choices), choices)
	}
	for i, w := range want {
		if choices[i].Name != w.name || choices[i].Kind != w.kind {
			t.Errorf("choices[%d] = %s/%s, want %s/%s", i, choices[i].Name, choices[i].Kind, w.name, w.kind)
		}
	}
	for _, c := range choices {
		if c.Kind != KindShell && c.Script == "" {
			t.Errorf("choice %s has no script path", c.Name)
		}
	}
}

func TestDiscoverMissingDirs(t *testing.T) {
	cfg := config.Default()
	cfg.XSessionsDir = filepath.Join(t.TempDir(), "missing")
	cfg.WaylandSessionsDir = filepath.Join(t.TempDir(), "missing")

	choices := Discover(cfg)
	if len(choices) != 1 || choices[0].Kind != KindShell {
		t.Errorf("got %+v, want just the shell entry", choices)
	}
}

func TestDiscoverShellDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.XSessionsDir = filepath.Join(t.TempDir(), "missing")
	cfg.WaylandSessionsDir = filepath.Join(t.TempDir(), "missing")
	cfg.IncludeShell = false

	if choices := Discover(cfg); len(choices) != 0 {
		t.Errorf("got %+v, want none", choices)
	}
}
