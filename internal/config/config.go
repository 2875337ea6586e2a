package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "/etc/vtlogin/config.yaml"

// Config is the fully resolved runtime configuration. The engine consumes it
// read-only after Load.
type Config struct {
	// TTY is the virtual terminal the login manager claims at startup.
	TTY int `yaml:"tty"`

	// PAMService names the PAM service file under /etc/pam.d used for
	// authentication.
	PAMService string `yaml:"pam_service"`

	LogPath   string `yaml:"log_path"`
	CachePath string `yaml:"cache_path"`

	// XSessionsDir and WaylandSessionsDir hold executable startup scripts;
	// one session entry is offered per file.
	XSessionsDir       string `yaml:"x_sessions_dir"`
	WaylandSessionsDir string `yaml:"wayland_sessions_dir"`

	// XDisplay is the display number handed to the X server, e.g. ":1".
	XDisplay string `yaml:"x_display"`

	// IncludeShell controls whether a plain shell login is offered next to
	// the discovered graphical sessions.
	IncludeShell bool `yaml:"include_shell"`
}

// Default returns the built-in configuration used when no file overrides it.
func Default() Config {
	return Config{
		TTY:                2,
		PAMService:         "vtlogin",
		LogPath:            "/var/log/vtlogin.log",
		CachePath:          "/var/cache/vtlogin/info.json",
		XSessionsDir:       "/etc/vtlogin/wms",
		WaylandSessionsDir: "/etc/vtlogin/wayland",
		XDisplay:           ":1",
		IncludeShell:       true,
	}
}

// partial mirrors Config with pointer fields so absent keys can be told apart
// from zero values when merging.
type partial struct {
	TTY                *int    `yaml:"tty"`
	PAMService         *string `yaml:"pam_service"`
	LogPath            *string `yaml:"log_path"`
	CachePath          *string `yaml:"cache_path"`
	XSessionsDir       *string `yaml:"x_sessions_dir"`
	WaylandSessionsDir *string `yaml:"wayland_sessions_dir"`
	XDisplay           *string `yaml:"x_display"`
	IncludeShell       *bool   `yaml:"include_shell"`
}

// Load reads the file at path and merges it over the defaults. A missing or
// unreadable file returns the error alongside the untouched defaults; the
// caller decides whether that is fatal.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	var p partial
	if err := yaml.Unmarshal(b, &p); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.merge(p)
	if cfg.TTY < 1 || cfg.TTY > 12 {
		return cfg, fmt.Errorf("tty %d out of range 1..12", cfg.TTY)
	}
	return cfg, nil
}

func (c *Config) merge(p partial) {
	if p.TTY != nil {
		c.TTY = *p.TTY
	}
	if p.PAMService != nil {
		c.PAMService = *p.PAMService
	}
	if p.LogPath != nil {
		c.LogPath = *p.LogPath
	}
	if p.CachePath != nil {
		c.CachePath = *p.CachePath
	}
	if p.XSessionsDir != nil {
		c.XSessionsDir = *p.XSessionsDir
	}
	if p.WaylandSessionsDir != nil {
		c.WaylandSessionsDir = *p.WaylandSessionsDir
	}
	if p.XDisplay != nil {
		c.XDisplay = *p.XDisplay
	}
	if p.IncludeShell != nil {
		c.IncludeShell = *p.IncludeShell
	}
}
