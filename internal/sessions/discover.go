package sessions

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/hnrobert/vtlogin/internal/config"
	"github.com/hnrobert/vtlogin/internal/logger"
)

// Discover lists the session entries offered by the front end: one per
// executable file in the X and Wayland session directories, plus the shell
// entry when enabled. Entries are named after their file and sorted per
// directory; the shell entry always comes last.
func Discover(cfg config.Config) []Choice {
	var choices []Choice
	choices = append(choices, scanDir(cfg.XSessionsDir, KindX11)...)
	choices = append(choices, scanDir(cfg.WaylandSessionsDir, KindWayland)...)
	if cfg.IncludeShell {
		choices = append(choices, Choice{Kind: KindShell, Name: "shell"})
	}
	return choices
}

func scanDir(dir string, kind Kind) []Choice {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Cannot read session directory %s: %v", dir, err)
		}
		return nil
	}

	var choices []Choice
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Mode()&0111 == 0 {
			continue
		}
		choices = append(choices, Choice{
			Kind:   kind,
			Name:   entry.Name(),
			Script: filepath.Join(dir, entry.Name()),
		})
	}
	sort.Slice(choices, func(i, j int) bool { return choices[i].Name < choices[j].Name })
	return choices
}
