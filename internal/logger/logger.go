package logger

import (
	"fmt"
	"os"
	"sync"
	"time"
)

type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

var (
	logFile     *os.File
	logMu       sync.Mutex
	fileLogging bool
	console     = true
)

// Init opens the log file at path and enables the file sink. An empty path
// leaves file logging disabled; console output is unaffected.
func Init(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return err
	}

	logMu.Lock()
	defer logMu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = f
	fileLogging = true
	return nil
}

// SetConsole toggles the colored stdout sink. The front end disables it
// while it owns the terminal so log lines do not tear the login form.
func SetConsole(on bool) {
	logMu.Lock()
	defer logMu.Unlock()
	console = on
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	fileLogging = false
}

func Info(format string, args ...interface{}) {
	log(LevelInfo, format, args...)
}

func Warn(format string, args ...interface{}) {
	log(LevelWarn, format, args...)
}

func Error(format string, args ...interface{}) {
	log(LevelError, format, args...)
}

func log(lvl Level, format string, args ...interface{}) {
	now := time.Now().Format("2006/01/02 15:04:05")
	msg := fmt.Sprintf(format, args...)
	var label, colorStart, colorEnd string
	switch lvl {
	case LevelInfo:
		colorStart = "\033[32m" // Green
		label = "[INFO] "
	case LevelWarn:
		colorStart = "\033[33m" // Yellow
		label = "[WARN] "
	case LevelError:
		colorStart = "\033[31m" // Red
		label = "[EROR] "       // 4 chars align
		colorEnd = "\033[0m"
	}

	logMu.Lock()
	defer logMu.Unlock()

	// File output (no color)
	if fileLogging && logFile != nil {
		fmt.Fprintf(logFile, "%s %s%s\n", now, label, msg)
	}

	// Stdout (color)
	if console {
		fmt.Fprintf(os.Stdout, "%s %s%s%s%s\n", now, colorStart, label, colorEnd, msg)
	}
}
