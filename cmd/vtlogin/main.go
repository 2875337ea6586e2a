//go:build linux

package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hnrobert/vtlogin/internal/auth"
	"github.com/hnrobert/vtlogin/internal/cache"
	"github.com/hnrobert/vtlogin/internal/config"
	"github.com/hnrobert/vtlogin/internal/ipc"
	"github.com/hnrobert/vtlogin/internal/logger"
	"github.com/hnrobert/vtlogin/internal/sessions"
	"github.com/hnrobert/vtlogin/internal/ui"
	"github.com/hnrobert/vtlogin/internal/userdb"
	"github.com/hnrobert/vtlogin/internal/utmpx"
	"github.com/hnrobert/vtlogin/internal/vt"
)

const previewLogPath = "vtlogin.log"

// How long to wait for the session child and its teardown on SIGTERM/SIGINT
// before escalating to SIGKILL, and again after the kill.
const shutdownGrace = 10 * time.Second

// Exit codes, consumed by the service supervisor to decide on restarts.
const (
	exitOK         = 0
	exitInternal   = 1
	exitConfig     = 2
	exitUsage      = 3
	exitAuthFailed = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "configuration file replacing the default")
	preview := flag.Bool("preview", false, "run without VT switching or root requirements")
	noLog := flag.Bool("no-log", false, "disable the log file")
	logout := flag.Bool("logout", false, "log out of the current session")
	flag.Parse()

	inSession := os.Getenv("USER") != ""

	if *logout {
		if !inSession {
			fmt.Fprintln(os.Stderr, "Cannot logout without being in an authenticated session")
			return exitUsage
		}
		return requestLogout()
	}

	if inSession && !*preview {
		fmt.Fprintln(os.Stderr, "Already in an authenticated session. Run with --preview to test the login screen.")
		return exitUsage
	}

	cfg, err := config.Load(pickConfigPath(*configPath))
	if err != nil {
		if *configPath != "" {
			fmt.Fprintf(os.Stderr, "Cannot load config %s: %v\n", *configPath, err)
			return exitConfig
		}
		logger.Warn("No configuration file loaded from %s: %v", config.DefaultPath, err)
	}

	if !*noLog {
		logPath := cfg.LogPath
		if *preview {
			logPath = previewLogPath
		}
		if err := logger.Init(logPath); err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open log file %s: %v\n", logPath, err)
			return exitConfig
		}
		defer logger.Close()
	}
	logger.Info("vtlogin starting up")

	if !*preview {
		// Claim the configured VT before drawing anything on it.
		if _, err := vt.Activate(cfg.TTY); err != nil {
			logger.Error("Cannot switch to tty %d: %v", cfg.TTY, err)
		}
	}

	db := userdb.Open()
	engine := auth.New(cfg.PAMService, db)
	launcher := sessions.NewLauncher(cfg, utmpx.NewRecorder(""))
	store := cache.NewStore(cfg.CachePath)
	orc := sessions.NewOrchestrator(engine, launcher, store)
	defer orc.Close()

	// A termination signal must tear the active session down through the
	// launcher's own unwind path, not an ad hoc one.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Received %s, shutting down", sig)
		if orc.Shutdown(shutdownGrace) {
			os.Exit(exitOK)
		}
		logger.Error("Session teardown did not finish; giving up")
		os.Exit(exitInternal)
	}()

	prefill, _ := store.Load()
	front := ui.New(orc, sessions.Discover(cfg), prefill)

	// The front end owns the terminal from here; keep log lines out of it.
	logger.SetConsole(false)
	err = front.Run()
	logger.SetConsole(true)
	logger.Info("vtlogin shutting down")
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, ui.ErrTooManyAttempts):
		return exitAuthFailed
	default:
		logger.Error("Front end failed: %v", err)
		return exitInternal
	}
}

func pickConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	return config.DefaultPath
}

func requestLogout() int {
	fmt.Println("Requesting a logout")
	if err := ipc.SendLogout(ipc.DefaultInboxPath, ipc.DefaultOutboxPath); err != nil {
		if errors.Is(err, os.ErrPermission) {
			fmt.Fprintln(os.Stderr, "No permission to logout. Logout should be run from inside the session.")
		} else {
			fmt.Fprintf(os.Stderr, "Failed to communicate with the login manager: %v\n", err)
		}
		return exitInternal
	}
	fmt.Println("Logging out...")
	return exitOK
}
