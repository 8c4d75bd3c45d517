package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/csheth/ragdesk/internal/gateway"
	"github.com/csheth/ragdesk/internal/logging"
	"github.com/csheth/ragdesk/internal/session"
	"github.com/csheth/ragdesk/internal/tui"
)

const (
	logFileEnv  = "RAGDESK_LOG_FILE"
	logLevelEnv = "RAGDESK_LOG_LEVEL"
)

func main() {
	os.Exit(run())
}

func run() int {
	envFile := flag.String("env-file", "", "load environment variables from this file (defaults to .env when present)")
	backend := flag.String("backend", "", "RAG backend base URL (env RAGDESK_BACKEND_URL, default http://localhost:8000)")
	logFile := flag.String("log-file", "", "append logs to this file (env "+logFileEnv+")")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (env "+logLevelEnv+")")
	noAltScreen := flag.Bool("no-alt-screen", false, "disable the alternate screen buffer")
	flag.Parse()

	if err := loadEnv(*envFile); err != nil {
		fmt.Println("failed to load env file:", err)
		return 1
	}

	closer, err := logging.Init(logging.Config{
		File:  firstNonEmpty(*logFile, os.Getenv(logFileEnv)),
		Level: firstNonEmpty(*logLevel, os.Getenv(logLevelEnv)),
	})
	if err != nil {
		fmt.Println("failed to configure logging:", err)
		return 1
	}
	defer closer.Close()

	gw := gateway.NewFromEnv(gateway.Config{BaseURL: *backend})
	log := logging.New("main")
	log.Infof("ragdesk starting (backend=%s)", gw.BaseURL())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := []tea.ProgramOption{}
	if !*noAltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	program := tea.NewProgram(
		tui.New(tui.Config{
			BackendURL: gw.BaseURL(),
			Query:      session.NewQuerySession(gw),
			Ingest:     session.NewIngestSession(gw),
			Context:    ctx,
		}),
		opts...,
	)

	if _, err := program.Run(); err != nil {
		log.Errorf("program error: %v", err)
		fmt.Println("program error:", err)
		return 1
	}
	log.Info("ragdesk stopped")
	return 0
}

// loadEnv reads path, or ./.env when path is empty. Only an explicitly named
// file has to exist. Variables already set in the environment win.
func loadEnv(path string) error {
	if strings.TrimSpace(path) != "" {
		return godotenv.Load(path)
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
