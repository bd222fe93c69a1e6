// Command auditcheck verifies the hash chain of an economy audit log.
package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/example/economy-ledger/pkg/audit"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	path := flag.String("log", os.Getenv("AUDIT_LOG_PATH"), "path to the audit log")
	flag.Parse()
	if *path == "" {
		logger.Error("no audit log given; pass -log or set AUDIT_LOG_PATH")
		os.Exit(2)
	}

	f, err := os.Open(*path)
	if err != nil {
		logger.Error("failed to open audit log", "path", *path, "error", err)
		os.Exit(1)
	}
	defer f.Close()

	entries, err := audit.ReadEntries(f)
	if err != nil {
		logger.Error("failed to read audit log", "path", *path, "error", err)
		os.Exit(1)
	}
	if err := audit.VerifyChain(entries); err != nil {
		logger.Error("audit chain broken", "path", *path, "entries", len(entries), "error", err)
		os.Exit(1)
	}

	var head string
	if len(entries) > 0 {
		head = entries[len(entries)-1].Hash
	}
	logger.Info("audit chain verified", "path", *path, "entries", len(entries), "head", head)
}
