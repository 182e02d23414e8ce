// Command synctool runs one sync or cleanup operation and prints its
// report as JSON on stdout. Logs go to stderr.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"github.com/hasnin090/iq-sub003/internal/app"
	"github.com/hasnin090/iq-sub003/internal/config"
	"github.com/hasnin090/iq-sub003/internal/logging"
	"github.com/hasnin090/iq-sub003/internal/service"
	"github.com/hasnin090/iq-sub003/internal/session"
)

const usage = "migrate|sync|fix|status|cleanup|organize|system|session"

var errUsage = errors.New("usage: synctool -op " + usage)

type operations struct {
	Sync     service.SyncService
	Cleanup  service.CleanupService
	Sessions session.Store
}

func main() {
	op := flag.String("op", "", "operation: "+usage)
	userID := flag.Int64("user", 0, "user id for -op session")
	flag.Parse()

	cfg := config.Load()
	log := logging.New(os.Stderr, cfg.Location(), "synctool")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *op == "" {
		fmt.Fprintln(os.Stderr, errUsage)
		os.Exit(2)
	}

	a, err := app.New(ctx, cfg, nil, log)
	if err != nil {
		log.Error("synctool_init_failed", err, nil)
		os.Exit(1)
	}

	ops := operations{Sync: a.Sync, Cleanup: a.Cleanup, Sessions: a.Sessions}
	err = run(ctx, *op, *userID, ops, os.Stdout)
	a.Close()
	if err != nil {
		log.Error("synctool_failed", err, map[string]any{"op": *op})
		os.Exit(1)
	}
}

func run(ctx context.Context, op string, userID int64, ops operations, out io.Writer) error {
	var report any
	switch op {
	case "migrate":
		report = ops.Sync.MigrateToRemote(ctx)
	case "sync":
		report = ops.Sync.SyncAllData(ctx)
	case "fix":
		report = ops.Sync.FixOrphanedAttachments(ctx)
	case "status":
		report = ops.Sync.GetAttachmentStatus(ctx)
	case "cleanup":
		report = ops.Cleanup.CleanupDatabase(ctx)
	case "organize":
		report = ops.Cleanup.OrganizeExistingFiles(ctx)
	case "system":
		report = ops.Cleanup.GetSystemStatus(ctx)
	case "session":
		if ops.Sessions == nil {
			return errors.New("SESSION_BACKEND is not set")
		}
		if userID <= 0 {
			return errors.New("-user is required for -op session")
		}
		s, err := ops.Sessions.Create(ctx, userID)
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		report = s
	default:
		return errUsage
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
