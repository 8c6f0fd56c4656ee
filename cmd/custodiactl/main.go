// custodiactl is the operational companion to the audit library: it verifies
// the integrity chain of a persisted audit trail and purges records past
// their retention period. Event production stays in the embedding process;
// this binary only reads and expires.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"custodia/pkg/audit"
	"custodia/pkg/audit/chain"
	"custodia/pkg/audit/store"
	"custodia/pkg/platform/config"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: custodiactl <verify|purge>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	switch os.Args[1] {
	case "verify":
		err = verify(ctx, st, log)
	case "purge":
		err = purge(ctx, st, log)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil {
		os.Exit(1)
	}
}

// verify recomputes every record digest and checks the linkage invariant.
func verify(ctx context.Context, st audit.Store, log *slog.Logger) error {
	records, err := st.ReadRange(ctx, time.Time{}, time.Time{}, 0)
	if err != nil {
		log.Error("read records", "error", err)
		return err
	}
	if err := chain.Verify(records, chain.GenesisHash); err != nil {
		log.Error("chain verification failed", "records", len(records), "error", err)
		return err
	}
	log.Info("chain intact", "records", len(records))
	return nil
}

// purge removes records whose retention period has elapsed.
func purge(ctx context.Context, st audit.Store, log *slog.Logger) error {
	purged, err := st.PurgeExpired(ctx, time.Now().UTC())
	if err != nil {
		log.Error("purge expired", "error", err)
		return err
	}
	log.Info("purge complete", "purged", purged)
	return nil
}
