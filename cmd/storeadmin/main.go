package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/adapter/kvstore"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/infra"
)

// storeadmin maintains the PostgreSQL keyed store: creates its tables and
// purges expired rows on demand.
func main() {
	_ = godotenv.Load()

	var (
		migrateFlag bool
		purgeFlag   bool
		dbFlag      string
	)
	flag.BoolVar(&migrateFlag, "migrate", false, "create the keyed store tables when missing")
	flag.BoolVar(&purgeFlag, "purge", false, "delete expired entries")
	flag.StringVar(&dbFlag, "database-url", "", "postgres url (fallbacks to DATABASE_URL)")
	flag.Parse()

	if !migrateFlag && !purgeFlag {
		fmt.Fprintln(os.Stderr, "nothing to do: pass -migrate and/or -purge")
		os.Exit(2)
	}

	dbURL := strings.TrimSpace(dbFlag)
	if dbURL == "" {
		dbURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dbURL == "" {
		exitWithError(fmt.Errorf("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := infra.NewDBPool(ctx, dbURL, 2)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli", "storeadmin")
	store := kvstore.NewPostgres(infra.NewSQLRunner(pool, logger))

	if migrateFlag {
		if err := store.Migrate(ctx); err != nil {
			exitWithError(err)
		}
		fmt.Println("keyed store tables ready")
	}
	if purgeFlag {
		n, err := store.PurgeExpired(ctx)
		if err != nil {
			exitWithError(err)
		}
		fmt.Printf("purged %d expired entries\n", n)
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
