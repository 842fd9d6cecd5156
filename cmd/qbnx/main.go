// Command qbnx reconciles orders, customers and inventory between the
// storefront and the accounting ledger.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	appsync "github.com/blyon/qbnx/internal/application/sync"
	"github.com/blyon/qbnx/internal/infrastructure/cache"
	"github.com/blyon/qbnx/internal/infrastructure/config"
	"github.com/blyon/qbnx/internal/infrastructure/ledger"
	"github.com/blyon/qbnx/internal/infrastructure/logger"
	"github.com/blyon/qbnx/internal/infrastructure/notify"
	"github.com/blyon/qbnx/internal/infrastructure/storefront"
)

const (
	exitOK    = 0
	exitFatal = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("qbnx", flag.ContinueOnError)
	toLedger := fs.Bool("q", false, "push paid storefront orders to the ledger")
	toStorefront := fs.Bool("n", false, "push ledger-entered orders to the storefront")
	inventory := fs.Bool("i", false, "push ledger inventory levels to the storefront")
	window := fs.String("t", "", "query window: day, week, month, year or seconds (default week)")
	update := fs.Bool("u", false, "check for a newer release")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	directions := selectDirections(*toLedger, *toStorefront)
	doSync := len(directions) > 0
	if !doSync && !*inventory && !*update {
		fs.Usage()
		return exitUsage
	}

	win := time.Duration(0)
	if *window != "" {
		parsed, err := parseWindow(*window)
		if err != nil {
			fmt.Fprintf(os.Stderr, "qbnx: %v\n", err)
			fs.Usage()
			return exitUsage
		}
		win = parsed
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "qbnx: %v\n", err)
		return exitFatal
	}
	if win == 0 {
		win = cfg.Sync.Window
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "qbnx: %v\n", err)
		return exitFatal
	}
	defer func() { _ = log.Sync() }()

	if *update {
		log.Info("self-update is not supported in this build")
		if !doSync && !*inventory {
			return exitOK
		}
	}

	sf, err := storefront.NewClient(&storefront.Config{
		URL:           cfg.Storefront.URL,
		Account:       cfg.Storefront.Account,
		UserID:        cfg.Storefront.UserID,
		Password:      cfg.Storefront.Password,
		CrossRefField: cfg.Sync.StorefrontRefField,
		Timeout:       cfg.Storefront.Timeout,
	}, log)
	if err != nil {
		log.Error("storefront client setup failed", zap.Error(err))
		return exitFatal
	}
	lg, err := ledger.NewClient(&ledger.Config{
		URL:               cfg.Ledger.URL,
		AppName:           cfg.Ledger.AppName,
		CompanyFile:       cfg.Ledger.CompanyFile,
		Username:          cfg.Ledger.Username,
		Password:          cfg.Ledger.Password,
		CrossRefField:     cfg.Sync.CrossRefField,
		RefPrefix:         cfg.Sync.RefPrefix,
		TaxCodeSuffix:     cfg.Sync.TaxCodeSuffix,
		TaxVendor:         cfg.Sync.TaxVendor,
		OutOfStateTaxName: cfg.Sync.OutOfStateTaxName,
		Timeout:           cfg.Ledger.Timeout,
	}, log)
	if err != nil {
		log.Error("ledger client setup failed", zap.Error(err))
		return exitFatal
	}
	spill, err := cache.NewStore(cfg.Cache.Dir, log)
	if err != nil {
		log.Error("spill store setup failed", zap.Error(err))
		return exitFatal
	}

	mailer := notify.NewMailer(notify.Config{
		Enabled: cfg.Mail.Enabled,
		Domain:  cfg.Mail.Domain,
		APIKey:  cfg.Mail.APIKey,
		From:    cfg.Mail.From,
	}, log)
	sink := appsync.NewSink(mailer, cfg.Mail.ResultList, cfg.Mail.ErrorList, log)

	orch := appsync.NewOrchestrator(appsync.Config{
		PlaceholderCustomer:   cfg.Sync.PlaceholderCustomer,
		LedgerCrossRefKey:     cfg.Sync.CrossRefField,
		StorefrontCrossRefKey: cfg.Sync.StorefrontRefField,
		RefPrefix:             cfg.Sync.RefPrefix,
		CustomerBlacklist:     cfg.Sync.CustomerBlacklist,
		MemoryCap:             cfg.Cache.MemoryCap,
		InventorySite:         cfg.Ledger.InventorySite,
		OutOfStateTaxName:     cfg.Sync.OutOfStateTaxName,
	}, sf, lg, lg, lg, sf, spill, log)

	ctx := context.Background()
	code := exitOK

	for _, dir := range directions {
		report, runErr := orch.Run(ctx, dir, win)
		if err := sink.Deliver(ctx, report); err != nil {
			log.Error("report delivery failed", zap.Error(err))
		}
		if runErr != nil {
			log.Error("sync run failed",
				zap.String("direction", string(dir)),
				zap.Error(runErr))
			code = exitFatal
		}
	}

	if *inventory {
		report, runErr := orch.RunInventory(ctx)
		if err := sink.Deliver(ctx, report); err != nil {
			log.Error("report delivery failed", zap.Error(err))
		}
		if runErr != nil {
			log.Error("inventory run failed", zap.Error(runErr))
			code = exitFatal
		}
	}
	return code
}

// selectDirections maps the -q and -n flags onto sync directions: -q pushes
// storefront orders to the ledger, -n pushes ledger orders to the storefront
func selectDirections(toLedger, toStorefront bool) []appsync.Direction {
	var dirs []appsync.Direction
	if toLedger {
		dirs = append(dirs, appsync.DirectionStorefrontToLedger)
	}
	if toStorefront {
		dirs = append(dirs, appsync.DirectionLedgerToStorefront)
	}
	return dirs
}

// parseWindow accepts the named windows or a non-negative number of seconds;
// zero falls through to the configured default window
func parseWindow(s string) (time.Duration, error) {
	switch s {
	case "day":
		return 24 * time.Hour, nil
	case "week":
		return 7 * 24 * time.Hour, nil
	case "month":
		return 30 * 24 * time.Hour, nil
	case "year":
		return 365 * 24 * time.Hour, nil
	}
	secs, err := strconv.Atoi(s)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("invalid window %q", s)
	}
	return time.Duration(secs) * time.Second, nil
}
