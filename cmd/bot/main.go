package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/raythurman2386/claudegram/internal/claude"
	"github.com/raythurman2386/claudegram/internal/config"
	"github.com/raythurman2386/claudegram/internal/db"
	"github.com/raythurman2386/claudegram/internal/formatter"
	"github.com/raythurman2386/claudegram/internal/handler"
	"github.com/raythurman2386/claudegram/internal/notifier"
	"github.com/raythurman2386/claudegram/internal/stats"

	"github.com/raythurman2386/cronlib"
)

func main() {
	// Root context for the application
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	f, err := formatter.New(cfg.MaxMessageLength)
	if err != nil {
		log.Fatalf("Failed to create formatter: %v", err)
	}

	runner := claude.New(
		claude.WithBinary(cfg.Claude.Binary),
		claude.WithArgs(cfg.Claude.Args...),
		claude.WithTimeout(cfg.Claude.Timeout),
		claude.WithSessionStore(database),
	)
	if err := runner.Restore(ctx); err != nil {
		slog.Warn("Starting without a previous session", "error", err)
	}

	tg, err := notifier.NewTelegramNotifier(cfg.TelegramBotToken, cfg.AdminIDs[0], f)
	if err != nil {
		log.Fatalf("Failed to create telegram notifier: %v", err)
	}
	notifiers := []notifier.Notifier{tg}

	if cfg.DiscordBotToken != "" && cfg.DiscordChannelID != "" {
		dn, err := notifier.NewDiscordNotifier(cfg.DiscordBotToken, cfg.DiscordChannelID)
		if err != nil {
			slog.Error("Discord notifier disabled", "error", err)
		} else {
			notifiers = append(notifiers, dn)
		}
	}

	s := stats.New()
	h := handler.New(runner, database, cfg, s)

	scheduler := cronlib.NewCron()

	// Nightly maintenance at 03:00: prune the exchange log and post a stats digest
	maintenance := func(ctx context.Context) {
		cutoff := time.Now().Add(-cfg.HistoryRetention)
		removed, err := database.PruneExchanges(ctx, cutoff)
		if err != nil {
			slog.Error("Failed to prune exchange log", "error", err)
			return
		}
		total, err := database.CountExchanges(ctx)
		if err != nil {
			slog.Error("Failed to count exchanges", "error", err)
		}
		slog.Info("Exchange log pruned", "removed", removed, "remaining", total)

		digest := fmt.Sprintf("%s\n- **Stored Exchanges**: %d (%d pruned)", s.Summary(), total, removed)
		broadcast(ctx, notifiers, digest)
	}

	_, err = scheduler.AddJobWithOptions("0 3 * * *", maintenance, cronlib.JobOptions{
		Overlap: cronlib.OverlapForbid, // Skip if previous one is still running
	})
	if err != nil {
		log.Fatalf("Failed to schedule maintenance: %v", err)
	}

	scheduler.Start()

	go tg.StartListener(ctx, func(ctx context.Context, msg notifier.Incoming, r *notifier.TelegramResponder) {
		h.HandleMessage(ctx, msg, r)
	})
	slog.Info("Claudegram started", "bot", tg.Username(), "admins", len(cfg.AdminIDs), "notifiers", len(notifiers), "messageLimit", f.Limit())

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	slog.Info("Shutting down Claudegram...")
	scheduler.Stop()
	cancel()
	slog.Info("Claudegram stopped gracefully.")
}

// broadcast sends message through every notifier concurrently.
func broadcast(ctx context.Context, notifiers []notifier.Notifier, message string) {
	var wg sync.WaitGroup
	for _, n := range notifiers {
		wg.Add(1)
		go func(n notifier.Notifier) {
			defer wg.Done()
			if err := n.Send(ctx, message); err != nil {
				slog.Error("Failed to send digest", "notifier", n.Name(), "error", err)
			} else {
				slog.Info("Digest sent", "notifier", n.Name())
			}
		}(n)
	}
	wg.Wait()
}
