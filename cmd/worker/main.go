package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studyledger/internal/config"
	"studyledger/internal/ledger"
	"studyledger/internal/notify"
	"studyledger/internal/queue"
	"studyledger/internal/store"
)

// Worker consumes settlement events, posts webhook notifications, and runs a
// periodic reconciliation sweep so debt catch-up does not depend on someone
// loading the report.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "studyledger:settlements")
	}

	repo := ledger.NewRepository(db.Client)
	engine := ledger.NewService(repo, ledger.SystemClock{}, cfg.Zone(), cfg.DailyTarget())
	webhook := notify.New(cfg.WebhookURL, cfg.WebhookSkip)

	if !cfg.WebhookSkip {
		if err := webhook.Health(ctx); err != nil {
			log.Printf("WARNING: webhook not reachable: %v", err)
			log.Println("worker will retry notifications as events arrive")
		} else {
			log.Println("webhook connected")
		}
	}

	// Background sweep keeps ledgers current through quiet stretches.
	go func() {
		ticker := time.NewTicker(cfg.ReconcileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := engine.Reconcile(ctx); err != nil {
					log.Printf("reconcile sweep failed: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != "settlement" && msg.Type != "forced-settlement" {
			continue
		}

		id := string(msg.Body)
		sess, err := repo.SessionByID(ctx, id)
		if err != nil || sess == nil {
			log.Printf("fetch session %s failed: %v", id, err)
			continue
		}
		member, err := repo.MemberByID(ctx, sess.MemberID)
		if err != nil || member == nil {
			log.Printf("fetch member for session %s failed: %v", id, err)
			continue
		}

		err = webhook.SendSettlement(ctx, notify.Settlement{
			Member:            member.Name,
			SessionDate:       sess.SessionDate.Format("2006-01-02"),
			TotalStudySeconds: sess.TotalStudySeconds,
			DebtSeconds:       member.DebtSeconds,
			Forced:            msg.Type == "forced-settlement",
		})
		if err != nil {
			log.Printf("webhook notify failed for %s: %v", id, err)
			continue
		}
		log.Printf("settlement for %s on %s notified", member.Name, sess.SessionDate.Format("2006-01-02"))
	}

	log.Println("worker stopped")
}
