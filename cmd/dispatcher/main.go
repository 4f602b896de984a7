package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/brianphil/ecommerce-app/internal/config"
	kafkax "github.com/brianphil/ecommerce-app/internal/kafka"
	"github.com/brianphil/ecommerce-app/internal/metrics"
	"github.com/brianphil/ecommerce-app/internal/notify"
	"github.com/brianphil/ecommerce-app/internal/postgres"
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	senders := map[notify.Channel]notify.Sender{}
	for _, c := range cfg.NotifyChannels {
		switch notify.Channel(c) {
		case notify.ChannelSMS:
			senders[notify.ChannelSMS] = notify.NewSMSGateway(
				cfg.SMSGatewayURL, cfg.SMSUsername, cfg.SMSAPIKey, cfg.SMSSenderID)
		case notify.ChannelEmail:
			senders[notify.ChannelEmail] = &notify.SMTPSender{Addr: cfg.SMTPAddr, From: cfg.SMTPFrom}
		default:
			log.Printf("unknown notification channel %q ignored", c)
		}
	}

	d := notify.NewDispatcher(&notify.PGStore{DB: db}, senders, notify.Config{
		MaxAttempts: cfg.NotifyMaxAttempts,
		BaseDelay:   cfg.NotifyBaseDelay,
		MaxDelay:    cfg.NotifyMaxDelay,
		Workers:     cfg.NotifyWorkers,
	})
	d.Start(ctx)

	// Jobs left non-terminal by a previous run go first, then live traffic.
	if err := d.Recover(ctx); err != nil {
		log.Fatalf("recovery scan: %v", err)
	}

	// Periodic rescan picks up job references the consumer gave up on.
	// Re-submitting an in-flight job is safe: its shard reloads it and skips
	// terminal states.
	rescan := time.NewTicker(cfg.NotifyRescan)
	defer rescan.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-rescan.C:
				if err := d.Recover(ctx); err != nil {
					log.Printf("rescan: %v", err)
				}
			}
		}
	}()

	group := getenv("DISPATCHER_GROUP", "notification-dispatcher")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, notify.TopicNotifications)
	consDone := make(chan struct{})
	go func() {
		defer close(consDone)
		log.Printf("dispatcher consuming: group=%s topic=%s workers=%d",
			group, notify.TopicNotifications, cfg.NotifyWorkers)
		if err := cons.Run(ctx, d.HandleMessage); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: cfg.DispatchAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("metrics listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down dispatcher...")
	cancel()
	<-consDone
	d.Close()
	_ = srv.Close()
}
