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

	"github.com/brianphil/ecommerce-app/internal/cart"
	"github.com/brianphil/ecommerce-app/internal/checkout"
	"github.com/brianphil/ecommerce-app/internal/config"
	"github.com/brianphil/ecommerce-app/internal/httpx"
	"github.com/brianphil/ecommerce-app/internal/inventory"
	kafkax "github.com/brianphil/ecommerce-app/internal/kafka"
	"github.com/brianphil/ecommerce-app/internal/notify"
	"github.com/brianphil/ecommerce-app/internal/orders"
	"github.com/brianphil/ecommerce-app/internal/postgres"
	"github.com/brianphil/ecommerce-app/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, notify.TopicNotifications, 1024)
	prod.Start(ctx)

	channels := make([]notify.Channel, 0, len(cfg.NotifyChannels))
	for _, c := range cfg.NotifyChannels {
		channels = append(channels, notify.Channel(c))
	}

	store := &orders.PGStore{DB: db}
	ledger := &inventory.PG{DB: db}
	machine := orders.NewMachine(store, &notify.KafkaEnqueuer{Producer: prod}, channels)
	machine.AdminEmail = cfg.AdminEmail
	carts := cart.NewStore(rdb)

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Carts:    carts,
		Builder:  &cart.Builder{Lines: carts, Catalog: store},
		Checkout: &checkout.Orchestrator{Ledger: ledger, Machine: machine, Timeout: cfg.CheckoutTimeout},
		Machine:  machine,
		Products: store,
		Redis:    rdb,
	}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close() // flush remaining job references
	prod.WaitClosed()
}
