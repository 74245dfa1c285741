package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tokuhirom/greeter"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// SIGTERM/SIGINT: shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, greeter.DefaultConfig()); err != nil {
		var bindErr *greeter.BindError
		if errors.As(err, &bindErr) {
			log.Printf("Failed to start greeter: %v", err)
			os.Exit(1)
		}
		log.Fatalf("Greeter terminated: %v", err)
	}
}

// run starts the greeter and blocks until ctx is cancelled or the accept loop dies.
func run(ctx context.Context, cfg greeter.Config) error {
	srv, err := greeter.Start(cfg)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		log.Println("Received SIGTERM/SIGINT. Shutting down.")
	case <-srv.Done():
		return srv.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed, closing: %v", err)
		return srv.Close()
	}
	return nil
}
