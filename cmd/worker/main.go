package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"quitescan/internal/cloudinary"
	"quitescan/internal/config"
	"quitescan/internal/metrics"
	"quitescan/internal/qr"
	"quitescan/internal/queue"
	"quitescan/internal/roster"
	"quitescan/internal/store"
)

// Worker consumes QR render jobs and keeps every tokened student supplied
// with an image. Rendering lives here so a slow or failed render never
// blocks a registration request.
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

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "quitescan:qrjobs")
	}

	rosterRepo := roster.NewRepository(db.Client)

	var uploader qr.Uploader
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		uploader = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	}
	issuer := qr.NewIssuer(rosterRepo, cfg.MediaDir, uploader)

	// Backfill images for students registered while no worker ran.
	if n, err := issuer.Backfill(ctx); err != nil {
		log.Printf("startup backfill stopped: %v", err)
	} else if n > 0 {
		log.Printf("startup backfill rendered %d image(s)", n)
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != queue.TypeQRImage {
			continue
		}

		id := string(msg.Body)
		path, err := issuer.EnsureImageByID(ctx, id)
		if err != nil {
			metrics.QRRenders.WithLabelValues("error").Inc()
			log.Printf("render qr image for %s failed: %v", id, err)
			continue
		}
		metrics.QRRenders.WithLabelValues("ok").Inc()
		log.Printf("qr image ready: %s", path)
	}

	log.Println("worker stopped")
}
