package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"seminar-attendance/internal/api"
	"seminar-attendance/internal/attendance"
	"seminar-attendance/internal/config"
	"seminar-attendance/internal/payload"
	"seminar-attendance/internal/scan"
	"seminar-attendance/internal/scanclient"
	"seminar-attendance/internal/store"
)

const usage = `usage:
  scanner                                  read QR payloads from SCANNER_DEVICE
  scanner manual <seminar_id> <email>      record one attendance by hand`

// Scanner reads QR payloads from a line device and submits them to the API.
func main() {
	cfg := config.Load()
	logger := cfg.Logger()
	slog.SetDefault(logger)

	k := &kiosk{
		api:     scanclient.New(cfg.APIURL, cfg.ScannerID, cfg.StoreTimeout+5*time.Second),
		out:     os.Stdout,
		logger:  logger,
		timeout: cfg.StoreTimeout + 5*time.Second,
	}

	args := os.Args[1:]
	switch {
	case len(args) == 0:
		os.Exit(runScanner(cfg, logger, k))
	case args[0] == "manual" && len(args) == 3:
		if err := k.manual(context.Background(), args[1], args[2]); err != nil {
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

func runScanner(cfg config.App, logger *slog.Logger, k *kiosk) int {
	var guard scan.Guard = scan.NewMemoryGuard(cfg.ScanCooldown)
	if cfg.RedisAddr != "" {
		redisClient := store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if redisClient.Healthy(ctx) {
			guard = scan.NewRedisGuard(redisClient.Client, "", cfg.ScanCooldown)
		} else {
			logger.Warn("redis not reachable, using local cooldown", "addr", cfg.RedisAddr)
		}
		cancel()
	}

	src := scan.NewSource(scan.NewFileDevice(cfg.ScannerDevice), k.handle,
		scan.WithGuard(guard),
		scan.WithLogger(logger),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err := src.Start(startCtx)
	cancel()
	if err != nil {
		logger.Error("camera/scanner start failed", "device", cfg.ScannerDevice, "error", err)
		fmt.Fprintln(k.out, "Camera start failed")
		return 1
	}
	fmt.Fprintln(k.out, "Scanning... present a QR code")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info("shutdown signal received")
		_ = src.Stop()
	case <-src.Done():
	}
	<-src.Done()
	logger.Info("scanner stopped", "device", cfg.ScannerDevice)
	return 0
}

// Submitter sends scans and manual entries to the attendance API.
type Submitter interface {
	Scan(ctx context.Context, text string) (*api.ResolveResponse, error)
	Manual(ctx context.Context, seminarID, email string) (*api.ResolveResponse, error)
}

type kiosk struct {
	api     Submitter
	out     io.Writer
	logger  *slog.Logger
	timeout time.Duration
}

// handle validates the payload locally before calling the API so a bad code
// gets immediate feedback.
func (k *kiosk) handle(ctx context.Context, text string) error {
	if _, err := payload.Decode(text); err != nil {
		fmt.Fprintln(k.out, "Invalid QR - expected { seminar_id, participant_email } or seminarId|email")
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	resp, err := k.api.Scan(ctx, text)
	return k.report(resp, err)
}

// manual submits an identity typed in by the operator.
func (k *kiosk) manual(ctx context.Context, seminarID, email string) error {
	if !(payload.Identity{SeminarID: seminarID, ParticipantEmail: email}).Valid() {
		fmt.Fprintln(k.out, "Enter seminar id and participant email.")
		return payload.ErrInvalidPayload
	}

	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	resp, err := k.api.Manual(ctx, seminarID, email)
	return k.report(resp, err)
}

func (k *kiosk) report(resp *api.ResolveResponse, err error) error {
	if err != nil {
		k.logger.Error("attendance submit failed", "error", err)
		if resp != nil && resp.Message != "" {
			fmt.Fprintln(k.out, resp.Message)
		} else {
			fmt.Fprintln(k.out, "Error recording attendance.")
		}
		return err
	}

	if resp.Status == attendance.StatusCheckedOut && !resp.Changed {
		fmt.Fprintf(k.out, "%s already checked out\n", resp.ParticipantEmail)
		return nil
	}
	fmt.Fprintln(k.out, resp.Message)
	return nil
}
