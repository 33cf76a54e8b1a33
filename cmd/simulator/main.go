// Command simulator feeds a running server with realistic vitals so the live
// channel and alerting paths can be exercised without real devices. Most
// readings are unremarkable; a configurable fraction wanders into elevated
// or critical territory.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type options struct {
	baseURL  string
	patients []uuid.UUID
	interval time.Duration
	count    int
}

func parseOptions() (options, error) {
	var (
		baseURL  = flag.String("url", "http://localhost:8080", "base URL of the vitals server")
		patients = flag.String("patients", "00000000-0000-0000-0000-000000000001", "comma-separated patient UUIDs")
		interval = flag.Duration("interval", 5*time.Second, "delay between readings per patient")
		count    = flag.Int("count", 0, "readings per patient (0 = run until interrupted)")
	)
	flag.Parse()

	opts := options{baseURL: *baseURL, interval: *interval, count: *count}
	for _, raw := range strings.Split(*patients, ",") {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return options{}, fmt.Errorf("invalid patient id %q: %w", raw, err)
		}
		opts.patients = append(opts.patients, id)
	}
	return opts, nil
}

type reading struct {
	PatientID   uuid.UUID `json:"patient_id"`
	Systolic    int       `json:"systolic"`
	Diastolic   int       `json:"diastolic"`
	HeartRate   int       `json:"heart_rate"`
	Temperature float64   `json:"temperature"`
	SpO2        int       `json:"oxygen_saturation"`
	ObservedAt  time.Time `json:"observed_at"`
	Source      string    `json:"source"`
}

// generate produces one observation. Baselines are normal; independent
// excursions push blood pressure, heart rate, temperature, or oxygen
// saturation out of range at fixed probabilities.
func generate(rng *rand.Rand, patientID uuid.UUID) reading {
	r := reading{
		PatientID:   patientID,
		Systolic:    110 + rng.Intn(25),
		Diastolic:   70 + rng.Intn(15),
		HeartRate:   60 + rng.Intn(35),
		Temperature: 36.3 + rng.Float64()*0.9,
		SpO2:        96 + rng.Intn(4),
		ObservedAt:  time.Now().UTC(),
		Source:      "simulated",
	}

	switch {
	case rng.Float64() < 0.20: // hypertensive excursion
		r.Systolic = 160 + rng.Intn(45)
		r.Diastolic = 95 + rng.Intn(30)
	case rng.Float64() < 0.15: // tachycardia
		r.HeartRate = 120 + rng.Intn(40)
	case rng.Float64() < 0.10: // fever
		r.Temperature = 38.5 + rng.Float64()*2.0
	case rng.Float64() < 0.05: // desaturation
		r.SpO2 = 85 + rng.Intn(8)
	}

	return r
}

func simulatePatient(ctx context.Context, client *resty.Client, opts options, patientID uuid.UUID) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(patientID.ID())))

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	for sent := 0; opts.count == 0 || sent < opts.count; sent++ {
		body := generate(rng, patientID)

		resp, err := client.R().
			SetContext(ctx).
			SetBody(body).
			Post("/api/vitals")
		if err != nil {
			slog.Warn("Failed to send reading", "patient_id", patientID.String(), "error", err)
		} else if resp.IsError() {
			slog.Warn("Server rejected reading",
				"patient_id", patientID.String(),
				"status", resp.StatusCode(),
				"body", resp.String())
		} else {
			slog.Info("Sent reading",
				"patient_id", patientID.String(),
				"systolic", body.Systolic,
				"heart_rate", body.HeartRate,
				"spo2", body.SpO2)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func main() {
	opts, err := parseOptions()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	client := resty.New().
		SetBaseURL(opts.baseURL).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Simulator starting",
		"url", opts.baseURL, "patients", len(opts.patients), "interval", opts.interval.String())

	g, ctx := errgroup.WithContext(ctx)
	for _, patientID := range opts.patients {
		g.Go(func() error {
			return simulatePatient(ctx, client, opts, patientID)
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		slog.Error("Simulator failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Simulator finished")
}
