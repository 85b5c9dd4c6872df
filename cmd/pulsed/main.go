// Command pulsed runs the sleep detection daemon: it consumes heart-rate
// packets from a wearable (over NATS, or from the built-in simulator in dev
// mode), maintains rolling HRV metrics, aggregates 30-second epochs, drives
// the sleep state machine, and serves the results over HTTP.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nightbeat-data/pulse.report/internal/api"
	"github.com/nightbeat-data/pulse.report/internal/db"
	"github.com/nightbeat-data/pulse.report/internal/hrv"
	"github.com/nightbeat-data/pulse.report/internal/ingest"
	"github.com/nightbeat-data/pulse.report/internal/sleep"
)

var (
	devMode  = flag.Bool("dev", false, "Run in dev mode (simulated heart-rate stream)")
	natsURL  = flag.String("nats", "nats://127.0.0.1:4222", "NATS server URL")
	subject  = flag.String("subject", ingest.DefaultSubject, "NATS subject carrying heart-rate packets")
	dbFile   = flag.String("db", "pulse_data.db", "Path to the sqlite database")
	listen   = flag.String("listen", ":8080", "Listen address")
	simSeed  = flag.Int64("seed", 1, "Simulator seed (dev mode only)")
	snapshot = flag.Duration("snapshot-interval", time.Minute, "How often HRV snapshots are persisted")
)

// maxBaselineAge bounds how stale a persisted baseline may be before a
// fresh start ignores it.
const maxBaselineAge = 24 * time.Hour

// pipeline wires one packet stream through interval validation, the rolling
// HRV window, epoch aggregation and the sleep detector, recording epochs
// and session boundaries as they happen.
type pipeline struct {
	window   *hrv.RollingWindow
	builder  *sleep.EpochBuilder
	detector *sleep.Detector
	db       *db.DB

	mu      sync.Mutex
	session string
}

func newPipeline(database *db.DB) *pipeline {
	p := &pipeline{
		window: hrv.NewRollingWindow(hrv.DefaultRollingWindowConfig(), nil),
		db:     database,
	}

	baseline := sleep.NewBaselineEstimator(sleep.DefaultBaselineWindow)
	if b, at, ok, err := database.LatestBaseline(); err != nil {
		log.Printf("failed to load persisted baseline: %v", err)
	} else if ok && time.Since(at) < maxBaselineAge {
		baseline.Seed(b)
		log.Printf("seeded baseline from %s: hr=%.1f rmssd=%.1f", at.Format(time.RFC3339), b.HeartRate, b.RMSSD)
	}

	p.detector = sleep.NewDetector(sleep.DefaultDetectorConfig(), baseline, sleep.DetectorCallbacks{
		OnStateChange:  p.onStateChange,
		OnSleepStart:   p.onSleepStart,
		OnWakeDetected: p.onWakeDetected,
	})
	p.builder = sleep.NewEpochBuilder(sleep.DefaultEpochBuilderConfig(), p.onEpoch)
	return p
}

func (p *pipeline) handlePacket(pkt ingest.Packet) {
	for _, ivl := range pkt.RRIntervals {
		// Gross ectopic gate at the boundary; finer repair happens when
		// a snapshot batch is processed.
		if ivl < hrv.MinIntervalMs || ivl > hrv.MaxIntervalMs {
			continue
		}
		p.window.Add(pkt.Timestamp, ivl)
	}

	metrics, ok := p.window.Metrics()
	p.builder.AddSample(sleep.Sample{
		HeartRate: float64(pkt.HeartRate),
		RMSSD:     metrics.RMSSD,
		HasRMSSD:  ok,
		Timestamp: pkt.Timestamp,
	})
}

func (p *pipeline) onEpoch(e sleep.Epoch) {
	p.detector.Update(e)

	baseline, _ := p.detector.Baseline().Current()
	e = e.WithPhase(sleep.ClassifyEpoch(e, baseline))

	p.mu.Lock()
	session := p.session
	p.mu.Unlock()

	if err := p.db.RecordEpoch(session, e); err != nil {
		log.Printf("failed to record epoch: %v", err)
	}
}

func (p *pipeline) onStateChange(c sleep.StateChange) {
	log.Printf("sleep state %s -> %s at %s", c.From, c.To, c.At.Format(time.RFC3339))
}

func (p *pipeline) onSleepStart(onset time.Time) {
	id, err := p.db.BeginSession(time.Now())
	if err != nil {
		log.Printf("failed to begin session: %v", err)
		return
	}
	if err := p.db.SetSessionOnset(id, onset); err != nil {
		log.Printf("failed to set session onset: %v", err)
	}

	p.mu.Lock()
	p.session = id
	p.mu.Unlock()
	log.Printf("sleep session %s started, onset %s", id, onset.Format(time.RFC3339))
}

func (p *pipeline) onWakeDetected(at time.Time) {
	p.mu.Lock()
	session := p.session
	p.session = ""
	p.mu.Unlock()

	if session == "" {
		return
	}
	if err := p.db.EndSession(session, at); err != nil {
		log.Printf("failed to end session %s: %v", session, err)
	}
	log.Printf("sleep session %s ended at %s", session, at.Format(time.RFC3339))
}

// recordSnapshot runs the full metric stack over the current rolling window
// and persists the result. Frequency and DFA metrics are recorded only when
// the window carries enough beats for them.
func (p *pipeline) recordSnapshot(now time.Time) {
	processed := hrv.ProcessIntervals(p.window.WindowIntervals())
	if !processed.Valid {
		return
	}

	snap := db.Snapshot{Timestamp: now, Quality: processed.Quality}
	td, ok := hrv.ComputeTimeDomain(processed.Clean)
	if !ok {
		return
	}
	snap.TimeDomain = td

	if fd, ok := hrv.ComputeFrequencyDomain(processed.Clean); ok {
		snap.Frequency = &fd
	}
	if dfa, ok := hrv.ComputeDFA(processed.Clean); ok {
		snap.DFA = &dfa
	}

	if err := p.db.RecordSnapshot(snap); err != nil {
		log.Printf("failed to record snapshot: %v", err)
	}
}

// refreshBaseline recomputes the pre-sleep baseline from recent awake
// samples and persists it for the next daemon start.
func (p *pipeline) refreshBaseline(now time.Time) {
	b, ok := p.detector.RecalculateBaseline(now)
	if !ok {
		return
	}
	if err := p.db.SaveBaseline(b, now); err != nil {
		log.Printf("failed to persist baseline: %v", err)
	}
}

func (p *pipeline) shutdown(now time.Time) {
	if e, ok := p.builder.Flush(now); ok {
		p.detector.Update(e)
		baseline, _ := p.detector.Baseline().Current()
		e = e.WithPhase(sleep.ClassifyEpoch(e, baseline))

		p.mu.Lock()
		session := p.session
		p.mu.Unlock()

		if err := p.db.RecordEpoch(session, e); err != nil {
			log.Printf("failed to record final epoch: %v", err)
		}
	}

	p.mu.Lock()
	session := p.session
	p.session = ""
	p.mu.Unlock()
	if session != "" {
		if err := p.db.EndSession(session, now); err != nil {
			log.Printf("failed to end session %s: %v", session, err)
		}
	}

	emitted, discarded := p.builder.Counts()
	log.Printf("pipeline stopped: %d epochs emitted, %d discarded", emitted, discarded)
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	p := newPipeline(database)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// feed the pipeline from the configured source
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer p.shutdown(time.Now())

		if *devMode {
			runSimulator(ctx, p)
			return
		}
		if err := runNATS(ctx, p); err != nil {
			log.Printf("ingest terminated: %v", err)
		}
	}()

	// periodic HRV snapshots and baseline refresh
	wg.Add(1)
	go func() {
		defer wg.Done()
		snapTicker := time.NewTicker(*snapshot)
		defer snapTicker.Stop()
		baselineTicker := time.NewTicker(15 * time.Minute)
		defer baselineTicker.Stop()
		for {
			select {
			case now := <-snapTicker.C:
				p.recordSnapshot(now)
			case now := <-baselineTicker.C:
				p.refreshBaseline(now)
			case <-ctx.Done():
				return
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(database, p.detector).ServeMux()
		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	log.Printf("pulsed listening on %s (dev=%v)", *listen, *devMode)
	wg.Wait()
}

// runSimulator feeds the pipeline one simulated packet per second until the
// context is cancelled.
func runSimulator(ctx context.Context, p *pipeline) {
	sim := ingest.NewSimulator(time.Now(), *simSeed)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.handlePacket(sim.Next())
		case <-ctx.Done():
			return
		}
	}
}

// runNATS subscribes to the heart-rate subject and feeds received packets to
// the pipeline until the context is cancelled.
func runNATS(ctx context.Context, p *pipeline) error {
	conn, err := ingest.Connect(*natsURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub, err := ingest.Subscribe(conn, *subject)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case pkt := <-sub.Packets():
			p.handlePacket(pkt)
		case <-ctx.Done():
			return nil
		}
	}
}
