package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const serviceName = "linerelay"

// Options defines logger initialization parameters.
type Options struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Axiom forwarding; skipped unless SendToAxiom and AxiomAPIKey are both set.
	SendToAxiom  bool
	AxiomAPIKey  string
	AxiomOrgID   string
	AxiomDataset string
	AxiomFlush   time.Duration

	// Console overrides stdout; used by tests.
	Console io.Writer
}

var (
	mu sync.Mutex
	ax *axiomShipper
)

// Init sets up the global logger: rotated file, console, and optional Axiom forwarding.
func Init(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	var writers []io.Writer

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return fmt.Errorf("create logs dir: %w", err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		})
	}

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	if opts.Pretty {
		writers = append(writers, zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339})
	} else {
		writers = append(writers, console)
	}

	if opts.SendToAxiom && opts.AxiomAPIKey != "" {
		shipper, err := newAxiomShipper(opts.AxiomAPIKey, opts.AxiomOrgID, opts.AxiomDataset, opts.AxiomFlush)
		if err != nil {
			fmt.Fprintf(os.Stderr, "axiom disabled: %v\n", err)
		} else {
			ax = shipper
			writers = append(writers, &axiomWriter{shipper: shipper})
		}
	}

	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		lvl = zerolog.InfoLevel
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lvl).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
	return nil
}

// Close flushes buffered Axiom events.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if ax != nil {
		ax.Close()
		ax = nil
	}
}

// axiomWriter forwards JSON log lines at info level and above.
type axiomWriter struct{ shipper *axiomShipper }

func (w *axiomWriter) Write(p []byte) (int, error) {
	var ev map[string]any
	if err := json.Unmarshal(p, &ev); err != nil {
		ev = map[string]any{"message": string(p), "level": "info"}
	}
	if lvl, _ := ev["level"].(string); lvl == "debug" || lvl == "trace" {
		return len(p), nil
	}
	if _, ok := ev[ingest.TimestampField]; !ok {
		ev[ingest.TimestampField] = time.Now()
	}
	w.shipper.Send(axiom.Event(ev))
	return len(p), nil
}

// axiomShipper batches events and ingests them on a timer or when the batch fills.
type axiomShipper struct {
	client  *axiom.Client
	dataset string
	ch      chan axiom.Event
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

func newAxiomShipper(token, orgID, dataset string, flushEvery time.Duration) (*axiomShipper, error) {
	if dataset == "" {
		dataset = "dev_" + serviceName
	}
	opts := []axiom.Option{axiom.SetToken(token)}
	if orgID != "" {
		opts = append(opts, axiom.SetOrganizationID(orgID))
	}
	c, err := axiom.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	if flushEvery <= 0 {
		flushEvery = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &axiomShipper{client: c, dataset: dataset, ch: make(chan axiom.Event, 1000), cancel: cancel}
	s.wg.Add(1)
	go s.loop(ctx, flushEvery)
	return s, nil
}

// Send drops the event when the buffer is full.
func (s *axiomShipper) Send(ev axiom.Event) {
	select {
	case s.ch <- ev:
	default:
	}
}

func (s *axiomShipper) loop(ctx context.Context, flushEvery time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	batch := make([]axiom.Event, 0, 200)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		fctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if _, err := s.client.IngestEvents(fctx, s.dataset, batch); err != nil {
			fmt.Fprintf(os.Stderr, "axiom ingest: %v\n", err)
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev := <-s.ch:
					batch = append(batch, ev)
				default:
					flush()
					return
				}
			}
		case <-ticker.C:
			flush()
		case ev := <-s.ch:
			batch = append(batch, ev)
			if len(batch) >= 200 {
				flush()
			}
		}
	}
}

func (s *axiomShipper) Close() {
	s.cancel()
	s.wg.Wait()
}
