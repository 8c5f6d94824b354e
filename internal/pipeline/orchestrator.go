// Package pipeline drives a batch of door sheets through
// rasterize -> OCR -> extraction -> ledger. Rasterization runs strictly
// sequentially (the rendering library is not thread-safe); the network
// steps run on a bounded worker pool with per-document failure isolation.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/qianyu2019/firedoor-extractor/internal/ledger"
	"github.com/qianyu2019/firedoor-extractor/internal/models"
	"github.com/qianyu2019/firedoor-extractor/internal/raster"
	"github.com/qianyu2019/firedoor-extractor/pkg/errs"
	"github.com/qianyu2019/firedoor-extractor/pkg/logger"
)

// DefaultMarkers are the filename tokens that select door sheets.
var DefaultMarkers = []string{"FHM", "GM"}

// OCRClient turns a rasterized page into a markdown table.
type OCRClient interface {
	ExtractMarkdown(ctx context.Context, png []byte) (string, error)
}

// ExtractionClient turns a markdown table into a structured record.
type ExtractionClient interface {
	ExtractRecord(ctx context.Context, markdown string) (*models.ExtractionRecord, error)
}

// Rasterizer renders one document's region of interest.
type Rasterizer interface {
	Rasterize(path string) (*raster.Result, error)
}

// WorkerClients bundles the service clients owned by one worker. The
// factory is invoked once per worker goroutine so each worker keeps its
// own HTTP session and retry state.
type WorkerClients struct {
	OCR     OCRClient
	Extract ExtractionClient
	Close   func()
}

// ClientFactory builds the clients for one worker.
type ClientFactory func() WorkerClients

// Orchestrator runs one batch at a time.
type Orchestrator struct {
	rasterizer Rasterizer
	newClients ClientFactory
	workers    int
	markers    []string
	log        logger.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers overrides the worker pool size.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithMarkers overrides the filename marker tokens.
func WithMarkers(markers []string) Option {
	return func(o *Orchestrator) {
		if len(markers) > 0 {
			o.markers = markers
		}
	}
}

// WithLogger sets the batch logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		o.log = l
	}
}

// NewOrchestrator creates an orchestrator over the given rasterizer and
// per-worker client factory.
func NewOrchestrator(r Rasterizer, factory ClientFactory, opts ...Option) (*Orchestrator, error) {
	if r == nil {
		return nil, fmt.Errorf("pipeline: rasterizer is required")
	}
	if factory == nil {
		return nil, fmt.Errorf("pipeline: client factory is required")
	}
	o := &Orchestrator{
		rasterizer: r,
		newClients: factory,
		workers:    DefaultWorkerCount(),
		markers:    DefaultMarkers,
		log:        logger.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// DefaultWorkerCount caps the pool at min(16, cores*5).
func DefaultWorkerCount() int {
	n := runtime.NumCPU() * 5
	if n > 16 {
		n = 16
	}
	if n < 1 {
		n = 1
	}
	return n
}

// MatchName reports whether a filename is an accepted door sheet: a .pdf
// that contains one of the marker tokens, case-insensitively.
func MatchName(name string, markers []string) bool {
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return false
	}
	upper := strings.ToUpper(name)
	for _, m := range markers {
		if strings.Contains(upper, strings.ToUpper(m)) {
			return true
		}
	}
	return false
}

// Run processes every accepted document in folder and returns the
// settled ledger. It fails only when the folder itself is unreadable;
// per-document failures settle as the empty-record sentinel.
func (o *Orchestrator) Run(ctx context.Context, folder string) (*ledger.Ledger, error) {
	names, err := o.discover(folder)
	if err != nil {
		return nil, err
	}
	o.log.Info("starting batch",
		logger.String("folder", folder),
		logger.Int("documents", len(names)),
		logger.Int("workers", o.workers),
	)

	led := ledger.New()

	// Sequential phase: the rasterizer's underlying document handle is
	// not safe for concurrent use.
	var pending []string
	for _, name := range names {
		path := filepath.Join(folder, name)
		res, err := o.rasterizer.Rasterize(path)
		if err != nil {
			o.log.Warn("rasterization failed, skipping document",
				logger.String("document", name),
				logger.Error(err),
			)
			if cerr := led.Create(name, path, nil); cerr != nil {
				return nil, cerr
			}
			led.Mutate(name, func(e *ledger.Entry) {
				e.Err = err
				e.Record = models.EmptyRecord()
			})
			continue
		}
		if err := led.Create(name, path, res.PNG); err != nil {
			return nil, err
		}
		pending = append(pending, name)
	}

	// Concurrent phase: one task per document, each worker with its own
	// clients. Tasks never return errors; the Wait below is the batch
	// completion barrier.
	keys := make(chan string)
	var g errgroup.Group
	workers := o.workers
	if workers > len(pending) {
		workers = len(pending)
	}
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			clients := o.newClients()
			if clients.Close != nil {
				defer clients.Close()
			}
			for key := range keys {
				o.process(ctx, clients, led, key)
			}
			return nil
		})
	}
	for _, key := range pending {
		keys <- key
	}
	close(keys)
	g.Wait()

	o.log.Info("batch complete",
		logger.String("folder", folder),
		logger.Int("settled", led.Len()),
	)
	return led, nil
}

func (o *Orchestrator) discover(folder string) ([]string, error) {
	dirEntries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("pipeline: failed to read %s: %w", folder, err)
	}
	var names []string
	for _, e := range dirEntries {
		if e.IsDir() || !MatchName(e.Name(), o.markers) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// process runs OCR then extraction for one document. Every failure is
// recovered here: the entry settles with the empty-record sentinel and
// no other document is affected.
func (o *Orchestrator) process(ctx context.Context, clients WorkerClients, led *ledger.Ledger, key string) {
	log := o.log.With(logger.String("document", key))
	log.Info("processing document")

	entry, ok := led.Get(key)
	if !ok {
		log.Error("document missing from ledger")
		return
	}

	markdown, err := clients.OCR.ExtractMarkdown(ctx, entry.Image)
	if err != nil {
		o.settleFailed(led, key, fmt.Errorf("ocr step: %w", err))
		return
	}

	record, err := clients.Extract.ExtractRecord(ctx, markdown)
	if err != nil {
		o.settleFailed(led, key, fmt.Errorf("extraction step: %w", err))
		return
	}

	led.Mutate(key, func(e *ledger.Entry) {
		e.Markdown = markdown
		e.Record = record
	})
	log.Info("document settled", logger.Int("hardwareItems", len(record.Hardware)))
}

func (o *Orchestrator) settleFailed(led *ledger.Ledger, key string, err error) {
	o.log.Error("document failed",
		logger.String("document", key),
		logger.String("kind", errs.Kind(err)),
		logger.Error(err),
	)
	led.Mutate(key, func(e *ledger.Entry) {
		e.Err = err
		e.Record = models.EmptyRecord()
	})
}
