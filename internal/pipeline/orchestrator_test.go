package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qianyu2019/firedoor-extractor/internal/models"
	"github.com/qianyu2019/firedoor-extractor/internal/raster"
	"github.com/qianyu2019/firedoor-extractor/pkg/logger"
)

// fakeRasterizer encodes the document key into the PNG bytes so the fake
// clients can tell documents apart. Names containing "broken" fail.
type fakeRasterizer struct{}

func (f *fakeRasterizer) Rasterize(path string) (*raster.Result, error) {
	name := filepath.Base(path)
	if strings.Contains(name, "broken") {
		return nil, errors.New("degenerate crop")
	}
	return &raster.Result{PNG: []byte(name), PageWidth: 3000, PageHeight: 2000}, nil
}

type fakeOCR struct {
	calls *int32
}

func (f *fakeOCR) ExtractMarkdown(ctx context.Context, png []byte) (string, error) {
	atomic.AddInt32(f.calls, 1)
	name := string(png)
	if strings.Contains(name, "noocr") {
		return "", errors.New("ocr unavailable")
	}
	return "md:" + name, nil
}

type fakeExtract struct{}

func (f *fakeExtract) ExtractRecord(ctx context.Context, markdown string) (*models.ExtractionRecord, error) {
	if strings.Contains(markdown, "poison") {
		return nil, errors.New("model returned garbage")
	}
	name := strings.TrimPrefix(markdown, "md:")
	return &models.ExtractionRecord{DoorNo: name}, nil
}

func writeBatchDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("%PDF-1.4"), 0644))
	}
	return dir
}

func newTestOrchestrator(t *testing.T, r Rasterizer, workers int) (*Orchestrator, *int32) {
	t.Helper()
	var ocrCalls int32
	factory := func() WorkerClients {
		return WorkerClients{OCR: &fakeOCR{calls: &ocrCalls}, Extract: &fakeExtract{}}
	}
	o, err := NewOrchestrator(r, factory,
		WithWorkers(workers),
		WithLogger(logger.NewTestLogger()),
	)
	require.NoError(t, err)
	return o, &ocrCalls
}

func TestRunSettlesEveryAcceptedDocument(t *testing.T) {
	names := make([]string, 8)
	for i := range names {
		names[i] = fmt.Sprintf("door-%d_FHM.pdf", i)
	}
	dir := writeBatchDir(t, append(names, "ignore-me.pdf", "notes_fhm.txt")...)

	o, ocrCalls := newTestOrchestrator(t, &fakeRasterizer{}, 4)
	led, err := o.Run(context.Background(), dir)
	require.NoError(t, err)

	// exactly one settled entry per accepted document
	assert.Equal(t, len(names), led.Len())
	assert.Equal(t, int32(len(names)), atomic.LoadInt32(ocrCalls))
	for _, n := range names {
		entry, ok := led.Get(n)
		require.True(t, ok, n)
		require.True(t, entry.Settled(), n)
		assert.Equal(t, n, entry.Record.DoorNo)
		assert.Equal(t, "md:"+n, entry.Markdown)
	}
	_, ok := led.Get("ignore-me.pdf")
	assert.False(t, ok)
}

func TestOneFailureDoesNotBlockOthers(t *testing.T) {
	dir := writeBatchDir(t,
		"a_FHM.pdf",
		"poison_FHM.pdf", // extraction always fails
		"noocr_GM.pdf",   // ocr always fails
		"z_GM.pdf",
	)

	o, _ := newTestOrchestrator(t, &fakeRasterizer{}, 3)
	led, err := o.Run(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 4, led.Len())

	for _, key := range led.Keys() {
		entry, _ := led.Get(key)
		assert.True(t, entry.Settled(), key)
	}

	good, _ := led.Get("a_FHM.pdf")
	assert.Equal(t, "a_FHM.pdf", good.Record.DoorNo)
	assert.NoError(t, good.Err)

	poisoned, _ := led.Get("poison_FHM.pdf")
	assert.True(t, poisoned.Record.IsEmpty())
	assert.ErrorContains(t, poisoned.Err, "extraction step")

	noOCR, _ := led.Get("noocr_GM.pdf")
	assert.True(t, noOCR.Record.IsEmpty())
	assert.ErrorContains(t, noOCR.Err, "ocr step")
	assert.Empty(t, noOCR.Markdown)
}

func TestRasterFailureSkipsConcurrentPhase(t *testing.T) {
	dir := writeBatchDir(t, "broken_FHM.pdf", "fine_FHM.pdf")

	o, ocrCalls := newTestOrchestrator(t, &fakeRasterizer{}, 2)
	led, err := o.Run(context.Background(), dir)
	require.NoError(t, err)

	// the broken document settles as the sentinel without any OCR call
	broken, ok := led.Get("broken_FHM.pdf")
	require.True(t, ok)
	assert.True(t, broken.Settled())
	assert.True(t, broken.Record.IsEmpty())
	assert.ErrorContains(t, broken.Err, "degenerate crop")

	fine, _ := led.Get("fine_FHM.pdf")
	assert.Equal(t, "fine_FHM.pdf", fine.Record.DoorNo)
	assert.Equal(t, int32(1), atomic.LoadInt32(ocrCalls))
}

func TestRunIsIdempotent(t *testing.T) {
	dir := writeBatchDir(t, "a_FHM.pdf", "b_GM.pdf", "poison_FHM.pdf")

	run := func() map[string]string {
		o, _ := newTestOrchestrator(t, &fakeRasterizer{}, 2)
		led, err := o.Run(context.Background(), dir)
		require.NoError(t, err)
		out := make(map[string]string)
		for key, entry := range led.Snapshot() {
			if entry.Record != nil && !entry.Record.IsEmpty() {
				out[key] = entry.Record.DoorNo
			}
		}
		return out
	}

	assert.Equal(t, run(), run())
}

func TestRunUnreadableFolder(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeRasterizer{}, 1)
	_, err := o.Run(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestMatchName(t *testing.T) {
	markers := DefaultMarkers
	tests := []struct {
		name string
		want bool
	}{
		{"D12_FHM.pdf", true},
		{"d12_fhm.PDF", true},
		{"entrance-GM-3.pdf", true},
		{"entrance-gm-3.pdf", true},
		{"plan.pdf", false},
		{"D12_FHM.png", false},
		{"FHM-notes.txt", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchName(tt.name, markers), tt.name)
	}
}

func TestDefaultWorkerCountCapped(t *testing.T) {
	n := DefaultWorkerCount()
	assert.GreaterOrEqual(t, n, 1)
	assert.LessOrEqual(t, n, 16)
}
