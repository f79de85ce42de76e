package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/annel0/eggscan/internal/anvil"
	"github.com/annel0/eggscan/internal/metrics"
	"github.com/annel0/eggscan/internal/worldtest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const (
	egg   = "minecraft:dragon_egg"
	stone = "minecraft:stone"
	air   = "minecraft:air"
)

type scanResult struct {
	lines   []string
	summary Summary
}

func (r scanResult) withPrefix(prefix string) []string {
	var out []string
	for _, l := range r.lines {
		if strings.HasPrefix(l, prefix) {
			out = append(out, l)
		}
	}
	return out
}

func scanWorld(t *testing.T, dir string, opts ...Option) scanResult {
	t.Helper()
	regions, err := Enumerate(dir, anvil.DefaultExt, MalformedFatal)
	require.NoError(t, err)
	return scanRegions(t, dir, regions, opts...)
}

func scanRegions(t *testing.T, dir string, regions []RegionCoord, opts ...Option) scanResult {
	t.Helper()
	var out bytes.Buffer
	s := NewScanner(anvil.NewLoader(dir, anvil.DefaultExt), NewNameMatcher(egg), NewReporter(&out), opts...)
	sum := s.Run(context.Background(), regions)

	text := strings.TrimSuffix(out.String(), "\n")
	var lines []string
	if text != "" {
		lines = strings.Split(text, "\n")
	}
	return scanResult{lines: lines, summary: sum}
}

func eggSection(y, at int) worldtest.Section {
	return worldtest.Fill(y, stone, map[int]string{at: egg})
}

func TestEmptyWorld(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "level.dat"), []byte("x"), 0o644))

	res := scanWorld(t, dir)
	assert.Empty(t, res.lines)
	assert.Equal(t, 0, res.summary.Regions)
	assert.NotEmpty(t, res.summary.ID)
}

func TestSingleHit(t *testing.T) {
	dir := t.TempDir()
	_, err := worldtest.NewWorld(dir).
		Put(3, 5, worldtest.ModernChunk(3, 5, worldtest.Uniform(-1, stone), eggSection(0, worldtest.Index(7, 8, 9)))).
		Write()
	require.NoError(t, err)

	res := scanWorld(t, dir)
	assert.Equal(t, []string{
		"YAY! Dragon egg is in chunk 3.5 in r.0.0",
		"Finished region r.0.0: 0/1",
	}, res.lines)
	assert.Equal(t, 1, res.summary.Hits)
	assert.Equal(t, 1, res.summary.Chunks)
}

func TestMixedBlocksExactlyOneHit(t *testing.T) {
	dir := t.TempDir()
	_, err := worldtest.NewWorld(dir).
		Put(0, 0, worldtest.ModernChunk(0, 0, eggSection(4, 4095))).
		Put(1, 0, worldtest.ModernChunk(1, 0, worldtest.Uniform(4, stone))).
		Write()
	require.NoError(t, err)

	res := scanWorld(t, dir)
	assert.Equal(t, []string{"YAY! Dragon egg is in chunk 0.0 in r.0.0"}, res.withPrefix("YAY!"))
}

func TestMultipleEggsInOneChunk(t *testing.T) {
	dir := t.TempDir()
	sec := worldtest.Fill(0, air, map[int]string{0: egg, 100: egg, 4000: egg})
	_, err := worldtest.NewWorld(dir).Put(2, 2, worldtest.ModernChunk(2, 2, sec)).Write()
	require.NoError(t, err)

	res := scanWorld(t, dir)
	assert.Len(t, res.withPrefix("YAY! Dragon egg is in chunk 2.2 in r.0.0"), 3)
	assert.Equal(t, 3, res.summary.Hits)
}

func TestNegativeCoords(t *testing.T) {
	dir := t.TempDir()
	// r.-1.-2 покрывает чанки x -32..-1, z -64..-33
	_, err := worldtest.NewWorld(dir).
		Put(-3, -40, worldtest.ModernChunk(-3, -40, eggSection(0, 17))).
		Write()
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "r.-1.-2.mca"))
	require.NoError(t, err)

	res := scanWorld(t, dir)
	assert.Equal(t, []string{
		"YAY! Dragon egg is in chunk -3.-40 in r.-1.-2",
		"Finished region r.-1.-2: 0/1",
	}, res.lines)
}

func TestLegacyChunkFormats(t *testing.T) {
	dir := t.TempDir()
	_, err := worldtest.NewWorld(dir).
		Put(0, 0, worldtest.LegacyChunk(0, 0, worldtest.DataVersionSpanning, eggSection(1, 42))).
		Put(1, 1, worldtest.LegacyChunk(1, 1, worldtest.DataVersionPadded, eggSection(2, 43))).
		Write()
	require.NoError(t, err)

	res := scanWorld(t, dir)
	assert.ElementsMatch(t, []string{
		"YAY! Dragon egg is in chunk 0.0 in r.0.0",
		"YAY! Dragon egg is in chunk 1.1 in r.0.0",
	}, res.withPrefix("YAY!"))
}

func TestCorruptChunkIsReportedAndIsolated(t *testing.T) {
	dir := t.TempDir()
	_, err := worldtest.NewWorld(dir).
		Put(0, 0, worldtest.ModernChunk(0, 0, eggSection(0, 1))).
		PutBytes(4, 4, []byte{0x0a, 0x00, 0x00, 0x09}).
		Put(8, 8, worldtest.ModernChunk(8, 8, eggSection(0, 2))).
		Write()
	require.NoError(t, err)

	res := scanWorld(t, dir)
	errs := res.withPrefix("Error reading chunk ")
	require.Len(t, errs, 1)
	assert.True(t, strings.HasPrefix(errs[0], "Error reading chunk 4.4 in r.0.0: "), errs[0])

	assert.ElementsMatch(t, []string{
		"YAY! Dragon egg is in chunk 0.0 in r.0.0",
		"YAY! Dragon egg is in chunk 8.8 in r.0.0",
	}, res.withPrefix("YAY!"))
	assert.Equal(t, []string{"Finished region r.0.0: 0/1"}, res.withPrefix("Finished"))
	assert.Equal(t, 1, res.summary.ChunkDecodeErrors)
	assert.Equal(t, 2, res.summary.Chunks)
}

func TestUnreadableChunkIsSkippedSilently(t *testing.T) {
	dir := t.TempDir()
	_, err := worldtest.NewWorld(dir).
		Put(0, 0, worldtest.ModernChunk(0, 0, eggSection(0, 1))).
		PutRaw(1, 0, 9, []byte("unknown codec")).
		Write()
	require.NoError(t, err)

	res := scanWorld(t, dir)
	assert.Empty(t, res.withPrefix("Error"))
	assert.Len(t, res.withPrefix("YAY!"), 1)
	assert.Equal(t, 1, res.summary.ChunkReadErrors)
}

func TestMissingRegion(t *testing.T) {
	dir := t.TempDir()
	_, err := worldtest.NewWorld(dir).
		Put(5, 5, worldtest.ModernChunk(5, 5, eggSection(0, 0))).
		Write()
	require.NoError(t, err)

	// r.1.0 перечислен, но файла нет
	res := scanRegions(t, dir, []RegionCoord{{0, 0}, {1, 0}}, WithWorkers(1))

	assert.Equal(t, []string{"YAY! Dragon egg is in chunk 5.5 in r.0.0"}, res.withPrefix("YAY!"))
	assert.Equal(t, []string{"Error loading region r.1.0: " + ErrRegionAbsent.Error()}, res.withPrefix("Error loading"))
	assert.Equal(t, []string{
		"Finished region r.0.0: 0/2",
		"Finished region r.1.0: 1/2",
	}, res.withPrefix("Finished"))
	assert.Equal(t, 1, res.summary.FailedRegions)
}

func TestBrokenRegionFileIsIsolated(t *testing.T) {
	dir := t.TempDir()
	_, err := worldtest.NewWorld(dir).
		Put(0, 0, worldtest.ModernChunk(0, 0, eggSection(0, 0))).
		Write()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "r.3.3.mca"), make([]byte, 100), 0o644))

	res := scanWorld(t, dir)
	loadErrs := res.withPrefix("Error loading region r.3.3: ")
	assert.Len(t, loadErrs, 1)
	assert.Len(t, res.withPrefix("YAY!"), 1)
	assert.Len(t, res.withPrefix("Finished"), 2)
}

func TestEmptyRegionStillCounted(t *testing.T) {
	dir := t.TempDir()
	_, err := worldtest.NewWorld(dir).EmptyRegion(2, 2).Write()
	require.NoError(t, err)

	res := scanWorld(t, dir)
	assert.Equal(t, []string{"Finished region r.2.2: 0/1"}, res.lines)
}

// Каждый регион даёт ровно одну строку прогресса, значения k
// образуют перестановку 0..N-1, а все чанки просмотрены.
func TestProgressTotalityAndCompleteness(t *testing.T) {
	dir := t.TempDir()
	w := worldtest.NewWorld(dir)
	var want []string
	for rx := -2; rx < 2; rx++ {
		for rz := 0; rz < 2; rz++ {
			cx, cz := rx*32+3, rz*32+5
			w.Put(cx, cz, worldtest.ModernChunk(cx, cz, eggSection(0, rx+3)))
			w.Put(cx+1, cz, worldtest.ModernChunk(cx+1, cz, worldtest.Uniform(0, stone)))
			want = append(want, fmt.Sprintf("YAY! Dragon egg is in chunk %d.%d in r.%d.%d", cx, cz, rx, rz))
		}
	}
	_, err := w.Write()
	require.NoError(t, err)

	res := scanWorld(t, dir, WithWorkers(3), WithChunkWorkers(2))
	assert.ElementsMatch(t, want, res.withPrefix("YAY!"))

	progress := res.withPrefix("Finished region ")
	require.Len(t, progress, 8)
	seenK := make(map[string]bool)
	seenRegion := make(map[string]bool)
	for _, line := range progress {
		var region string
		var k, n int
		_, err := fmt.Sscanf(line, "Finished region %s %d/%d", &region, &k, &n)
		require.NoError(t, err, line)
		assert.Equal(t, 8, n)
		seenK[fmt.Sprint(k)] = true
		seenRegion[region] = true
	}
	assert.Len(t, seenK, 8)
	assert.Len(t, seenRegion, 8)
	assert.Equal(t, 16, res.summary.Chunks)
}

func TestAllCompressions(t *testing.T) {
	for _, c := range []anvil.Compression{anvil.CompressionGzip, anvil.CompressionZlib, anvil.CompressionNone, anvil.CompressionLZ4} {
		t.Run(c.String(), func(t *testing.T) {
			dir := t.TempDir()
			w := worldtest.NewWorld(dir)
			w.Compression = c
			_, err := w.Put(10, 20, worldtest.ModernChunk(10, 20, eggSection(3, 77))).Write()
			require.NoError(t, err)

			res := scanWorld(t, dir)
			assert.Equal(t, []string{"YAY! Dragon egg is in chunk 10.20 in r.0.0"}, res.withPrefix("YAY!"))
		})
	}
}

func TestAnyOfTargets(t *testing.T) {
	dir := t.TempDir()
	sec := worldtest.Fill(0, stone, map[int]string{1: egg, 2: "minecraft:beacon"})
	_, err := worldtest.NewWorld(dir).Put(0, 0, worldtest.ModernChunk(0, 0, sec)).Write()
	require.NoError(t, err)

	regions, err := Enumerate(dir, anvil.DefaultExt, MalformedFatal)
	require.NoError(t, err)

	var out bytes.Buffer
	s := NewScanner(anvil.NewLoader(dir, anvil.DefaultExt), AnyOf("dragon_egg", "beacon"), NewReporter(&out))
	sum := s.Run(context.Background(), regions)

	assert.Equal(t, 2, sum.Hits)
	assert.Contains(t, out.String(), "YAY! Dragon egg is in chunk 0.0 in r.0.0\n")
	assert.Contains(t, out.String(), "YAY! Beacon is in chunk 0.0 in r.0.0\n")
}

func TestScanMetrics(t *testing.T) {
	dir := t.TempDir()
	_, err := worldtest.NewWorld(dir).
		Put(0, 0, worldtest.ModernChunk(0, 0, eggSection(0, 0))).
		PutBytes(1, 1, []byte("garbage")).
		Write()
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	res := scanRegions(t, dir, []RegionCoord{{0, 0}, {5, 5}}, WithMetrics(metrics.NewScanMetrics(reg)))
	assert.Equal(t, 1, res.summary.Hits)

	assert.Equal(t, 1.0, counterValue(t, reg, "eggscan_hits_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "eggscan_chunks_scanned_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "eggscan_chunk_errors_total"))
	assert.Equal(t, 2.0, counterValue(t, reg, "eggscan_regions_total"))
}

func TestRegionSpans(t *testing.T) {
	dir := t.TempDir()
	_, err := worldtest.NewWorld(dir).EmptyRegion(0, 0).EmptyRegion(1, 0).Write()
	require.NoError(t, err)

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer tp.Shutdown(context.Background())

	regions, err := Enumerate(dir, anvil.DefaultExt, MalformedFatal)
	require.NoError(t, err)
	s := NewScanner(anvil.NewLoader(dir, anvil.DefaultExt), NewNameMatcher(egg), NewReporter(&bytes.Buffer{}))
	s.tracer = tp.Tracer("test")
	s.Run(context.Background(), regions)

	names := make(map[string]int)
	for _, span := range sr.Ended() {
		names[span.Name()]++
	}
	assert.Equal(t, 1, names["scan.run"])
	assert.Equal(t, 2, names["scan.region"])
}

type recordingSink struct {
	mu   sync.Mutex
	ids  map[string]bool
	hits []Hit
}

func (r *recordingSink) PublishHit(scanID string, h Hit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ids == nil {
		r.ids = make(map[string]bool)
	}
	r.ids[scanID] = true
	r.hits = append(r.hits, h)
	return errors.New("sink offline")
}

// Ошибка внешнего получателя не влияет на отчёт
func TestHitSink(t *testing.T) {
	dir := t.TempDir()
	_, err := worldtest.NewWorld(dir).
		Put(0, 0, worldtest.ModernChunk(0, 0, eggSection(0, 0))).
		Put(40, 0, worldtest.ModernChunk(40, 0, eggSection(0, 9))).
		Write()
	require.NoError(t, err)

	sink := &recordingSink{}
	res := scanWorld(t, dir, WithHitSink(sink))

	assert.Len(t, res.withPrefix("YAY!"), 2)
	assert.ElementsMatch(t, []Hit{
		{Target: egg, Chunk: ChunkCoord{0, 0}, Region: RegionCoord{0, 0}},
		{Target: egg, Chunk: ChunkCoord{40, 0}, Region: RegionCoord{1, 0}},
	}, sink.hits)
	assert.Equal(t, map[string]bool{res.summary.ID: true}, sink.ids)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
