// Package scan обходит регионы мира параллельно и сообщает о найденных блоках.
package scan

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/eggscan/internal/anvil"
	"github.com/annel0/eggscan/internal/chunk"
	"github.com/annel0/eggscan/internal/logging"
	"github.com/annel0/eggscan/internal/metrics"
	"github.com/annel0/eggscan/internal/observability"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ErrRegionAbsent файл региона исчез между перечислением и открытием
var ErrRegionAbsent = errors.New("region file not found")

// RegionLoader открывает регион по координатам; (nil, nil), если файла нет
type RegionLoader interface {
	Region(rx, rz int) (*anvil.Region, error)
}

// HitSink дополнительный получатель находок (например, NATS)
type HitSink interface {
	PublishHit(scanID string, h Hit) error
}

// Summary итоги одного запуска
type Summary struct {
	ID                string
	Regions           int
	FailedRegions     int
	Chunks            int
	ChunkReadErrors   int
	ChunkDecodeErrors int
	Hits              int
	Duration          time.Duration
}

// Option настройка Scanner
type Option func(*Scanner)

// WithWorkers ограничивает число одновременно обрабатываемых регионов
func WithWorkers(n int) Option {
	return func(s *Scanner) { s.workers = n }
}

// WithChunkWorkers задаёт размер общего пула декодирования чанков
func WithChunkWorkers(n int) Option {
	return func(s *Scanner) { s.chunkWorkers = n }
}

// WithHitSink дублирует каждую находку в sink
func WithHitSink(sink HitSink) Option {
	return func(s *Scanner) { s.sink = sink }
}

// WithMetrics подключает Prometheus-метрики
func WithMetrics(m *metrics.ScanMetrics) Option {
	return func(s *Scanner) { s.metrics = m }
}

// Scanner планировщик сканирования.
// Регионы обрабатываются не более чем workers параллельно, чанки всех
// регионов декодируются общим пулом из chunkWorkers горутин.
type Scanner struct {
	loader   RegionLoader
	matcher  Matcher
	reporter *Reporter
	metrics  *metrics.ScanMetrics
	sink     HitSink
	tracer   trace.Tracer

	workers      int
	chunkWorkers int
}

// NewScanner создаёт планировщик
func NewScanner(loader RegionLoader, matcher Matcher, reporter *Reporter, opts ...Option) *Scanner {
	s := &Scanner{
		loader:   loader,
		matcher:  matcher,
		reporter: reporter,
		tracer:   observability.Tracer(),
		workers:  runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.workers < 1 {
		s.workers = 1
	}
	if s.chunkWorkers < 1 {
		s.chunkWorkers = s.workers
	}
	return s
}

type counters struct {
	failedRegions     atomic.Int64
	chunks            atomic.Int64
	chunkReadErrors   atomic.Int64
	chunkDecodeErrors atomic.Int64
	hits              atomic.Int64
}

type chunkJob struct {
	scanID string
	region RegionCoord
	raw    anvil.RawChunk
	done   *sync.WaitGroup
}

// Run сканирует все регионы и возвращается, когда каждый из них
// завершён и для каждого выведена строка прогресса.
func (s *Scanner) Run(ctx context.Context, regions []RegionCoord) Summary {
	start := time.Now()
	id := uuid.NewString()

	ctx, span := s.tracer.Start(ctx, "scan.run", trace.WithAttributes(
		attribute.String("scan.id", id),
		attribute.Int("scan.regions", len(regions)),
	))
	defer span.End()

	logging.Info("🔍 Скан %s: регионов %d, воркеров %d/%d", id, len(regions), s.workers, s.chunkWorkers)

	var st counters
	jobs := make(chan chunkJob, s.chunkWorkers*2)
	var decoders sync.WaitGroup
	for i := 0; i < s.chunkWorkers; i++ {
		decoders.Add(1)
		go func() {
			defer decoders.Done()
			for job := range jobs {
				s.scanChunk(job, &st)
				job.done.Done()
			}
		}()
	}

	var completed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.workers)
	for _, rc := range regions {
		g.Go(func() error {
			s.scanRegion(ctx, id, rc, jobs, &st)
			done := completed.Add(1) - 1
			s.reporter.Progress(rc, int(done), len(regions))
			return nil
		})
	}
	_ = g.Wait()
	close(jobs)
	decoders.Wait()

	sum := Summary{
		ID:                id,
		Regions:           len(regions),
		FailedRegions:     int(st.failedRegions.Load()),
		Chunks:            int(st.chunks.Load()),
		ChunkReadErrors:   int(st.chunkReadErrors.Load()),
		ChunkDecodeErrors: int(st.chunkDecodeErrors.Load()),
		Hits:              int(st.hits.Load()),
		Duration:          time.Since(start),
	}
	span.SetAttributes(attribute.Int("scan.hits", sum.Hits), attribute.Int("scan.chunks", sum.Chunks))
	return sum
}

func (s *Scanner) scanRegion(ctx context.Context, scanID string, rc RegionCoord, jobs chan<- chunkJob, st *counters) {
	_, span := s.tracer.Start(ctx, "scan.region", trace.WithAttributes(
		attribute.Int("region.x", rc.X),
		attribute.Int("region.z", rc.Z),
	))
	defer span.End()

	start := time.Now()
	s.metrics.RegionStarted()

	chunks, err := s.readRegion(rc, st)
	if err != nil {
		outcome := metrics.OutcomeError
		if errors.Is(err, ErrRegionAbsent) {
			outcome = metrics.OutcomeAbsent
		}
		st.failedRegions.Add(1)
		s.reporter.RegionError(rc, err)
		s.metrics.RegionFinished(outcome, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(chunks))
	for _, raw := range chunks {
		jobs <- chunkJob{scanID: scanID, region: rc, raw: raw, done: &wg}
	}
	wg.Wait()

	span.SetAttributes(attribute.Int("region.chunks", len(chunks)))
	s.metrics.RegionFinished(metrics.OutcomeOK, time.Since(start))
}

// readRegion вычитывает все чанки региона в память и закрывает файл
// до того, как чанки уйдут на декодирование.
func (s *Scanner) readRegion(rc RegionCoord, st *counters) ([]anvil.RawChunk, error) {
	region, err := s.loader.Region(rc.X, rc.Z)
	if err != nil {
		return nil, err
	}
	if region == nil {
		return nil, ErrRegionAbsent
	}
	defer region.Close()

	chunks := make([]anvil.RawChunk, 0, region.Count())
	for raw, err := range region.Chunks() {
		if err != nil {
			logging.Debug("Пропуск чанка в %s: %v", region.Path(), err)
			st.chunkReadErrors.Add(1)
			s.metrics.ChunkError(metrics.StageRead)
			continue
		}
		chunks = append(chunks, raw)
	}
	return chunks, nil
}

func (s *Scanner) scanChunk(job chunkJob, st *counters) {
	cc := ChunkCoord{X: job.raw.X, Z: job.raw.Z}

	c, err := chunk.Decode(job.raw.Data)
	if err != nil {
		st.chunkDecodeErrors.Add(1)
		s.metrics.ChunkError(metrics.StageDecode)
		s.reporter.ChunkError(cc, job.region, err)
		return
	}
	st.chunks.Add(1)
	s.metrics.ChunkScanned()

	match := func(b *chunk.Block) bool { return s.matcher.Matches(b) }
	for b := range c.Blocks(match) {
		st.hits.Add(1)
		s.metrics.Hit(b.Name())
		hit := Hit{Target: b.Name(), Chunk: cc, Region: job.region}
		s.reporter.Hit(hit)
		if s.sink != nil {
			if err := s.sink.PublishHit(job.scanID, hit); err != nil {
				logging.Warn("Находка %v в %v не опубликована: %v", cc, job.region, err)
			}
		}
	}
}
