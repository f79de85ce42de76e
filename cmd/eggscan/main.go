// eggscan ищет яйцо дракона (или другие блоки) во всех регионах мира.
//
//	eggscan [flags] <world/region>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/annel0/eggscan/internal/anvil"
	"github.com/annel0/eggscan/internal/config"
	"github.com/annel0/eggscan/internal/logging"
	"github.com/annel0/eggscan/internal/metrics"
	"github.com/annel0/eggscan/internal/notify"
	"github.com/annel0/eggscan/internal/observability"
	"github.com/annel0/eggscan/internal/scan"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	exitOK    = 0
	exitUsage = 1
	exitFatal = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run выполняет один скан; stdout получает только строки отчёта
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("eggscan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath   = fs.String("config", "", "YAML config file (or EGGSCAN_CONFIG)")
		targets      = fs.String("target", "", "Blocks to look for (comma-separated), default minecraft:dragon_egg")
		workers      = fs.Int("workers", 0, "Regions scanned in parallel, default number of CPUs")
		chunkWorkers = fs.Int("chunk-workers", 0, "Chunk decoding goroutines, default = workers")
		ext          = fs.String("ext", "", "Region file extension, default mca")
		malformed    = fs.String("malformed", "", "Malformed region filenames: fatal or skip")
		metricsAddr  = fs.String("metrics-addr", "", "Serve Prometheus /metrics on this address")
		logLevel     = fs.String("log-level", "", "Console log level: trace, debug, info, warn, error, off")
		logDir       = fs.String("log-dir", "", "Also write logs to a file in this directory")
		telemetry    = fs.Bool("telemetry", false, "Export traces over OTLP/HTTP")
		natsURL      = fs.String("nats-url", "", "Also publish hits to this NATS server")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(stdout, "Specify a path")
		return exitUsage
	}
	dir := fs.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "❌ Ошибка загрузки конфигурации: %v\n", err)
		return exitFatal
	}
	if cfg == nil {
		cfg = &config.Config{}
	}

	// флаги перекрывают файл конфигурации
	if *targets != "" {
		cfg.Scan.Targets = parseStringList(*targets)
	}
	if *workers > 0 {
		cfg.Scan.Workers = *workers
	}
	if *chunkWorkers > 0 {
		cfg.Scan.ChunkWorkers = *chunkWorkers
	}
	if *ext != "" {
		cfg.Scan.Extension = *ext
	}
	if *malformed != "" {
		cfg.Scan.MalformedNames = *malformed
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logDir != "" {
		cfg.Logging.Dir = *logDir
	}
	if *telemetry {
		cfg.Telemetry.Enabled = true
	}
	if *natsURL != "" {
		cfg.Notify.NATSURL = *natsURL
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "❌ %v\n", err)
		return exitFatal
	}

	if err := initLogging(cfg, stderr); err != nil {
		fmt.Fprintf(stderr, "❌ Ошибка инициализации логирования: %v\n", err)
		return exitFatal
	}
	defer logging.CloseDefaultLogger()

	ctx := context.Background()
	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, cfg.Telemetry.GetServiceName())
		if err != nil {
			logging.Warn("OpenTelemetry не инициализирован: %v", err)
		} else {
			defer func() {
				if err := shutdown(ctx); err != nil {
					logging.Warn("Ошибка остановки OpenTelemetry: %v", err)
				}
			}()
		}
	}

	reg := prometheus.NewRegistry()
	scanMetrics := metrics.NewScanMetrics(reg)
	if addr := cfg.Metrics.GetAddr(); addr != "" {
		srv := metrics.StartHTTP(addr, reg)
		defer srv.Close()
	}

	opts := []scan.Option{
		scan.WithWorkers(cfg.Scan.GetWorkers()),
		scan.WithChunkWorkers(cfg.Scan.GetChunkWorkers()),
		scan.WithMetrics(scanMetrics),
	}
	if url := cfg.Notify.GetNATSURL(); url != "" {
		publisher, err := notify.NewNATSPublisher(notify.NATSConfig{URL: url, Subject: cfg.Notify.GetSubject()})
		if err != nil {
			logging.Error("❌ %v", err)
			return exitFatal
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logging.Warn("Ошибка закрытия NATS: %v", err)
			}
			published, failed := publisher.Stats()
			logging.Info("NATS: опубликовано %d, ошибок %d", published, failed)
		}()
		opts = append(opts, scan.WithHitSink(publisher))
	}

	loader, regions, err := openWorld(dir, &cfg.Scan)
	if err != nil {
		logging.Error("❌ %v", err)
		return exitFatal
	}

	reporter := scan.NewReporter(stdout)
	scanner := scan.NewScanner(
		loader,
		scan.AnyOf(cfg.Scan.GetTargets()...),
		reporter,
		opts...,
	)
	sum := scanner.Run(ctx, regions)

	logging.Info("✅ Скан %s завершён за %v: регионов %d (ошибок %d), чанков %d, нечитаемых %d, битых %d, найдено %d",
		sum.ID, sum.Duration.Round(time.Millisecond), sum.Regions, sum.FailedRegions, sum.Chunks,
		sum.ChunkReadErrors, sum.ChunkDecodeErrors, sum.Hits)
	if usage, err := metrics.CurrentProcessUsage(); err == nil {
		logging.Debug("Ресурсы процесса: CPU %.1f%%, RSS %.1f MB", usage.CPUPercent, usage.RSSMB)
	}
	if err := reporter.Err(); err != nil {
		logging.Error("❌ Ошибка вывода отчёта: %v", err)
		return exitFatal
	}
	return exitOK
}

// openWorld создаёт загрузчик регионов каталога dir и перечисляет его регионы
func openWorld(dir string, cfg *config.ScanConfig) (*anvil.Loader, []scan.RegionCoord, error) {
	policy, err := scan.ParseMalformedPolicy(cfg.GetMalformedNames())
	if err != nil {
		return nil, nil, err
	}
	loader := anvil.NewLoader(dir, cfg.GetExtension())
	regions, err := scan.Enumerate(dir, loader.Ext(), policy)
	if err != nil {
		return nil, nil, err
	}
	logging.Debug("Каталог %s: регионов *.%s: %d", dir, loader.Ext(), len(regions))
	return loader, regions, nil
}

func initLogging(cfg *config.Config, stderr io.Writer) error {
	consoleLevel, err := logging.ParseLevel(cfg.Logging.GetLevel())
	if err != nil {
		return err
	}
	fileLevel, err := logging.ParseLevel(cfg.Logging.GetFileLevel())
	if err != nil {
		return err
	}
	return logging.InitDefaultLogger("eggscan", logging.Options{
		Console:      stderr,
		Dir:          cfg.Logging.Dir,
		ConsoleLevel: consoleLevel,
		FileLevel:    fileLevel,
	})
}

// parseStringList разбирает строку со списком через запятую
func parseStringList(s string) []string {
	var result []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	return result
}
