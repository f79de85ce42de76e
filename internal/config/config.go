package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"gopkg.in/yaml.v3"
)

// DefaultTarget блок, который ищется по умолчанию
const DefaultTarget = "minecraft:dragon_egg"

// Config корневая структура конфигурации сканера.
type Config struct {
	Scan      ScanConfig      `yaml:"scan"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Notify    NotifyConfig    `yaml:"notify"`
}

type ScanConfig struct {
	Targets        []string `yaml:"targets"`
	Workers        int      `yaml:"workers"`
	ChunkWorkers   int      `yaml:"chunk_workers"`
	Extension      string   `yaml:"extension"`
	MalformedNames string   `yaml:"malformed_names"` // fatal | skip
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	FileLevel string `yaml:"file_level"`
	Dir       string `yaml:"dir"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// NotifyConfig публикация находок в NATS; при пустом URL выключено
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// GetTargets возвращает искомые блоки, по умолчанию только яйцо дракона
func (s *ScanConfig) GetTargets() []string {
	var out []string
	for _, t := range s.Targets {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return []string{DefaultTarget}
	}
	return out
}

// GetWorkers возвращает число воркеров регионов: config -> EGGSCAN_WORKERS -> число логических CPU
func (s *ScanConfig) GetWorkers() int {
	return getIntWithEnvFallback(s.Workers, "EGGSCAN_WORKERS", defaultWorkers())
}

// GetChunkWorkers возвращает число воркеров декодирования чанков
func (s *ScanConfig) GetChunkWorkers() int {
	return getIntWithEnvFallback(s.ChunkWorkers, "EGGSCAN_CHUNK_WORKERS", s.GetWorkers())
}

// GetExtension возвращает расширение файлов регионов
func (s *ScanConfig) GetExtension() string {
	if ext := strings.TrimPrefix(s.Extension, "."); ext != "" {
		return ext
	}
	return "mca"
}

// GetMalformedNames возвращает политику для некорректных имён регионов
func (s *ScanConfig) GetMalformedNames() string {
	if s.MalformedNames == "" {
		return "fatal"
	}
	return strings.ToLower(s.MalformedNames)
}

// GetLevel возвращает уровень консольного лога: config -> EGGSCAN_LOG_LEVEL -> info
func (l *LoggingConfig) GetLevel() string {
	return getStringWithEnvFallback(l.Level, "EGGSCAN_LOG_LEVEL", "info")
}

// GetFileLevel возвращает уровень файлового лога
func (l *LoggingConfig) GetFileLevel() string {
	return getStringWithEnvFallback(l.FileLevel, "EGGSCAN_LOG_FILE_LEVEL", "debug")
}

// GetAddr возвращает адрес /metrics; при пустой строке эндпоинт выключен
func (m *MetricsConfig) GetAddr() string {
	return getStringWithEnvFallback(m.Addr, "EGGSCAN_METRICS_ADDR", "")
}

// GetNATSURL возвращает адрес NATS: config -> EGGSCAN_NATS_URL
func (n *NotifyConfig) GetNATSURL() string {
	return getStringWithEnvFallback(n.NATSURL, "EGGSCAN_NATS_URL", "")
}

// GetSubject возвращает тему для находок
func (n *NotifyConfig) GetSubject() string {
	return getStringWithEnvFallback(n.Subject, "EGGSCAN_NATS_SUBJECT", "eggscan.hits")
}

// GetServiceName возвращает имя сервиса для трассировки
func (t *TelemetryConfig) GetServiceName() string {
	return getStringWithEnvFallback(t.ServiceName, "OTEL_SERVICE_NAME", "eggscan")
}

// Validate проверяет значения, которые нельзя исправить подстановкой дефолта
func (c *Config) Validate() error {
	switch c.Scan.GetMalformedNames() {
	case "fatal", "skip":
	default:
		return fmt.Errorf("scan.malformed_names: ожидается fatal или skip, получено %q", c.Scan.MalformedNames)
	}
	if c.Scan.Workers < 0 || c.Scan.ChunkWorkers < 0 {
		return fmt.Errorf("scan: число воркеров не может быть отрицательным")
	}
	return nil
}

func defaultWorkers() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// getIntWithEnvFallback возвращает значение с приоритетом: config -> env -> default
func getIntWithEnvFallback(configValue int, envVar string, defaultValue int) int {
	// Если значение задано в конфиге и больше 0, используем его
	if configValue > 0 {
		return configValue
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if v, err := strconv.Atoi(envVal); err == nil && v > 0 {
			return v
		}
	}

	return defaultValue
}

func getStringWithEnvFallback(configValue, envVar, defaultValue string) string {
	if configValue != "" {
		return configValue
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		return envVal
	}
	return defaultValue
}

// Load читает YAML файл конфигурации.
// Если path == "", пытается прочитать из ENV EGGSCAN_CONFIG или возвращает nil, nil.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("EGGSCAN_CONFIG")
		if path == "" {
			return nil, nil // конфиг не задан, используются дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
