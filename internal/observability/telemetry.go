package observability

import (
	"context"
	"time"

	"github.com/annel0/eggscan/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName имя трейсера, под которым сканер пишет спаны
const TracerName = "github.com/annel0/eggscan/internal/scan"

// Shutdown сбрасывает накопленные спаны и останавливает экспорт
type Shutdown func(context.Context) error

// Tracer возвращает трейсер сканера из глобального провайдера.
// Пока телеметрия не инициализирована, это no-op трейсер.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// InitTelemetry настраивает OTLP/HTTP экспортер и глобальный TracerProvider.
// Адрес коллектора берётся из стандартных переменных OTEL_EXPORTER_OTLP_*.
func InitTelemetry(ctx context.Context, serviceName string) (Shutdown, error) {
	exp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	logging.Info("📡 OpenTelemetry инициализирован (service=%s)", serviceName)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}
