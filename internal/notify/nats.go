// Package notify публикует найденные блоки во внешние системы.
package notify

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/annel0/eggscan/internal/logging"
	"github.com/annel0/eggscan/internal/scan"
	"github.com/nats-io/nats.go"
)

// DefaultSubject тема NATS по умолчанию
const DefaultSubject = "eggscan.hits"

// NATSConfig параметры подключения публикатора
type NATSConfig struct {
	URL           string
	Subject       string
	MaxReconnects int
	ReconnectWait time.Duration
}

// HitMessage JSON-сообщение об одной находке
type HitMessage struct {
	ScanID    string    `json:"scan_id"`
	Block     string    `json:"block"`
	Label     string    `json:"label"`
	ChunkX    int       `json:"chunk_x"`
	ChunkZ    int       `json:"chunk_z"`
	Region    string    `json:"region"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHitMessage собирает сообщение из находки
func NewHitMessage(scanID string, h scan.Hit) HitMessage {
	return HitMessage{
		ScanID:    scanID,
		Block:     h.Target,
		Label:     scan.Label(h.Target),
		ChunkX:    h.Chunk.X,
		ChunkZ:    h.Chunk.Z,
		Region:    h.Region.String(),
		Timestamp: time.Now().UTC(),
	}
}

// NATSPublisher реализует scan.HitSink поверх NATS Pub/Sub
type NATSPublisher struct {
	conn    *nats.Conn
	subject string

	published atomic.Int64
	failed    atomic.Int64
}

// NewNATSPublisher подключается к NATS
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = 10
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 2 * time.Second
	}

	opts := []nats.Option{
		nats.Name("eggscan"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logging.Warn("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logging.Info("NATS publisher initialized: %s (subject: %s)", cfg.URL, cfg.Subject)
	return &NATSPublisher{conn: conn, subject: cfg.Subject}, nil
}

// PublishHit отправляет находку в тему публикатора
func (p *NATSPublisher) PublishHit(scanID string, h scan.Hit) error {
	data, err := json.Marshal(NewHitMessage(scanID, h))
	if err != nil {
		p.failed.Add(1)
		return fmt.Errorf("failed to marshal hit: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		p.failed.Add(1)
		return fmt.Errorf("failed to publish hit: %w", err)
	}
	p.published.Add(1)
	return nil
}

// Stats возвращает число отправленных и неудачных публикаций
func (p *NATSPublisher) Stats() (published, failed int64) {
	return p.published.Load(), p.failed.Load()
}

// Close дожидается отправки буфера и закрывает соединение
func (p *NATSPublisher) Close() error {
	err := p.conn.Flush()
	p.conn.Close()
	return err
}
