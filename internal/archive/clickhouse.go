package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/rs/zerolog"

	"pmwatch/internal/config"
	"pmwatch/internal/domain"
)

// Sink mirrors published alerts into ClickHouse for long-term querying.
// Optional: wired only when archive.clickhouse.enabled is set. Writes are
// batched on a background loop; a lost batch is logged, never fatal.
type Sink struct {
	log  zerolog.Logger
	conn ch.Conn
	cfg  config.ClickHouseConfig

	inCh      chan domain.PublishedAlert
	closedCh  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func Connect(ctx context.Context, cfg *config.ClickHouseConfig) (ch.Conn, error) {
	if cfg == nil || cfg.DSN == "" {
		return nil, errors.New("clickhouse dsn is required")
	}

	opts, err := ch.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.Compression == nil {
		opts.Compression = &ch.Compression{Method: ch.CompressionLZ4}
	}
	opts.ClientInfo = ch.ClientInfo{
		Products: []struct{ Name, Version string }{
			{Name: "pmwatch", Version: "0.1.0"},
		},
	}

	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err = conn.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	return conn, nil
}

func NewSink(log zerolog.Logger, conn ch.Conn, cfg config.ClickHouseConfig) *Sink {
	if cfg.Writer.BatchMaxRows <= 0 {
		cfg.Writer.BatchMaxRows = 1000
	}
	if cfg.Writer.BatchMaxInterval <= 0 {
		cfg.Writer.BatchMaxInterval = 200 * time.Millisecond
	}
	if cfg.Writer.RetryBackoff <= 0 {
		cfg.Writer.RetryBackoff = 200 * time.Millisecond
	}

	s := &Sink{
		log:      log,
		conn:     conn,
		cfg:      cfg,
		inCh:     make(chan domain.PublishedAlert, 1024),
		closedCh: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.loop()
	return s
}

func (s *Sink) Enqueue(alert domain.PublishedAlert) error {
	select {
	case <-s.closedCh:
		return errors.New("clickhouse sink closed")
	default:
	}

	select {
	case s.inCh <- alert:
		return nil
	case <-s.closedCh:
		return errors.New("clickhouse sink closed")
	}
}

// Close flushes pending rows, bounded by ctx.
func (s *Sink) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		close(s.closedCh)
		close(s.inCh)
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sink) loop() {
	defer s.wg.Done()

	batch := make([]domain.PublishedAlert, 0, s.cfg.Writer.BatchMaxRows)
	ticker := time.NewTicker(s.cfg.Writer.BatchMaxInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.insertBatch(context.Background(), batch); err != nil {
			s.log.Error().Err(err).Int("rows", len(batch)).Msg("clickhouse batch insert failed")
		}
		batch = batch[:0]
	}

	for {
		select {
		case alert, ok := <-s.inCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, alert)
			if len(batch) >= s.cfg.Writer.BatchMaxRows {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (s *Sink) insertBatch(ctx context.Context, alerts []domain.PublishedAlert) error {
	backoff := s.cfg.Writer.RetryBackoff
	var lastErr error

	for attempt := 0; attempt <= s.cfg.Writer.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}
		if lastErr = s.trySend(ctx, alerts); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (s *Sink) trySend(ctx context.Context, alerts []domain.PublishedAlert) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO published_alerts (
			published_at,
			event_time,
			alert_type,
			condition_id,
			notional,
			metrics,
			url
		)
	`)
	if err != nil {
		return err
	}

	for i := range alerts {
		a := &alerts[i]
		metrics, err := json.Marshal(a.Metrics)
		if err != nil {
			_ = batch.Abort()
			return err
		}
		if err = batch.Append(
			time.Unix(a.PublishedAt, 0).UTC(),
			time.Unix(a.Timestamp, 0).UTC(),
			a.Type,
			a.ConditionID,
			a.Notional,
			string(metrics),
			a.URL,
		); err != nil {
			_ = batch.Abort()
			return err
		}
	}
	return batch.Send()
}
