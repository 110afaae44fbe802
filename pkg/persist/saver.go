package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mcclellann/kasbon/pkg/metrics"
	"github.com/mcclellann/kasbon/pkg/models"
	"github.com/mcclellann/kasbon/pkg/store"
)

// DefaultDebounce is the quiet period before a remote save fires.
const DefaultDebounce = 1500 * time.Millisecond

const remoteTimeout = 30 * time.Second

// Saver persists state snapshots. Every submission is written to the local
// cache straight away; the remote write is debounced and only the latest
// snapshot of a burst is sent. Failures are logged and counted, never
// retried.
type Saver struct {
	cache    store.Storage
	remote   store.Storage
	debounce time.Duration
	client   *http.Client
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu      sync.Mutex
	pending []byte
	timer   *time.Timer
	loaded  bool
	closed  bool

	// writeMu orders remote writes so an older snapshot never lands after a
	// newer one.
	writeMu  sync.Mutex
	inflight sync.WaitGroup
}

type Option func(*Saver)

func WithCache(s store.Storage) Option  { return func(sv *Saver) { sv.cache = s } }
func WithRemote(s store.Storage) Option { return func(sv *Saver) { sv.remote = s } }

func WithDebounce(d time.Duration) Option {
	return func(sv *Saver) {
		if d > 0 {
			sv.debounce = d
		}
	}
}

// WithHTTPClient sets the client used for webhook backups.
func WithHTTPClient(c *http.Client) Option { return func(sv *Saver) { sv.client = c } }

func WithLogger(l *slog.Logger) Option      { return func(sv *Saver) { sv.logger = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(sv *Saver) { sv.metrics = m } }
func WithClock(now func() time.Time) Option { return func(sv *Saver) { sv.now = now } }

func NewSaver(opts ...Option) *Saver {
	s := &Saver{
		debounce: DefaultDebounce,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MarkLoaded opens the gate for remote writes. Until it is called the
// remote copy is never overwritten, so a fresh empty state cannot replace
// data that has not been fetched yet.
func (s *Saver) MarkLoaded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
	if s.pending != nil && !s.closed {
		s.schedule()
	}
}

// Submit records a new snapshot. It satisfies ledger.Observer.
func (s *Saver) Submit(state models.State) {
	data, err := json.Marshal(state)
	if err != nil {
		s.logger.Error("Failed to encode state", slog.Any("error", err))
		return
	}

	if s.cache != nil {
		err := s.cache.Save(context.Background(), data)
		s.metrics.ObserveWrite(metrics.TargetCache, err)
		if err != nil {
			s.logger.Warn("Failed to write local cache", slog.Any("error", err))
		}
	}
	if s.metrics != nil {
		s.metrics.Transactions.Set(float64(len(state.Transactions)))
	}

	if state.Config.EnableAutoSync && state.Config.GoogleScriptURL != "" {
		s.inflight.Add(1)
		go func(url string) {
			defer s.inflight.Done()
			s.sendBackup(url, data)
		}(state.Config.GoogleScriptURL)
	}

	if s.remote == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.pending != nil && s.metrics != nil {
		s.metrics.SavesCoalesced.Inc()
	}
	s.pending = data
	if s.loaded {
		s.schedule()
	}
}

// schedule restarts the debounce timer. Callers hold mu.
func (s *Saver) schedule() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
		defer cancel()
		if err := s.writePending(ctx); err != nil {
			s.logger.Warn("Failed to save state to remote store", slog.Any("error", err))
		}
	})
}

// writePending sends the latest pending snapshot, if any.
func (s *Saver) writePending(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	data := s.pending
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	if data == nil {
		return nil
	}
	err := s.remote.Save(ctx, data)
	s.metrics.ObserveWrite(metrics.TargetRemote, err)
	if err != nil {
		return err
	}
	s.logger.Debug("State saved to remote store", slog.Int("bytes", len(data)))
	return nil
}

// Flush writes any pending snapshot now. It is a no-op before MarkLoaded.
func (s *Saver) Flush(ctx context.Context) error {
	if s.remote == nil {
		return nil
	}
	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()
	if !loaded {
		return nil
	}
	return s.writePending(ctx)
}

// Close flushes the pending snapshot, waits for webhook backups and stops
// accepting remote writes. The local cache keeps being written.
func (s *Saver) Close(ctx context.Context) error {
	err := s.Flush(ctx)

	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

type backupPayload struct {
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
}

// sendBackup posts the full snapshot to the configured webhook. The
// response is ignored.
func (s *Saver) sendBackup(url string, data []byte) {
	body, err := json.Marshal(backupPayload{
		Timestamp: s.now().UTC().Format(time.RFC3339Nano),
		Type:      "FULL_BACKUP",
		Data:      data,
	})
	if err == nil {
		err = s.postBackup(url, body)
	}
	s.metrics.ObserveWrite(metrics.TargetWebhook, err)
	if err != nil {
		s.logger.Warn("Webhook backup failed", slog.String("url", url), slog.Any("error", err))
	}
}

func (s *Saver) postBackup(url string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post webhook: %w", err)
	}
	resp.Body.Close()
	return nil
}
