// Package statsd emits DogStatsD-style metrics over UDP.
package statsd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Sink is the metrics surface the services depend on.
type Sink interface {
	Count(name string, value int64, tags map[string]string)
	Gauge(name string, value float64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

const (
	defaultFlushInterval = time.Second
	// Fits one Ethernet frame after IP and UDP headers.
	defaultMaxPacketSize = 1432
	defaultQueueSize     = 1024
)

// Config describes the StatsD endpoint and batching.
type Config struct {
	Address       string
	Prefix        string
	GlobalTags    map[string]string
	FlushInterval time.Duration
	MaxPacketSize int
	QueueSize     int
	Logger        *slog.Logger
}

// Client batches metric lines into UDP packets. Lines are queued without
// blocking and dropped when the queue is full. Close flushes what is queued.
type Client struct {
	prefix     string
	globalTags string
	logger     *slog.Logger

	conn      net.Conn
	queue     chan string
	done      chan struct{}
	maxPacket int
	interval  time.Duration

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

var _ Sink = (*Client)(nil)

// NewClient dials addr and starts the flush loop.
func NewClient(cfg Config) (*Client, error) {
	address := strings.TrimSpace(cfg.Address)
	if address == "" {
		return nil, errors.New("statsd address is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := (&net.Dialer{}).DialContext(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("statsd dial %s: %w", address, err)
	}

	c := &Client{
		prefix:     strings.Trim(strings.TrimSpace(cfg.Prefix), "."),
		globalTags: formatTags(cfg.GlobalTags),
		logger:     logger,
		conn:       conn,
		queue:      make(chan string, positive(cfg.QueueSize, defaultQueueSize)),
		done:       make(chan struct{}),
		maxPacket:  positive(cfg.MaxPacketSize, defaultMaxPacketSize),
		interval:   cfg.FlushInterval,
	}
	if c.interval <= 0 {
		c.interval = defaultFlushInterval
	}
	go c.loop()
	return c, nil
}

func positive(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func (c *Client) Count(name string, value int64, tags map[string]string) {
	c.enqueue(name, strconv.FormatInt(value, 10)+"|c", tags)
}

func (c *Client) Gauge(name string, value float64, tags map[string]string) {
	c.enqueue(name, strconv.FormatFloat(value, 'f', -1, 64)+"|g", tags)
}

// Timing records d in milliseconds.
func (c *Client) Timing(name string, d time.Duration, tags map[string]string) {
	ms := float64(d) / float64(time.Millisecond)
	c.enqueue(name, strconv.FormatFloat(ms, 'f', -1, 64)+"|ms", tags)
}

// Dropped reports how many lines were discarded because the queue was full.
func (c *Client) Dropped() int64 {
	if c == nil {
		return 0
	}
	return c.dropped.Load()
}

// Close flushes queued lines and releases the socket. It is idempotent.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()

	<-c.done
	return c.conn.Close()
}

func (c *Client) enqueue(name, payload string, tags map[string]string) {
	if c == nil {
		return
	}
	metric := c.metricName(name)
	if metric == "" {
		return
	}
	line := metric + ":" + payload + c.tagSuffix(tags)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.queue <- line:
	default:
		c.dropped.Add(1)
	}
}

func (c *Client) loop() {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	var buf []byte
	flush := func() {
		if len(buf) == 0 {
			return
		}
		if _, err := c.conn.Write(buf); err != nil {
			c.logger.Debug("statsd write failed", "error", err)
		}
		buf = buf[:0]
	}

	for {
		select {
		case line, ok := <-c.queue:
			if !ok {
				flush()
				return
			}
			if len(buf) > 0 && len(buf)+1+len(line) > c.maxPacket {
				flush()
			}
			if len(buf) > 0 {
				buf = append(buf, '\n')
			}
			buf = append(buf, line...)
		case <-ticker.C:
			flush()
		}
	}
}

func (c *Client) metricName(name string) string {
	n := strings.TrimSpace(name)
	n = strings.NewReplacer(" ", "_", "/", "_", ":", "_", "|", "_").Replace(n)
	for strings.Contains(n, "..") {
		n = strings.ReplaceAll(n, "..", ".")
	}
	n = strings.Trim(n, ".")
	if n == "" {
		return ""
	}
	if c.prefix == "" {
		return n
	}
	return c.prefix + "." + n
}

func (c *Client) tagSuffix(tags map[string]string) string {
	local := formatTags(tags)
	switch {
	case c.globalTags == "" && local == "":
		return ""
	case c.globalTags == "":
		return "|#" + local
	case local == "":
		return "|#" + c.globalTags
	default:
		return "|#" + c.globalTags + "," + local
	}
}

// formatTags renders tags as sorted key:value pairs. Blank keys are skipped.
func formatTags(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(tags))
	for k, v := range tags {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		pairs = append(pairs, k+":"+strings.TrimSpace(v))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}
