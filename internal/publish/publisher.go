package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/policy-radar/internal/dedupe"
	"github.com/DeafMist/policy-radar/internal/models"
	"github.com/DeafMist/policy-radar/internal/processing"
)

// Source tags every digest with the system that produced it.
const Source = "gemini"

// Publisher exports lookup results to downstream consumers.
type Publisher interface {
	// Publish returns how many policies were written.
	Publish(ctx context.Context, resp *models.SearchResponse) (int, error)
	Close() error
}

// Message is the JSON value of one digest record. The title/text/timestamp/
// source fields follow the raw news format used by the ingest workers.
type Message struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Text       string   `json:"text"`
	Timestamp  string   `json:"timestamp"`
	Source     string   `json:"source"`
	Date       string   `json:"date"`
	Department string   `json:"department,omitempty"`
	Category   string   `json:"category,omitempty"`
	URLs       []string `json:"urls"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka writes one message per policy, keyed by processing.PolicyKey.
type Kafka struct {
	writer messageWriter
	cache  *dedupe.Cache
	log    *slog.Logger
	now    func() time.Time
}

// NewKafka connects a publisher to topic on brokers.
func NewKafka(brokers []string, topic string, cache *dedupe.Cache, logger *slog.Logger) *Kafka {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     brokers,
		Topic:       topic,
		Balancer:    &kafka.Hash{},
		MaxAttempts: 3,
	})
	return newKafka(w, cache, logger)
}

func newKafka(w messageWriter, cache *dedupe.Cache, logger *slog.Logger) *Kafka {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cache == nil {
		cache = dedupe.NewCache(1000, 24*time.Hour)
	}
	return &Kafka{writer: w, cache: cache, log: logger, now: time.Now}
}

// Publish writes the policies of resp that were not published recently. The
// overview item synthesized from unstructured answers is never exported.
func (k *Kafka) Publish(ctx context.Context, resp *models.SearchResponse) (int, error) {
	if resp == nil || len(resp.Policies) == 0 {
		return 0, nil
	}

	urls := make([]string, 0, len(resp.Sources))
	for _, src := range resp.Sources {
		urls = append(urls, src.URI)
	}
	ts := k.now().UTC().Format(time.RFC3339)

	msgs := make([]kafka.Message, 0, len(resp.Policies))
	keys := make([]string, 0, len(resp.Policies))
	batch := make(map[string]struct{}, len(resp.Policies))

	for _, item := range resp.Policies {
		if item.ID == processing.FallbackID {
			continue
		}
		key := processing.PolicyKey(item)
		if _, dup := batch[key]; dup {
			continue
		}
		if k.cache.IsSeen(key) {
			k.log.Debug("digest already published", slog.String("key", key), slog.String("title", item.Title))
			continue
		}
		batch[key] = struct{}{}

		payload, err := json.Marshal(Message{
			ID:         key,
			Title:      item.Title,
			Text:       item.Summary,
			Timestamp:  ts,
			Source:     Source,
			Date:       item.Date,
			Department: item.Department,
			Category:   item.Category,
			URLs:       urls,
		})
		if err != nil {
			return 0, fmt.Errorf("marshal digest: %w", err)
		}

		msgs = append(msgs, kafka.Message{
			Key:   []byte(key),
			Value: payload,
			Headers: []kafka.Header{
				{Key: "date", Value: []byte(item.Date)},
			},
		})
		keys = append(keys, key)
	}

	if len(msgs) == 0 {
		return 0, nil
	}

	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, fmt.Errorf("write digest: %w", err)
	}
	k.cache.MarkSeen(keys...)
	return len(msgs), nil
}

// Close flushes and closes the underlying writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}

// Noop drops everything; it stands in when no brokers are configured.
type Noop struct{}

func (Noop) Publish(context.Context, *models.SearchResponse) (int, error) { return 0, nil }

func (Noop) Close() error { return nil }
