package messaging

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/ledgerpay-backend/pkg/config"
	"github.com/angelmondragon/ledgerpay-backend/pkg/db"
	"github.com/angelmondragon/ledgerpay-backend/pkg/db/models"
	"github.com/angelmondragon/ledgerpay-backend/pkg/inbox"
	"github.com/angelmondragon/ledgerpay-backend/pkg/logger"
	"github.com/angelmondragon/ledgerpay-backend/pkg/metrics"
)

type handledEvent struct {
	ID      int64  `gorm:"primaryKey;autoIncrement"`
	EventID string `gorm:"not null"`
}

type fakeAcknowledger struct {
	acks    int
	nacks   int
	rejects int
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.acks++
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.nacks++
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.rejects++
	return nil
}

type publishedCopy struct {
	queue   string
	headers amqp.Table
	body    []byte
}

type fakeCopyPublisher struct {
	published []publishedCopy
	err       error
}

func (f *fakeCopyPublisher) publishCopy(ctx context.Context, d amqp.Delivery, queue string, headers amqp.Table) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, publishedCopy{queue: queue, headers: headers, body: d.Body})
	return nil
}

func newConsumerFixture(t *testing.T, handlers map[string]Handler) (*Consumer, *db.Client, *fakeCopyPublisher) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.InboxMessage{}, &handledEvent{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	client := db.NewFromConn(conn)
	pub := &fakeCopyPublisher{}

	consumer := &Consumer{
		client: client,
		inbox:  inbox.NewStore(client),
		logg:   logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard}),
		met:    metrics.NewConsumerMetrics(nil),
		cfg:    config.InboxConfig{PrefetchCount: 10, RetryLimit: 3, RetryDelay: 0},
		topo: Topology{
			QueueName:    "risk-worker",
			ConsumerName: "risk-worker",
			RoutingKeys:  []string{EventPaymentCreated},
		},
		handlers: handlers,
		pub:      pub,
	}
	return consumer, client, pub
}

func deliveryFor(t *testing.T, env EventEnvelope, headers amqp.Table, ack *fakeAcknowledger) amqp.Delivery {
	t.Helper()
	body, err := env.Encode()
	if err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
	return amqp.Delivery{
		Acknowledger: ack,
		Body:         body,
		Headers:      headers,
		ContentType:  "application/json",
		MessageId:    env.EventID.String(),
	}
}

func countRows(t *testing.T, client *db.Client, model any) int64 {
	t.Helper()
	var count int64
	if err := client.DB().Model(model).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return count
}

func TestProcessHandlesAndRecordsInbox(t *testing.T) {
	ctx := context.Background()
	handlers := map[string]Handler{
		EventPaymentCreated: func(ctx context.Context, tx *gorm.DB, env EventEnvelope) error {
			return tx.Create(&handledEvent{EventID: env.EventID.String()}).Error
		},
	}
	consumer, client, pub := newConsumerFixture(t, handlers)

	env, err := NewEnvelope(EventPaymentCreated, "corr-1", "payments-api", map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	ack := &fakeAcknowledger{}
	consumer.process(ctx, deliveryFor(t, env, nil, ack))

	if ack.acks != 1 || ack.nacks != 0 {
		t.Fatalf("expected single ack, got acks=%d nacks=%d", ack.acks, ack.nacks)
	}
	if got := countRows(t, client, &handledEvent{}); got != 1 {
		t.Fatalf("expected 1 handled row, got %d", got)
	}
	if got := countRows(t, client, &models.InboxMessage{}); got != 1 {
		t.Fatalf("expected 1 inbox row, got %d", got)
	}
	if len(pub.published) != 0 {
		t.Fatalf("nothing should be republished, got %d", len(pub.published))
	}
}

func TestProcessSkipsDuplicate(t *testing.T) {
	ctx := context.Background()
	calls := 0
	handlers := map[string]Handler{
		EventPaymentCreated: func(ctx context.Context, tx *gorm.DB, env EventEnvelope) error {
			calls++
			return nil
		},
	}
	consumer, client, _ := newConsumerFixture(t, handlers)

	env, err := NewEnvelope(EventPaymentCreated, "corr-1", "payments-api", map[string]string{})
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}

	first := &fakeAcknowledger{}
	consumer.process(ctx, deliveryFor(t, env, nil, first))
	second := &fakeAcknowledger{}
	consumer.process(ctx, deliveryFor(t, env, nil, second))

	if calls != 1 {
		t.Fatalf("handler should run once, ran %d times", calls)
	}
	if second.acks != 1 {
		t.Fatalf("duplicate should still be acked, got %d", second.acks)
	}
	if got := countRows(t, client, &models.InboxMessage{}); got != 1 {
		t.Fatalf("expected 1 inbox row, got %d", got)
	}
}

func TestProcessDropsMalformedBody(t *testing.T) {
	ctx := context.Background()
	consumer, client, pub := newConsumerFixture(t, nil)

	ack := &fakeAcknowledger{}
	consumer.process(ctx, amqp.Delivery{Acknowledger: ack, Body: []byte("{not json")})

	if ack.acks != 1 {
		t.Fatalf("malformed message should be acked, got %d", ack.acks)
	}
	if got := countRows(t, client, &models.InboxMessage{}); got != 0 {
		t.Fatalf("no inbox row expected, got %d", got)
	}
	if len(pub.published) != 0 {
		t.Fatalf("malformed message must not be retried")
	}
}

func TestProcessRecordsUnknownEventType(t *testing.T) {
	ctx := context.Background()
	consumer, client, _ := newConsumerFixture(t, nil)

	env, err := NewEnvelope("payment.unknown.v9", "corr-1", "payments-api", map[string]string{})
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	ack := &fakeAcknowledger{}
	consumer.process(ctx, deliveryFor(t, env, nil, ack))

	if ack.acks != 1 {
		t.Fatalf("unknown event should be acked, got %d", ack.acks)
	}
	if got := countRows(t, client, &models.InboxMessage{}); got != 1 {
		t.Fatalf("unknown event should still get an inbox row, got %d", got)
	}
}

func TestProcessFailureGoesToRetryQueue(t *testing.T) {
	ctx := context.Background()
	handlers := map[string]Handler{
		EventPaymentCreated: func(ctx context.Context, tx *gorm.DB, env EventEnvelope) error {
			if err := tx.Create(&handledEvent{EventID: env.EventID.String()}).Error; err != nil {
				return err
			}
			return errors.New("risk engine unavailable")
		},
	}
	consumer, client, pub := newConsumerFixture(t, handlers)

	env, err := NewEnvelope(EventPaymentCreated, "corr-1", "payments-api", map[string]string{})
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	ack := &fakeAcknowledger{}
	consumer.process(ctx, deliveryFor(t, env, nil, ack))

	if ack.acks != 1 {
		t.Fatalf("retried message should be acked, got %d", ack.acks)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected one republish, got %d", len(pub.published))
	}
	copy := pub.published[0]
	if copy.queue != "risk-worker.retry" {
		t.Fatalf("expected retry queue, got %s", copy.queue)
	}
	if got := copy.headers[HeaderRetryCount]; got != "1" {
		t.Fatalf("expected retry count 1, got %v", got)
	}
	if s, ok := copy.headers[HeaderLastError].(string); !ok || s == "" {
		t.Fatal("expected last error header")
	}
	// The failed transaction must leave no partial state behind.
	if got := countRows(t, client, &handledEvent{}); got != 0 {
		t.Fatalf("handler mutation should be rolled back, got %d rows", got)
	}
	if got := countRows(t, client, &models.InboxMessage{}); got != 0 {
		t.Fatalf("no inbox row on failure, got %d", got)
	}
}

func TestProcessRetryCountIncrements(t *testing.T) {
	ctx := context.Background()
	handlers := map[string]Handler{
		EventPaymentCreated: func(ctx context.Context, tx *gorm.DB, env EventEnvelope) error {
			return errors.New("still failing")
		},
	}
	consumer, _, pub := newConsumerFixture(t, handlers)

	env, err := NewEnvelope(EventPaymentCreated, "corr-1", "payments-api", map[string]string{})
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	ack := &fakeAcknowledger{}
	consumer.process(ctx, deliveryFor(t, env, amqp.Table{HeaderRetryCount: "2"}, ack))

	if len(pub.published) != 1 {
		t.Fatalf("expected one republish, got %d", len(pub.published))
	}
	if got := pub.published[0].headers[HeaderRetryCount]; got != "3" {
		t.Fatalf("expected retry count 3, got %v", got)
	}
	if pub.published[0].queue != "risk-worker.retry" {
		t.Fatalf("expected retry queue, got %s", pub.published[0].queue)
	}
}

func TestProcessExhaustedRetriesDeadLetters(t *testing.T) {
	ctx := context.Background()
	handlers := map[string]Handler{
		EventPaymentCreated: func(ctx context.Context, tx *gorm.DB, env EventEnvelope) error {
			return errors.New("poison message")
		},
	}
	consumer, _, pub := newConsumerFixture(t, handlers)

	env, err := NewEnvelope(EventPaymentCreated, "corr-1", "payments-api", map[string]string{})
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	ack := &fakeAcknowledger{}
	consumer.process(ctx, deliveryFor(t, env, amqp.Table{HeaderRetryCount: "3"}, ack))

	if ack.acks != 1 {
		t.Fatalf("dead-lettered message should be acked, got %d", ack.acks)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected one republish, got %d", len(pub.published))
	}
	copy := pub.published[0]
	if copy.queue != "risk-worker.dlq" {
		t.Fatalf("expected dlq, got %s", copy.queue)
	}
	if s, ok := copy.headers[HeaderFinalError].(string); !ok || s == "" {
		t.Fatal("expected final error header")
	}
	if got := copy.headers[HeaderRetryCount]; got != "3" {
		t.Fatalf("expected retry count 3, got %v", got)
	}
}

func TestProcessRepublishFailureNacksForRedelivery(t *testing.T) {
	ctx := context.Background()
	handlers := map[string]Handler{
		EventPaymentCreated: func(ctx context.Context, tx *gorm.DB, env EventEnvelope) error {
			return errors.New("handler failed")
		},
	}
	consumer, _, pub := newConsumerFixture(t, handlers)
	pub.err = errors.New("broker unavailable")

	env, err := NewEnvelope(EventPaymentCreated, "corr-1", "payments-api", map[string]string{})
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	ack := &fakeAcknowledger{}
	consumer.process(ctx, deliveryFor(t, env, nil, ack))

	if ack.acks != 0 || ack.nacks != 1 {
		t.Fatalf("expected nack-requeue, got acks=%d nacks=%d", ack.acks, ack.nacks)
	}
}

func TestRetryCountHeaderParsing(t *testing.T) {
	if got := retryCount(nil); got != 0 {
		t.Fatalf("nil headers should be 0, got %d", got)
	}
	if got := retryCount(amqp.Table{HeaderRetryCount: "3"}); got != 3 {
		t.Fatalf("string header should parse, got %d", got)
	}
	if got := retryCount(amqp.Table{HeaderRetryCount: []byte("5")}); got != 5 {
		t.Fatalf("byte-slice header should parse, got %d", got)
	}
	if got := retryCount(amqp.Table{HeaderRetryCount: int32(2)}); got != 2 {
		t.Fatalf("int32 header should parse, got %d", got)
	}
	if got := retryCount(amqp.Table{HeaderRetryCount: int64(4)}); got != 4 {
		t.Fatalf("int64 header should parse, got %d", got)
	}
	if got := retryCount(amqp.Table{HeaderRetryCount: "junk"}); got != 0 {
		t.Fatalf("unparseable header should be 0, got %d", got)
	}
}

func TestProcessStringRetryCountRespectsLimit(t *testing.T) {
	ctx := context.Background()
	handlers := map[string]Handler{
		EventPaymentCreated: func(ctx context.Context, tx *gorm.DB, env EventEnvelope) error {
			return errors.New("still failing")
		},
	}
	consumer, _, pub := newConsumerFixture(t, handlers)

	env, err := NewEnvelope(EventPaymentCreated, "corr-1", "payments-api", map[string]string{})
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	ack := &fakeAcknowledger{}
	consumer.process(ctx, deliveryFor(t, env, amqp.Table{HeaderRetryCount: "3"}, ack))

	if len(pub.published) != 1 {
		t.Fatalf("expected one republish, got %d", len(pub.published))
	}
	if pub.published[0].queue != "risk-worker.dlq" {
		t.Fatalf("exhausted message must dead-letter, got %s", pub.published[0].queue)
	}
}

func TestProcessConcurrentDuplicateIsAcked(t *testing.T) {
	ctx := context.Background()
	handlers := map[string]Handler{
		// The handler plays the competing consumer that won the race: it
		// inserts the inbox row first, so the consumer's own insert hits
		// the unique index on (event_id, consumer).
		EventPaymentCreated: func(ctx context.Context, tx *gorm.DB, env EventEnvelope) error {
			return tx.Create(&models.InboxMessage{
				EventID:    env.EventID,
				Consumer:   "risk-worker",
				EventType:  env.EventType,
				ReceivedAt: time.Now().UTC(),
			}).Error
		},
	}
	consumer, _, pub := newConsumerFixture(t, handlers)

	env, err := NewEnvelope(EventPaymentCreated, "corr-1", "payments-api", map[string]string{})
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	ack := &fakeAcknowledger{}
	consumer.process(ctx, deliveryFor(t, env, nil, ack))

	if ack.acks != 1 || ack.nacks != 0 {
		t.Fatalf("losing duplicate should be acked, got acks=%d nacks=%d", ack.acks, ack.nacks)
	}
	if len(pub.published) != 0 {
		t.Fatalf("losing duplicate must not be retried, got %d republishes", len(pub.published))
	}
}
