package utils

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// OrderEventHandler reacts to order document changes. Implementations must
// not block the stream on failures.
type OrderEventHandler interface {
	OnOrderCreated(ctx context.Context, orderID string, doc bson.M)
	OnOrderUpdated(ctx context.Context, orderID string, doc bson.M)
}

// OrderEventListener follows the orders collection through a change stream
// and hands every insert/update/replace to the handler.
type OrderEventListener struct {
	coll         *mongo.Collection
	handler      OrderEventHandler
	logger       logrus.FieldLogger
	restartDelay time.Duration

	isListening       bool
	startTime         time.Time
	lastEventTime     time.Time
	reconnectAttempts int
	lastError         string
	resumeToken       bson.Raw
	metrics           ListenerMetrics
	cancel            context.CancelFunc
	done              chan struct{}
	mu                sync.Mutex
}

type ListenerMetrics struct {
	ProcessedEvents    int64     `json:"processedEvents"`
	SkippedEvents      int64     `json:"skippedEvents"`
	ReconnectAttempts  int       `json:"reconnectAttempts"`
	Uptime             string    `json:"uptime"`
	LastEventProcessed time.Time `json:"lastEventProcessed"`
}

type HealthStatus struct {
	IsHealthy         bool      `json:"isHealthy"`
	LastEventTime     time.Time `json:"lastEventTime"`
	Uptime            string    `json:"uptime"`
	ReconnectAttempts int       `json:"reconnectAttempts"`
	LastError         string    `json:"lastError,omitempty"`
}

type orderChangeEvent struct {
	ID            bson.Raw `bson:"_id"`
	OperationType string   `bson:"operationType"`
	DocumentKey   bson.M   `bson:"documentKey"`
	FullDocument  bson.M   `bson:"fullDocument"`
}

func NewOrderEventListener(coll *mongo.Collection, handler OrderEventHandler, logger logrus.FieldLogger) *OrderEventListener {
	return &OrderEventListener{
		coll:         coll,
		handler:      handler,
		logger:       logger,
		restartDelay: 5 * time.Second,
	}
}

func (l *OrderEventListener) GetHealth() HealthStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	return HealthStatus{
		IsHealthy:         l.isListening && l.lastError == "",
		LastEventTime:     l.lastEventTime,
		Uptime:            time.Since(l.startTime).String(),
		ReconnectAttempts: l.reconnectAttempts,
		LastError:         l.lastError,
	}
}

func (l *OrderEventListener) GetMetrics() ListenerMetrics {
	l.mu.Lock()
	defer l.mu.Unlock()

	m := l.metrics
	m.ReconnectAttempts = l.reconnectAttempts
	m.Uptime = time.Since(l.startTime).String()
	return m
}

// Start opens the change stream and consumes it in the background until Stop.
func (l *OrderEventListener) Start() error {
	l.mu.Lock()
	if l.isListening {
		l.mu.Unlock()
		return errors.New("already listening")
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	l.isListening = true
	l.startTime = time.Now()
	l.lastError = ""
	l.mu.Unlock()

	stream, err := l.open(ctx)
	if err != nil {
		l.mu.Lock()
		l.isListening = false
		l.lastError = err.Error()
		close(l.done)
		l.mu.Unlock()
		cancel()
		return err
	}

	l.logger.WithField("collection", l.coll.Name()).Info("listening for order changes")
	go l.run(ctx, stream)
	return nil
}

func (l *OrderEventListener) open(ctx context.Context) (*mongo.ChangeStream, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"operationType": bson.M{"$in": bson.A{"insert", "update", "replace"}}}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	l.mu.Lock()
	if l.resumeToken != nil {
		opts.SetResumeAfter(l.resumeToken)
	}
	l.mu.Unlock()

	stream, err := l.coll.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, fmt.Errorf("open change stream: %w", err)
	}
	return stream, nil
}

func (l *OrderEventListener) run(ctx context.Context, stream *mongo.ChangeStream) {
	defer close(l.done)

	for {
		for stream.Next(ctx) {
			var ev orderChangeEvent
			if err := stream.Decode(&ev); err != nil {
				l.logger.WithError(err).Error("failed to decode change event")
				continue
			}
			l.dispatch(ctx, ev)

			l.mu.Lock()
			l.resumeToken = stream.ResumeToken()
			l.mu.Unlock()
		}
		err := stream.Err()
		_ = stream.Close(context.Background())

		if ctx.Err() != nil {
			return
		}

		l.mu.Lock()
		l.reconnectAttempts++
		if err != nil {
			l.lastError = err.Error()
		}
		attempts := l.reconnectAttempts
		l.mu.Unlock()
		l.logger.WithFields(logrus.Fields{"attempt": attempts}).WithError(err).Warn("change stream interrupted, reconnecting")

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(l.restartDelay):
			}
			stream, err = l.open(ctx)
			if err == nil {
				l.mu.Lock()
				l.lastError = ""
				l.mu.Unlock()
				break
			}
			l.mu.Lock()
			l.lastError = err.Error()
			l.reconnectAttempts++
			l.mu.Unlock()
			l.logger.WithError(err).Error("failed to reopen change stream")
		}
	}
}

func (l *OrderEventListener) dispatch(ctx context.Context, ev orderChangeEvent) {
	orderID := documentKeyString(ev.DocumentKey["_id"])

	hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch ev.OperationType {
	case "insert":
		l.handler.OnOrderCreated(hctx, orderID, ev.FullDocument)
	case "update", "replace":
		l.handler.OnOrderUpdated(hctx, orderID, ev.FullDocument)
	default:
		l.mu.Lock()
		l.metrics.SkippedEvents++
		l.mu.Unlock()
		return
	}

	l.mu.Lock()
	l.metrics.ProcessedEvents++
	l.lastEventTime = time.Now()
	l.metrics.LastEventProcessed = l.lastEventTime
	l.mu.Unlock()
}

// Stop cancels the stream and waits for the consumer to exit.
func (l *OrderEventListener) Stop() error {
	l.mu.Lock()
	if !l.isListening {
		l.mu.Unlock()
		return errors.New("not currently listening")
	}
	l.isListening = false
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Restart stops the stream and opens it again from the last resume token.
func (l *OrderEventListener) Restart() error {
	if err := l.Stop(); err != nil {
		return err
	}
	l.logger.Info("restarting order change listener")
	return l.Start()
}

func documentKeyString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case primitive.ObjectID:
		return id.Hex()
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}
