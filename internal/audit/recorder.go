// Package audit keeps an append-only trail of checkout activity. Recording
// is best effort: failures are logged and never reach the checkout flow.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	s3 "checkout/aws"
	"checkout/internal/checkout"

	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// Inserter is the subset of *mongo.Collection the recorder writes through.
type Inserter interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

type Kind string

const (
	KindSetup      Kind = "setup"
	KindTransition Kind = "transition"
)

type Event struct {
	ID                  string    `bson:"_id" json:"id"`
	SessionID           string    `bson:"session_id" json:"sessionId"`
	Kind                Kind      `bson:"kind" json:"kind"`
	From                string    `bson:"from,omitempty" json:"from,omitempty"`
	To                  string    `bson:"to,omitempty" json:"to,omitempty"`
	Generation          uint64    `bson:"generation,omitempty" json:"generation,omitempty"`
	Retry               int       `bson:"retry,omitempty" json:"retry,omitempty"`
	Stale               bool      `bson:"stale,omitempty" json:"stale,omitempty"`
	TransactionSetupID  string    `bson:"transaction_setup_id,omitempty" json:"transactionSetupId,omitempty"`
	ExpressResponseCode string    `bson:"express_response_code,omitempty" json:"expressResponseCode,omitempty"`
	Error               string    `bson:"error,omitempty" json:"error,omitempty"`
	ArchiveLocation     string    `bson:"archive_location,omitempty" json:"archiveLocation,omitempty"`
	CreatedAt           time.Time `bson:"created_at" json:"createdAt"`
}

type Recorder struct {
	events   Inserter
	uploader s3manageriface.UploaderAPI
	bucket   string
	logger   *zap.Logger
	now      func() time.Time
	jobs     chan func(context.Context)
}

type Option func(*Recorder)

func WithCollection(events Inserter) Option {
	return func(r *Recorder) {
		r.events = events
	}
}

// WithArchive stores raw gateway responses in bucket.
func WithArchive(uploader s3manageriface.UploaderAPI, bucket string) Option {
	return func(r *Recorder) {
		r.uploader = uploader
		r.bucket = bucket
	}
}

func NewRecorder(logger *zap.Logger, opts ...Option) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enabled reports whether any sink is configured.
func (r *Recorder) Enabled() bool {
	return r.events != nil || r.uploader != nil
}

// RecordSetup stores the outcome of one setup call and archives the raw
// gateway response when an archive is configured.
func (r *Recorder) RecordSetup(ctx context.Context, attempt checkout.SetupAttempt) {
	ev := r.newEvent(attempt.SessionID, KindSetup)
	r.submit(ctx, attempt.SessionID, KindSetup, func(ctx context.Context) {
		r.recordSetup(ctx, ev, attempt)
	})
}

func (r *Recorder) RecordTransition(ctx context.Context, sessionID string, from, to checkout.State) {
	ev := r.newEvent(sessionID, KindTransition)
	ev.From = string(from)
	ev.To = string(to)
	r.submit(ctx, sessionID, KindTransition, func(ctx context.Context) {
		r.insert(ctx, ev)
	})
}

func (r *Recorder) recordSetup(ctx context.Context, ev Event, attempt checkout.SetupAttempt) {
	ev.Generation = attempt.Generation
	ev.Retry = attempt.Retry
	ev.Stale = attempt.Stale
	if attempt.Err != nil {
		ev.Error = attempt.Err.Error()
	}

	if resp := attempt.Response; resp != nil {
		if resp.TransactionSetupID != nil {
			ev.TransactionSetupID = *resp.TransactionSetupID
		}
		ev.ExpressResponseCode = resp.ExpressResponseCode
		if resp.Raw != nil {
			key := fmt.Sprintf("transaction-setup/%s/%d.json", attempt.SessionID, attempt.Generation)
			ev.ArchiveLocation = r.archive(ctx, key, resp.Raw)
		}
	}

	r.insert(ctx, ev)
}

func (r *Recorder) newEvent(sessionID string, kind Kind) Event {
	return Event{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Kind:      kind,
		CreatedAt: r.now(),
	}
}

func (r *Recorder) insert(ctx context.Context, ev Event) {
	if r.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if _, err := r.events.InsertOne(ctx, ev); err != nil {
		r.logger.Warn("Failed to record audit event",
			zap.Error(err),
			zap.String("session_id", ev.SessionID),
			zap.String("kind", string(ev.Kind)),
		)
	}
}

func (r *Recorder) archive(ctx context.Context, key string, raw any) string {
	if r.uploader == nil {
		return ""
	}
	body, err := json.Marshal(raw)
	if err != nil {
		r.logger.Warn("Failed to encode gateway response", zap.Error(err))
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	location, err := s3.UploadObject(ctx, r.uploader, r.bucket, key, "application/json", bytes.NewReader(body))
	if err != nil {
		r.logger.Warn("Failed to archive gateway response", zap.Error(err), zap.String("key", key))
		return ""
	}
	return location
}
