package jobs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Madhav-Gupta-28/0xmart-reconciler/config"
	"github.com/Madhav-Gupta-28/0xmart-reconciler/database"
	"github.com/Madhav-Gupta-28/0xmart-reconciler/metrics"
	"github.com/Madhav-Gupta-28/0xmart-reconciler/models"
	"github.com/Madhav-Gupta-28/0xmart-reconciler/utils"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type RestockMode string

const (
	// RestockRewrite writes the whole item document back after bumping the
	// size in memory. Concurrent writers to the same item can lose updates.
	RestockRewrite RestockMode = "rewrite"
	// RestockIncrement issues an atomic $inc on the one size bucket.
	RestockIncrement RestockMode = "increment"
)

type Outcome string

const (
	OutcomeRestocked      Outcome = "restocked"
	OutcomeItemMissing    Outcome = "item_missing"
	OutcomeVariantMissing Outcome = "variant_missing"
	OutcomeSizeMissing    Outcome = "size_missing"
	OutcomeStockOverflow  Outcome = "stock_overflow"
	OutcomeInvalid        Outcome = "invalid"
)

type LineResult struct {
	OrderID   string  `json:"orderId" bson:"orderId"`
	ItemID    string  `json:"itemId" bson:"itemId"`
	VariantID string  `json:"variantId" bson:"variantId"`
	Size      string  `json:"size" bson:"size"`
	Quantity  int     `json:"quantity" bson:"quantity"`
	Outcome   Outcome `json:"outcome" bson:"outcome"`
}

// Summary describes one reconciliation run.
type Summary struct {
	RunID     string       `json:"runId" bson:"runId"`
	StartedAt time.Time    `json:"startedAt" bson:"startedAt"`
	Duration  string       `json:"duration" bson:"duration"`
	Cutoff    time.Time    `json:"cutoff" bson:"cutoff"`
	Matched   int          `json:"matched" bson:"matched"`
	Deleted   int          `json:"deleted" bson:"deleted"`
	Restocked int          `json:"restocked" bson:"restocked"`
	Skipped   int          `json:"skipped" bson:"skipped"`
	Invalid   int          `json:"invalid" bson:"invalid"`
	Batches   int          `json:"batches" bson:"batches"`
	Logs      int          `json:"logs" bson:"logs"`
	Notified  int          `json:"notified" bson:"notified"`
	Lines     []LineResult `json:"lines,omitempty" bson:"lines"`
	Error     string       `json:"error,omitempty" bson:"error"`
	Err       error        `json:"-" bson:"-"`
}

// ReconcileStore is the slice of the document store the job needs.
type ReconcileStore interface {
	FailedOrdersBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error)
	GetItem(ctx context.Context, itemID string) (*models.Item, error)
	NewBatch() database.Batch
	InsertCleanupFailure(ctx context.Context, f models.CleanupFailure) error
}

type Notifier interface {
	OrderCancelled(ctx context.Context, order models.Order, entry models.CleanupLog) bool
}

type Options struct {
	BatchLimit int
	Grace      time.Duration
	Mode       RestockMode
	LockTTL    time.Duration
}

// Reconciler removes orders whose payment failed more than Grace ago and
// returns their reserved stock to inventory.
type Reconciler struct {
	store    ReconcileStore
	locker   Locker
	notifier Notifier
	validate *validator.Validate
	logger   *logrus.Logger
	opts     Options
	now      func() time.Time

	mu   sync.Mutex
	last *Summary
}

func NewReconciler(store ReconcileStore, locker Locker, notifier Notifier, logger *logrus.Logger, opts Options) *Reconciler {
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = config.DefaultBatchLimit
	}
	opts.BatchLimit = min(opts.BatchLimit, config.MaxBatchLimit)
	if opts.Grace <= 0 {
		opts.Grace = config.DefaultRestockGrace
	}
	if opts.Mode == "" {
		opts.Mode = RestockRewrite
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 15 * time.Minute
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Reconciler{
		store:    store,
		locker:   locker,
		notifier: notifier,
		validate: validator.New(),
		logger:   logger,
		opts:     opts,
		now:      time.Now,
	}
}

// LastSummary returns the result of the most recent run, if any.
func (r *Reconciler) LastSummary() *Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil
	}
	s := *r.last
	return &s
}

// Run executes one reconciliation pass. It never returns an error: failures
// end up in the summary, the log and the cleanup_failures collection.
// Batches committed before a failure stay committed.
func (r *Reconciler) Run(ctx context.Context) Summary {
	s := Summary{RunID: uuid.NewString(), StartedAt: r.now().UTC()}
	log := r.logger.WithField("runId", s.RunID)

	release, err := r.locker.Obtain(ctx, reconcileLockKey, r.opts.LockTTL)
	if err != nil {
		s.Err = err
		s.Error = err.Error()
		log.WithField("kind", models.Kind(err)).Warn("skipping reconciliation run")
		metrics.RecordReconcileRun(models.Kind(err))
		r.remember(s)
		return s
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			log.WithError(err).Warn("failed to release reconciliation lock")
		}
	}()

	err = r.reconcile(ctx, log, &s)
	s.Duration = time.Since(s.StartedAt).String()
	metrics.RecordOrdersDeleted(s.Deleted)
	metrics.RecordBatchesCommitted(s.Batches)

	if err != nil {
		s.Err = err
		s.Error = err.Error()
		config.LogError(log, "jobs", "Reconciler.Run", "order cleanup failed", s.RunID, err)
		metrics.RecordReconcileRun("failed")
		r.recordFailure(log, s)
	} else {
		log.WithFields(logrus.Fields{
			"matched":   s.Matched,
			"deleted":   s.Deleted,
			"restocked": s.Restocked,
			"skipped":   s.Skipped,
			"batches":   s.Batches,
		}).Info("order cleanup finished")
		metrics.RecordReconcileRun("ok")
	}

	r.remember(s)
	return s
}

func (r *Reconciler) remember(s Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = &s
}

func (r *Reconciler) recordFailure(log *logrus.Entry, s Summary) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	failure := models.CleanupFailure{
		RunID:    s.RunID,
		Error:    s.Error,
		Summary:  s,
		FailedAt: r.now().UTC(),
	}
	if err := r.store.InsertCleanupFailure(ctx, failure); err != nil {
		log.WithError(err).Error("failed to record cleanup failure")
	}
}

func (r *Reconciler) reconcile(ctx context.Context, log *logrus.Entry, s *Summary) error {
	now := r.now().UTC()
	s.Cutoff = now.Add(-r.opts.Grace)

	orders, err := r.store.FailedOrdersBefore(ctx, s.Cutoff)
	if err != nil {
		return err
	}
	s.Matched = len(orders)
	if len(orders) == 0 {
		log.Info("no failed orders to clean up")
		return nil
	}

	committer := database.NewCommitter(r.store.NewBatch, r.opts.BatchLimit)
	// Deletes staged since the last commit; counted as deleted once written.
	staged := 0
	track := func(before int) {
		if committer.Commits() > before {
			s.Batches += committer.Commits() - before
			s.Deleted += staged
			staged = 0
		}
	}

	// Items are read once per run and mutated cumulatively so that two lines
	// touching the same item within this run do not overwrite each other.
	items := make(map[string]*models.Item)
	var logs []models.CleanupLog
	var cleaned []models.Order

	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return err
		}

		before := committer.Commits()
		if err := committer.Reserve(ctx, len(order.Items)+1); err != nil {
			return err
		}
		track(before)

		for _, line := range order.Items {
			res, err := r.restockLine(ctx, log, committer, items, order.ID, line, track)
			if err != nil {
				return fmt.Errorf("order %s: %w", order.ID, err)
			}
			s.Lines = append(s.Lines, res)
			metrics.RecordLineOutcome(string(res.Outcome))
			switch res.Outcome {
			case OutcomeRestocked:
				s.Restocked++
			case OutcomeInvalid:
				s.Invalid++
			default:
				s.Skipped++
			}
		}

		logs = append(logs, r.cleanupLog(order, now))
		cleaned = append(cleaned, order)

		committer.Batch().DeleteOrder(order.ID)
		committer.Add()
		staged++
		before = committer.Commits()
		if err := committer.Stage(ctx); err != nil {
			return err
		}
		track(before)
	}

	before := committer.Commits()
	if err := committer.Flush(ctx); err != nil {
		return err
	}
	track(before)

	logBatch := r.store.NewBatch()
	for _, entry := range logs {
		logBatch.AddCleanupLog(entry)
	}
	if err := logBatch.Commit(ctx); err != nil {
		return fmt.Errorf("write cleanup logs: %w", err)
	}
	s.Logs = len(logs)

	if r.notifier != nil {
		for i, order := range cleaned {
			if r.notifier.OrderCancelled(ctx, order, logs[i]) {
				s.Notified++
			}
		}
	}
	return nil
}

func (r *Reconciler) restockLine(ctx context.Context, runLog *logrus.Entry, committer *database.Committer, items map[string]*models.Item, orderID string, line models.OrderItem, track func(int)) (LineResult, error) {
	res := LineResult{
		OrderID:   orderID,
		ItemID:    line.ItemID,
		VariantID: line.VariantID,
		Size:      line.Size,
		Quantity:  line.Quantity,
	}
	log := runLog.WithFields(logrus.Fields{
		"orderId":   orderID,
		"itemId":    line.ItemID,
		"variantId": line.VariantID,
		"size":      line.Size,
	})

	if err := r.validate.Struct(line); err != nil {
		log.WithError(err).Warn("invalid order line, not restocked")
		res.Outcome = OutcomeInvalid
		return res, nil
	}

	item, seen := items[line.ItemID]
	if !seen {
		loaded, err := r.store.GetItem(ctx, line.ItemID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return res, fmt.Errorf("load item %s: %w", line.ItemID, err)
		}
		item = loaded
		items[line.ItemID] = item
	}
	if item == nil {
		log.Warn("inventory item not found, skipping line")
		res.Outcome = OutcomeItemMissing
		return res, nil
	}

	res.Outcome = Restock(item, line.VariantID, line.Size, line.Quantity)
	switch res.Outcome {
	case OutcomeVariantMissing:
		log.Warn("variant not found, skipping line")
		return res, nil
	case OutcomeSizeMissing:
		log.Warn("size not found, skipping line")
		return res, nil
	case OutcomeStockOverflow:
		log.WithField("quantity", line.Quantity).Error("restock would overflow stock, skipping line")
		return res, nil
	}

	if r.opts.Mode == RestockIncrement {
		committer.Batch().IncrementStock(line.ItemID, line.VariantID, line.Size, line.Quantity)
	} else {
		committer.Batch().SetItem(*item)
	}
	committer.Add()
	before := committer.Commits()
	if err := committer.Stage(ctx); err != nil {
		return res, err
	}
	track(before)
	return res, nil
}

// Restock adds qty to the named size of item in place. Applying it twice
// adds twice; there is no deduplication. A sum that does not fit in an int
// leaves the stock untouched.
func Restock(item *models.Item, variantID, size string, qty int) Outcome {
	v := item.FindVariant(variantID)
	if v == nil {
		return OutcomeVariantMissing
	}
	sz := v.FindSize(size)
	if sz == nil {
		return OutcomeSizeMissing
	}
	if qty > 0 && sz.Stock > math.MaxInt-qty {
		return OutcomeStockOverflow
	}
	sz.Stock += qty
	return OutcomeRestocked
}

func (r *Reconciler) cleanupLog(order models.Order, now time.Time) models.CleanupLog {
	return models.CleanupLog{
		Context:    models.CleanupContext,
		EntityType: models.CleanupEntityType,
		RefID:      order.ID,
		UserID:     order.UserID,
		Total:      utils.AuditTotal(order),
		Reason:     cleanupReason(r.opts.Grace),
		Metadata: models.CleanupMetadata{
			PaymentMethod: order.PaymentMethod,
			Items:         order.Items,
			CreatedAt:     order.CreatedAt,
		},
		DeletedAt: now,
		Timestamp: now,
	}
}

func cleanupReason(grace time.Duration) string {
	if grace == config.DefaultRestockGrace {
		return models.CleanupReason
	}
	return fmt.Sprintf("Payment failed for more than %g hours", grace.Hours())
}
