package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/notify"
	"marketplace-settlement/internal/observability/metrics"
	"marketplace-settlement/internal/payout"
	"marketplace-settlement/internal/runlock"
	settlement "marketplace-settlement/internal/settlement/domain"
)

// Dispatcher submits payouts to the provider and reads their status.
type Dispatcher interface {
	Dispatch(ctx context.Context, req payout.Request) (payout.Result, error)
	Status(ctx context.Context, providerPayoutID string) (payout.Result, error)
}

// RunLocker serializes runs for the same month.
type RunLocker interface {
	TryLock(ctx context.Context, key string) (runlock.Unlock, bool, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Option configures the settlement service.
type Option func(*SettlementService)

// WithLocation sets the settlement time zone.
func WithLocation(loc *time.Location) Option {
	return func(s *SettlementService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithRunLocker sets the month run lock.
func WithRunLocker(locker RunLocker) Option {
	return func(s *SettlementService) {
		if locker != nil {
			s.locker = locker
		}
	}
}

// WithPublisher sets the batch event publisher.
func WithPublisher(publisher BatchEventPublisher) Option {
	return func(s *SettlementService) {
		s.publisher = publisher
	}
}

// WithNotifier sets the operator notifier for runs with failures.
func WithNotifier(notifier notify.Notifier) Option {
	return func(s *SettlementService) {
		s.notifier = notifier
	}
}

// WithClock overrides the clock.
func WithClock(clock Clock) Option {
	return func(s *SettlementService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator overrides batch and transaction id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *SettlementService) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *SettlementService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// SettlementService runs monthly seller settlement and serves its read side.
type SettlementService struct {
	ledger       settlement.OrderLedger
	batches      settlement.BatchRepository
	transactions settlement.TransactionRepository
	sellers      settlement.SellerDirectory
	dispatcher   Dispatcher

	engine    *AggregationEngine
	loc       *time.Location
	locker    RunLocker
	publisher BatchEventPublisher
	notifier  notify.Notifier
	clock     Clock
	newID     func() string
	logger    *slog.Logger
}

// NewSettlementService constructs the service.
func NewSettlementService(
	ledger settlement.OrderLedger,
	batches settlement.BatchRepository,
	transactions settlement.TransactionRepository,
	sellers settlement.SellerDirectory,
	dispatcher Dispatcher,
	opts ...Option,
) (*SettlementService, error) {
	if ledger == nil {
		return nil, errors.New("settlement service: nil ledger")
	}
	if batches == nil {
		return nil, errors.New("settlement service: nil batch repository")
	}
	if transactions == nil {
		return nil, errors.New("settlement service: nil transaction repository")
	}
	if sellers == nil {
		return nil, errors.New("settlement service: nil seller directory")
	}
	if dispatcher == nil {
		return nil, errors.New("settlement service: nil dispatcher")
	}

	s := &SettlementService{
		ledger:       ledger,
		batches:      batches,
		transactions: transactions,
		sellers:      sellers,
		dispatcher:   dispatcher,
		loc:          time.Local,
		locker:       runlock.NewLocalLocker(),
		clock:        SystemClock{},
		newID:        uuid.NewString,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	engine, err := NewAggregationEngine(ledger, s.loc)
	if err != nil {
		return nil, err
	}
	s.engine = engine
	return s, nil
}

// Report is the read-only monthly view of unsettled earnings.
type Report struct {
	Month   string                        `json:"month"`
	Sellers []settlement.SellerSettlement `json:"sellers"`
}

// MonthlyReport exposes the aggregation for month without side effects.
func (s *SettlementService) MonthlyReport(ctx context.Context, month string) (report Report, err error) {
	start := time.Now()
	defer func() {
		result := metrics.ResultSuccess
		if err != nil {
			result = metrics.ResultError
		}
		metrics.ObserveReport(result, time.Since(start))
	}()

	m, err := settlement.ParseMonth(month)
	if err != nil {
		return Report{}, err
	}
	rows, err := s.engine.Aggregate(ctx, m)
	if err != nil {
		return Report{}, err
	}
	return Report{Month: m.String(), Sellers: rows}, nil
}

// Settle runs settlement for month. Per-seller failures are reported as
// outcomes; only input, lock and ledger read errors fail the run.
func (s *SettlementService) Settle(ctx context.Context, month string) (result RunResult, err error) {
	start := time.Now()
	defer func() {
		status := metrics.ResultSuccess
		if err != nil {
			status = metrics.ResultError
		}
		metrics.ObserveRun(status, time.Since(start))
	}()

	m, err := settlement.ParseMonth(month)
	if err != nil {
		return RunResult{}, err
	}

	unlock, ok, err := s.locker.TryLock(ctx, "settlement:run:"+m.String())
	if err != nil {
		return RunResult{}, fmt.Errorf("settlement: acquire run lock: %w", err)
	}
	if !ok {
		return RunResult{}, settlement.ErrRunInProgress
	}
	defer unlock(context.WithoutCancel(ctx))

	rows, err := s.engine.Aggregate(ctx, m)
	if err != nil {
		return RunResult{}, err
	}
	result = RunResult{Success: true, Month: m.String(), Batches: []Outcome{}}
	if len(rows) == 0 {
		result.Message = "nothing to settle for " + m.String()
		s.logger.Info("settlement run empty", "month", m.String())
		return result, nil
	}

	// Once payouts start the run completes even if the caller goes away;
	// the payout client timeout bounds each provider call.
	runCtx := context.WithoutCancel(ctx)
	for _, row := range rows {
		outcome := s.settleSeller(runCtx, m, row)
		metrics.IncSellerOutcome(outcome.Result)
		s.logOutcome(m, outcome)
		result.Batches = append(result.Batches, outcome)
	}

	result.Message = summarize(m, result)
	s.notifyFailures(runCtx, m, result)
	return result, nil
}

func (s *SettlementService) settleSeller(ctx context.Context, month settlement.Month, row settlement.SellerSettlement) Outcome {
	seller, err := s.sellers.GetSeller(ctx, row.SellerID)
	if err != nil {
		return errorOutcome(row.SellerID, nil, fmt.Errorf("load seller: %w", err))
	}
	if !seller.HasPayoutAccount() {
		return Outcome{
			SellerID: row.SellerID,
			Status:   settlement.OutcomeSkippedNoBank,
			Result:   ResultSkippedNoBank,
			Note:     settlement.ErrNoPayoutAccount.Error(),
		}
	}

	now := s.clock.Now()
	batch, err := s.batches.FindBySellerMonth(ctx, row.SellerID, month.String())
	if err != nil {
		return errorOutcome(row.SellerID, nil, fmt.Errorf("load batch: %w", err))
	}

	switch {
	case batch == nil:
		batch, err = settlement.NewPayoutBatch(s.newID(), month, row, now)
		if err != nil {
			return errorOutcome(row.SellerID, nil, err)
		}
		if err := s.batches.Create(ctx, batch); err != nil {
			return errorOutcome(row.SellerID, nil, fmt.Errorf("create batch: %w", err))
		}
	case batch.IsDispatched():
		return s.reconcile(ctx, batch, row, now)
	case batch.Status == settlement.BatchStatusFailed:
		if err := batch.Reopen(month, row, now); err != nil {
			return errorOutcome(row.SellerID, batch, err)
		}
		if err := s.batches.Update(ctx, batch); err != nil {
			return errorOutcome(row.SellerID, batch, fmt.Errorf("reopen batch: %w", err))
		}
	case batch.Status == settlement.BatchStatusProcessing:
		// A previous run stopped before recording the provider reply. The
		// same idempotency key makes the provider return that payout.
	default:
		return errorOutcome(row.SellerID, batch, fmt.Errorf("%w: batch in %s", settlement.ErrInvalidTransition, batch.Status))
	}

	return s.dispatch(ctx, month, seller, batch, row, now)
}

func (s *SettlementService) dispatch(ctx context.Context, month settlement.Month, seller *settlement.Seller, batch *settlement.PayoutBatch, row settlement.SellerSettlement, now time.Time) Outcome {
	res, dispatchErr := s.dispatcher.Dispatch(ctx, payout.Request{
		SellerID:        batch.SellerID,
		PayoutAccountID: seller.PayoutAccountID,
		Amount:          batch.NetPayout,
		BatchID:         batch.ID,
		Month:           batch.Month,
		IdempotencyKey:  batch.IdempotencyKey,
	})

	tx := settlement.NewTransactionFromBatch(s.newID(), batch, now)
	tx.AmountMinor = res.AmountMinor
	tx.ProviderResponse = res.Raw
	tx.ProviderPayoutID = res.ProviderPayoutID

	if dispatchErr != nil {
		tx.Status = settlement.TransactionStatusFailed
		tx.ErrorMessage = dispatchErr.Error()
		var persistErr error
		if err := s.transactions.Append(ctx, tx); err != nil {
			persistErr = fmt.Errorf("append transaction: %w", err)
		}
		if err := batch.MarkFailed(dispatchErr.Error(), now); err != nil {
			return errorOutcome(batch.SellerID, batch, err)
		}
		if payout.Definitive(dispatchErr) {
			if err := batch.RotateIdempotencyKey(month); err != nil {
				return errorOutcome(batch.SellerID, batch, err)
			}
		}
		if err := s.batches.Update(ctx, batch); err != nil {
			return errorOutcome(batch.SellerID, batch, fmt.Errorf("update batch: %w", err))
		}
		s.publishFinalized(ctx, batch, now)
		if persistErr != nil {
			return errorOutcome(batch.SellerID, batch, persistErr)
		}
		return Outcome{
			SellerID: batch.SellerID,
			Status:   string(batch.Status),
			Result:   ResultFailed,
			Note:     dispatchErr.Error(),
			Batch:    batch.Clone(),
		}
	}

	tx.Status = res.ProviderStatus
	var notes []string
	if err := s.transactions.Append(ctx, tx); err != nil {
		// The payout exists at the provider; keep going so the items are not paid twice.
		notes = append(notes, "transaction log write failed: "+err.Error())
	}

	// Record the provider id before touching items so a crash here is
	// reconciled instead of re-dispatched.
	if err := batch.MarkDispatched(res.Status, res.ProviderPayoutID, now); err != nil {
		return errorOutcome(batch.SellerID, batch, err)
	}
	if err := s.batches.Update(ctx, batch); err != nil {
		return errorOutcome(batch.SellerID, batch, fmt.Errorf("update batch: %w", err))
	}
	if _, err := s.ledger.MarkItemsSettled(ctx, batch.OrderItemIDs, now); err != nil {
		return errorOutcome(batch.SellerID, batch, fmt.Errorf("mark items settled: %w", err))
	}
	s.publishFinalized(ctx, batch, now)

	outcome := Outcome{
		SellerID:         batch.SellerID,
		Status:           string(batch.Status),
		Result:           ResultDispatched,
		OutstandingItems: outstanding(batch, row),
		Batch:            batch.Clone(),
	}
	if len(notes) > 0 {
		outcome.Note = notes[0]
	}
	return outcome
}

// reconcile settles the captured items of a batch the provider already
// accepted. It never dispatches again.
func (s *SettlementService) reconcile(ctx context.Context, batch *settlement.PayoutBatch, row settlement.SellerSettlement, now time.Time) Outcome {
	marked, err := s.ledger.MarkItemsSettled(ctx, batch.OrderItemIDs, now)
	if err != nil {
		return errorOutcome(batch.SellerID, batch, fmt.Errorf("mark items settled: %w", err))
	}
	left := outstanding(batch, row)
	note := fmt.Sprintf("batch already dispatched; %d captured items reconciled", marked)
	if left > 0 {
		note += fmt.Sprintf(", %d items outside the batch remain unsettled", left)
	}
	return Outcome{
		SellerID:         batch.SellerID,
		Status:           string(batch.Status),
		Result:           ResultAlreadyDispatched,
		Note:             note,
		OutstandingItems: left,
		Batch:            batch.Clone(),
	}
}

// SellerTotals sums a seller's batches, excluding failed ones.
type SellerTotals struct {
	GrossSales decimal.Decimal `json:"grossSales"`
	Commission decimal.Decimal `json:"commission"`
	NetPayout  decimal.Decimal `json:"netPayout"`
	Paid       decimal.Decimal `json:"paid"`
}

// SellerHistory lists a seller's batches with totals.
type SellerHistory struct {
	SellerID string                   `json:"sellerId"`
	Month    string                   `json:"month,omitempty"`
	Batches  []settlement.PayoutBatch `json:"batches"`
	Totals   SellerTotals             `json:"totals"`
}

// SellerHistory returns batches for a seller, optionally limited to one month.
func (s *SettlementService) SellerHistory(ctx context.Context, sellerID, month string) (SellerHistory, error) {
	if sellerID == "" {
		return SellerHistory{}, settlement.ErrEmptySellerID
	}
	if month != "" {
		m, err := settlement.ParseMonth(month)
		if err != nil {
			return SellerHistory{}, err
		}
		month = m.String()
	}
	batches, err := s.batches.ListBySeller(ctx, sellerID, month)
	if err != nil {
		return SellerHistory{}, err
	}
	if batches == nil {
		batches = []settlement.PayoutBatch{}
	}
	totals := SellerTotals{GrossSales: decimal.Zero, Commission: decimal.Zero, NetPayout: decimal.Zero, Paid: decimal.Zero}
	for _, b := range batches {
		if b.Status == settlement.BatchStatusFailed {
			continue
		}
		totals.GrossSales = totals.GrossSales.Add(b.GrossSales)
		totals.Commission = totals.Commission.Add(b.Commission)
		totals.NetPayout = totals.NetPayout.Add(b.NetPayout)
		if b.Status == settlement.BatchStatusPaid {
			totals.Paid = totals.Paid.Add(b.NetPayout)
		}
	}
	return SellerHistory{SellerID: sellerID, Month: month, Batches: batches, Totals: totals}, nil
}

// BatchDetail is a batch with its transaction log.
type BatchDetail struct {
	Batch        *settlement.PayoutBatch        `json:"batch"`
	Transactions []settlement.PayoutTransaction `json:"transactions"`
}

// Batch loads a batch and its transactions.
func (s *SettlementService) Batch(ctx context.Context, batchID string) (BatchDetail, error) {
	if batchID == "" {
		return BatchDetail{}, settlement.ErrEmptyBatchID
	}
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return BatchDetail{}, err
	}
	if batch == nil {
		return BatchDetail{}, settlement.ErrBatchNotFound
	}
	txs, err := s.transactions.ListByBatch(ctx, batchID)
	if err != nil {
		return BatchDetail{}, err
	}
	if txs == nil {
		txs = []settlement.PayoutTransaction{}
	}
	return BatchDetail{Batch: batch, Transactions: txs}, nil
}

// RefreshBatch polls the provider for a batch still awaiting a final state.
// Items stay settled even when the provider later fails the payout; the
// failed transaction is the record for manual follow-up.
func (s *SettlementService) RefreshBatch(ctx context.Context, batchID string) (*settlement.PayoutBatch, error) {
	if batchID == "" {
		return nil, settlement.ErrEmptyBatchID
	}
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, settlement.ErrBatchNotFound
	}
	if !batch.AwaitingProvider() {
		return nil, fmt.Errorf("%w: batch %s is %s", settlement.ErrInvalidTransition, batch.ID, batch.Status)
	}

	res, err := s.dispatcher.Status(ctx, batch.ProviderPayoutID)
	if err != nil {
		return nil, fmt.Errorf("settlement: refresh %s: %w", batch.ID, err)
	}

	now := s.clock.Now()
	previous := batch.Status
	tx := settlement.NewTransactionFromBatch(s.newID(), batch, now)
	tx.AmountMinor = res.AmountMinor
	tx.ProviderPayoutID = batch.ProviderPayoutID
	tx.ProviderResponse = res.Raw
	tx.Status = res.ProviderStatus

	if res.Status == settlement.BatchStatusFailed {
		reason := res.FailureReason
		if reason == "" {
			reason = "provider reported " + res.ProviderStatus
		}
		tx.Status = settlement.TransactionStatusFailed
		tx.ErrorMessage = reason
		if err := batch.MarkFailed(reason, now); err != nil {
			return nil, err
		}
	} else if res.Status != previous {
		if err := batch.ApplyProviderStatus(res.Status, now); err != nil {
			return nil, err
		}
	}

	if err := s.transactions.Append(ctx, tx); err != nil {
		return nil, fmt.Errorf("settlement: append transaction: %w", err)
	}
	if batch.Status != previous {
		if err := s.batches.Update(ctx, batch); err != nil {
			return nil, fmt.Errorf("settlement: update batch: %w", err)
		}
		s.publishFinalized(ctx, batch, now)
	}
	metrics.IncRefresh(string(batch.Status))
	s.logger.Info("payout batch refreshed",
		"batch_id", batch.ID,
		"seller_id", batch.SellerID,
		"month", batch.Month,
		"from", string(previous),
		"status", string(batch.Status),
	)
	return batch.Clone(), nil
}

func (s *SettlementService) publishFinalized(ctx context.Context, batch *settlement.PayoutBatch, now time.Time) {
	if s.publisher == nil {
		return
	}
	event := PayoutBatchFinalized{
		BatchID:          batch.ID,
		SellerID:         batch.SellerID,
		Month:            batch.Month,
		Status:           string(batch.Status),
		NetPayout:        batch.NetPayout,
		ProviderPayoutID: batch.ProviderPayoutID,
		Attempts:         batch.Attempts,
		FailureReason:    batch.FailureReason,
		OccurredAt:       now,
	}
	if err := s.publisher.PublishBatchFinalized(ctx, event); err != nil {
		s.logger.Error("publish batch event failed", "batch_id", batch.ID, "error", err)
	}
}

func (s *SettlementService) notifyFailures(ctx context.Context, month settlement.Month, result RunResult) {
	if s.notifier == nil {
		return
	}
	alert := notify.RunAlert{Month: month.String()}
	for _, o := range result.Batches {
		switch o.Result {
		case ResultFailed, ResultError:
			failure := notify.SellerFailure{SellerID: o.SellerID, Reason: o.Note}
			if o.Batch != nil {
				failure.BatchID = o.Batch.ID
			}
			alert.Failed = append(alert.Failed, failure)
		case ResultSkippedNoBank:
			alert.Skipped = append(alert.Skipped, o.SellerID)
		case ResultDispatched, ResultAlreadyDispatched:
			alert.Settled++
		}
	}
	if len(alert.Failed) == 0 {
		return
	}
	alert.RecommendedAction = "fix the failures and re-run settlement for " + month.String()
	if err := s.notifier.Notify(ctx, alert); err != nil {
		s.logger.Error("settlement notify failed", "month", month.String(), "error", err)
	}
}

func (s *SettlementService) logOutcome(month settlement.Month, o Outcome) {
	attrs := []any{"month", month.String(), "seller_id", o.SellerID, "status", o.Status, "result", o.Result}
	if o.Batch != nil {
		attrs = append(attrs, "batch_id", o.Batch.ID, "net_payout", o.Batch.NetPayout.String())
	}
	if o.Note != "" {
		attrs = append(attrs, "note", o.Note)
	}
	switch o.Result {
	case ResultFailed, ResultError:
		s.logger.Warn("seller settlement", attrs...)
	default:
		s.logger.Info("seller settlement", attrs...)
	}
}

func errorOutcome(sellerID string, batch *settlement.PayoutBatch, err error) Outcome {
	return Outcome{
		SellerID: sellerID,
		Status:   ResultError,
		Result:   ResultError,
		Note:     err.Error(),
		Batch:    batch.Clone(),
	}
}

func outstanding(batch *settlement.PayoutBatch, row settlement.SellerSettlement) int {
	captured := make(map[string]struct{}, len(batch.OrderItemIDs))
	for _, id := range batch.OrderItemIDs {
		captured[id] = struct{}{}
	}
	count := 0
	for _, id := range row.ItemIDs {
		if _, ok := captured[id]; !ok {
			count++
		}
	}
	return count
}

func summarize(month settlement.Month, result RunResult) string {
	counts := result.Counts()
	settled := counts[ResultDispatched] + counts[ResultAlreadyDispatched]
	return fmt.Sprintf("settlement for %s: %d of %d sellers settled, %d failed, %d skipped without payout account",
		month.String(), settled, len(result.Batches), counts[ResultFailed]+counts[ResultError], counts[ResultSkippedNoBank])
}
