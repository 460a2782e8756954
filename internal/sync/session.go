package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"taproot-sync/internal/gateway"
	"taproot-sync/internal/observability/metrics"
	"taproot-sync/internal/sync/connection"
	"taproot-sync/internal/sync/dispatch"
	"taproot-sync/internal/sync/reconcile"
	"taproot-sync/internal/view"
	"taproot-sync/internal/wallet/domain"
)

// Gateway is the remote wallet backend surface the session consumes.
type Gateway interface {
	FetchAssets(ctx context.Context) ([]domain.Asset, error)
	FetchInvoices(ctx context.Context) ([]domain.Invoice, error)
	FetchPayments(ctx context.Context) ([]domain.Payment, error)
	CreateInvoice(ctx context.Context, req gateway.InvoiceRequest) (domain.Invoice, error)
	PayInvoice(ctx context.Context, req gateway.PaymentRequest) (domain.Payment, error)
}

// TransitionCallback observes every transition after its effects dispatched.
type TransitionCallback func(domain.Transition)

type refreshFunc func(ctx context.Context) error

func (f refreshFunc) RefreshBalances(ctx context.Context) error { return f(ctx) }

// Session is one user's synchronization session: the facade the UI layer
// talks to. A session is torn down explicitly with Stop and not reused.
type Session struct {
	gateway    Gateway
	engine     *reconcile.Engine
	manager    *connection.Manager
	dispatcher *dispatch.Dispatcher
	logger     *log.Logger
	pageSize   int

	// mu serializes reconciliation passes so inputs are processed in
	// arrival order, never interleaved mid-merge.
	mu        sync.Mutex
	callbacks []TransitionCallback

	startMu  sync.Mutex
	started  bool
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewSession wires a session from its collaborators.
func NewSession(gw Gateway, transport gateway.Transport, notifier dispatch.Notifier, cfg Config, logger *log.Logger) (*Session, error) {
	if gw == nil {
		return nil, errors.New("sync: nil gateway")
	}
	if transport == nil {
		return nil, errors.New("sync: nil transport")
	}
	if notifier == nil {
		notifier = dispatch.NewMultiNotifier()
	}
	if logger == nil {
		logger = log.Default()
	}

	s := &Session{
		gateway:  gw,
		engine:   reconcile.NewEngine(logger),
		logger:   logger,
		pageSize: cfg.PageSize,
	}

	dispatcher, err := dispatch.NewDispatcher(
		notifier,
		refreshFunc(s.RefreshBalances),
		s.engine,
		dispatch.NewDialogRegistry(),
		logger,
	)
	if err != nil {
		return nil, err
	}
	s.dispatcher = dispatcher

	manager, err := connection.NewManager(
		transport,
		s.handleEnvelope,
		s.pollNow,
		logger,
		connection.WithReconnectDelay(cfg.ReconnectDelay),
		connection.WithMaxReconnectAttempts(cfg.MaxReconnectAttempts),
		connection.WithPollInterval(cfg.PollInterval),
	)
	if err != nil {
		return nil, err
	}
	s.manager = manager
	return s, nil
}

// Start loads the initial snapshots and opens the push subscriptions.
// Initial fetch failures are logged, not fatal: polling and push recover.
func (s *Session) Start(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("sync: empty user id")
	}
	s.startMu.Lock()
	if s.started {
		s.startMu.Unlock()
		return errors.New("sync: session already started")
	}
	s.started = true
	sessionCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.startMu.Unlock()

	if err := s.refreshAll(sessionCtx); err != nil {
		s.logger.Printf("sync: initial fetch incomplete: %v", err)
	}
	return s.manager.Start(sessionCtx, userID)
}

// Stop tears the session down. Idempotent.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.manager.Shutdown()
		s.startMu.Lock()
		cancel := s.cancel
		s.startMu.Unlock()
		if cancel != nil {
			cancel()
		}
	})
}

// OnTransition registers a callback fired for every transition after its
// side effects were dispatched.
func (s *Session) OnTransition(fn TransitionCallback) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.callbacks = append(s.callbacks, fn)
	s.mu.Unlock()
}

// SyncStatus reports the aggregated connection state.
func (s *Session) SyncStatus() connection.SyncStatus {
	return s.manager.Status()
}

// Assets returns the current asset snapshot.
func (s *Session) Assets() []domain.Asset {
	return s.engine.Assets()
}

// Transactions derives the filtered, paginated transaction view.
func (s *Session) Transactions(filter view.Filter) view.Page {
	if filter.PageSize <= 0 {
		filter.PageSize = s.pageSize
	}
	return view.Build(s.engine.Invoices(), s.engine.Payments(), filter, time.Now())
}

// Dialogs exposes the created-invoice dialog registry to the UI layer.
func (s *Session) Dialogs() *dispatch.DialogRegistry {
	return s.dispatcher.Dialogs()
}

// CreateInvoice submits an invoice to the backend, merges it locally and
// registers the created-invoice dialog, so a paid push can auto-close it.
func (s *Session) CreateInvoice(ctx context.Context, req gateway.InvoiceRequest) (domain.Invoice, error) {
	invoice, err := s.gateway.CreateInvoice(ctx, req)
	if err != nil {
		return domain.Invoice{}, err
	}
	s.applyInvoices(ctx, []domain.Invoice{invoice})
	s.dispatcher.Dialogs().Open(dispatch.InvoiceDialog{
		InvoiceID:   invoice.ID,
		PaymentHash: invoice.PaymentHash,
	})
	return invoice, nil
}

// PayInvoice submits a payment to the backend and merges the result, which
// dispatches the usual completion effects.
func (s *Session) PayInvoice(ctx context.Context, req gateway.PaymentRequest) (domain.Payment, error) {
	payment, err := s.gateway.PayInvoice(ctx, req)
	if err != nil {
		return domain.Payment{}, err
	}
	s.applyPayments(ctx, []domain.Payment{payment})
	return payment, nil
}

// RefreshBalances re-fetches the asset snapshot. A failed fetch leaves the
// prior snapshot intact.
func (s *Session) RefreshBalances(ctx context.Context) error {
	assets, err := s.gateway.FetchAssets(ctx)
	if err != nil {
		return err
	}
	s.engine.ApplyAssetSnapshot(assets)
	return nil
}

// handleEnvelope is the single entry point for push messages. The payload of
// an update envelope may be a single entity or a list; both merge the same
// way. Errors in one topic's processing never abort another's.
func (s *Session) handleEnvelope(topic gateway.Topic, env gateway.Envelope) {
	ctx := context.Background()
	switch env.Type {
	case gateway.TypeInvoiceUpdate:
		invoices, err := decodeOneOrMany[domain.Invoice](env.Data)
		if err != nil {
			s.logger.Printf("sync: malformed %s payload on %s: %v", env.Type, topic, err)
			metrics.IncDropped("malformed_payload")
			return
		}
		s.applyInvoices(ctx, invoices)
	case gateway.TypePaymentUpdate:
		payments, err := decodeOneOrMany[domain.Payment](env.Data)
		if err != nil {
			s.logger.Printf("sync: malformed %s payload on %s: %v", env.Type, topic, err)
			metrics.IncDropped("malformed_payload")
			return
		}
		s.applyPayments(ctx, payments)
	case gateway.TypeAssetsUpdate:
		var assets []domain.Asset
		if err := json.Unmarshal(env.Data, &assets); err != nil {
			s.logger.Printf("sync: malformed %s payload on %s: %v", env.Type, topic, err)
			metrics.IncDropped("malformed_payload")
			return
		}
		s.engine.ApplyAssetSnapshot(assets)
	default:
		s.logger.Printf("sync: ignoring unknown envelope type %q on %s", env.Type, topic)
	}
}

// pollNow re-fetches everything; invoked by the connection manager while in
// fallback polling.
func (s *Session) pollNow() {
	started := time.Now()
	err := s.refreshAll(context.Background())
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
		s.logger.Printf("sync: poll cycle incomplete: %v", err)
	}
	metrics.ObservePoll(result, time.Since(started))
}

func (s *Session) refreshAll(ctx context.Context) error {
	var firstErr error
	if err := s.RefreshBalances(ctx); err != nil {
		firstErr = err
	}
	if invoices, err := s.gateway.FetchInvoices(ctx); err != nil {
		if firstErr == nil {
			firstErr = err
		}
	} else {
		s.applyInvoices(ctx, invoices)
	}
	if payments, err := s.gateway.FetchPayments(ctx); err != nil {
		if firstErr == nil {
			firstErr = err
		}
	} else {
		s.applyPayments(ctx, payments)
	}
	return firstErr
}

func (s *Session) applyInvoices(ctx context.Context, invoices []domain.Invoice) {
	s.mu.Lock()
	transitions := s.engine.ApplyInvoices(invoices)
	callbacks := s.finishPass(ctx, transitions)
	s.mu.Unlock()
	fireCallbacks(callbacks, transitions)
}

func (s *Session) applyPayments(ctx context.Context, payments []domain.Payment) {
	s.mu.Lock()
	transitions := s.engine.ApplyPayments(payments)
	callbacks := s.finishPass(ctx, transitions)
	s.mu.Unlock()
	fireCallbacks(callbacks, transitions)
}

// decodeOneOrMany accepts either a JSON object or a JSON array of objects.
// The backend pushes single records, the poll endpoints return lists.
func decodeOneOrMany[T any](raw json.RawMessage) ([]T, error) {
	trimmed := bytes.TrimLeft(raw, " \t\n\r")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var many []T
		if err := json.Unmarshal(raw, &many); err != nil {
			return nil, err
		}
		return many, nil
	}
	var one T
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []T{one}, nil
}

// finishPass dispatches effects for one reconciliation pass while the session
// mutex is held and returns the callbacks to fire once it is released. When
// the coalesced balance refresh fails, completed payments are applied as
// optimistic estimates until the next successful fetch.
func (s *Session) finishPass(ctx context.Context, transitions []domain.Transition) []TransitionCallback {
	if len(transitions) == 0 {
		return nil
	}
	if err := s.dispatcher.Dispatch(ctx, transitions); err != nil {
		for _, tr := range transitions {
			if tr.EntityKind == domain.EntityPayment &&
				tr.NewStatus == string(domain.PaymentStatusCompleted) &&
				tr.Payment != nil {
				s.engine.ApplyAssetSnapshot(dispatch.EstimateBalances(s.engine.Assets(), *tr.Payment))
			}
		}
	}
	return append([]TransitionCallback(nil), s.callbacks...)
}

func fireCallbacks(callbacks []TransitionCallback, transitions []domain.Transition) {
	for _, tr := range transitions {
		for _, fn := range callbacks {
			fn(tr)
		}
	}
}
