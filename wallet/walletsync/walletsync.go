// Package walletsync keeps a walletstate.Store up to date with the daemon.
//
// It polls the REST api on a timer and, when a realtime url is configured,
// listens on the realtime socket for hints that something changed. Every
// store mutation happens on one goroutine, the orchestrator's event loop,
// while network requests run on their own goroutines and post their results
// back to the loop.
package walletsync

import (
	"context"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkt-cash/pldwallet/btcutil/er"
	"github.com/pkt-cash/pldwallet/btcutil/event"
	"github.com/pkt-cash/pldwallet/pldclient"
	"github.com/pkt-cash/pldwallet/pktlog/log"
	"github.com/pkt-cash/pldwallet/wallet/walletmodel"
	"github.com/pkt-cash/pldwallet/wallet/walletstate"
	"golang.org/x/sync/semaphore"
)

var Err er.ErrorType = er.NewErrorType("walletsync.Err")

var (
	ErrDisconnected = Err.CodeWithDetail("ErrDisconnected",
		"no realtime connection to the daemon")
	ErrPoll = Err.CodeWithDetail("ErrPoll",
		"unable to poll the daemon")
	ErrRealtime = Err.CodeWithDetail("ErrRealtime",
		"realtime connection failed")
	ErrBadPush = Err.CodeWithDetail("ErrBadPush",
		"unexpected message on the realtime connection")
)

const (
	DefaultPollInterval        = 300 * time.Millisecond
	DefaultConnectionsInterval = 5 * time.Second
	DefaultMinBackoff          = time.Second
	DefaultMaxBackoff          = time.Minute
)

type Config struct {
	// PollInterval is the time between polls of balances and history.
	PollInterval time.Duration

	// ConnectionsInterval is the time between polls of the connections list,
	// 0 means connections are never polled.
	ConnectionsInterval time.Duration

	// MaxInFlightPolls caps the number of polls which may be outstanding at
	// once, ticks which find the cap reached are skipped. 0 means no cap.
	MaxInFlightPolls int

	// Dial opens the realtime connection, nil disables the realtime side.
	Dial DialFunc

	// ReconnectBackoff makes reconnection attempts wait, doubling the wait
	// from MinBackoff up to MaxBackoff. When false the orchestrator
	// reconnects immediately.
	ReconnectBackoff bool
	MinBackoff       time.Duration
	MaxBackoff       time.Duration

	// Errors and Notifier default to logging.
	Errors   ErrorReporter
	Notifier Notifier
}

type Orchestrator struct {
	cfg   Config
	gw    Gateway
	store *walletstate.Store

	tasks         event.Emitter[func()]
	confirmations event.Emitter[ConfirmationChange]
	sem           *semaphore.Weighted

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	// Owned by the loop goroutine
	loop    *event.Loop
	conn    RealtimeConn
	dialing bool
	backoff backoff
}

// New creates an orchestrator which keeps store in sync with gw. Nothing
// happens until Start is called.
func New(gw Gateway, store *walletstate.Store, cfg Config) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = DefaultMinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = DefaultMaxBackoff
		if cfg.MaxBackoff < cfg.MinBackoff {
			cfg.MaxBackoff = cfg.MinBackoff
		}
	}
	if cfg.Errors == nil {
		cfg.Errors = logReporter{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = logNotifier{}
	}
	o := &Orchestrator{
		cfg:           cfg,
		gw:            gw,
		store:         store,
		tasks:         event.NewEmitter[func()]("walletsync.tasks"),
		confirmations: event.NewEmitter[ConfirmationChange]("walletsync.confirmations"),
		backoff:       newBackoff(cfg.ReconnectBackoff, cfg.MinBackoff, cfg.MaxBackoff),
	}
	if cfg.MaxInFlightPolls > 0 {
		o.sem = semaphore.NewWeighted(int64(cfg.MaxInFlightPolls))
	}
	return o
}

// Confirmations streams every confirmation change, in addition to the
// Notifier. Register with Confirmations().On(loop, f).
func (o *Orchestrator) Confirmations() *event.Emitter[ConfirmationChange] {
	return &o.confirmations
}

// Start begins polling and, if configured, connects the realtime socket.
func (o *Orchestrator) Start(ctx context.Context) {
	o.ctx, o.cancel = context.WithCancel(ctx)
	started := make(chan struct{})
	event.GoWg(&o.wg, func(l *event.Loop) {
		o.loop = l
		o.tasks.On(l, func(f func()) { f() })
		close(started)
	})
	<-started

	o.post(func() {
		o.poll()
		if o.cfg.ConnectionsInterval > 0 {
			o.refreshConnections()
		}
		if o.cfg.Dial != nil {
			o.connect()
		}
	})
	o.every(o.cfg.PollInterval, o.poll)
	if o.cfg.ConnectionsInterval > 0 {
		o.every(o.cfg.ConnectionsInterval, o.refreshConnections)
	}
}

// Stop closes the realtime connection and waits for every goroutine to
// finish. Requests which are in flight are cancelled.
func (o *Orchestrator) Stop() {
	if o.cancel == nil {
		return
	}
	o.stopOnce.Do(func() {
		o.cancel()
		_ = o.tasks.Emit(context.Background(), func() {
			if o.conn != nil {
				if err := o.conn.Close(); err != nil {
					log.Debugf("Closing realtime connection: %s", err.Message())
				}
				o.conn = nil
			}
			if err := o.loop.Quit(); err != nil {
				log.Warnf("Stopping event loop: %s", err.Message())
			}
		})
		o.wg.Wait()
	})
}

// Refresh polls balances and history now, in addition to the timer.
func (o *Orchestrator) Refresh() {
	if o.ctx == nil {
		return
	}
	o.post(o.poll)
}

// post runs f on the loop. It may block if the loop is busy. After Stop, f
// is dropped.
func (o *Orchestrator) post(f func()) {
	err := o.tasks.Emit(o.ctx, func() {
		if o.ctx.Err() != nil {
			return
		}
		f()
	})
	if err != nil && o.ctx.Err() == nil {
		log.Warnf("Unable to post to wallet sync loop: %s", err.Message())
	}
}

// goNet runs f on a new goroutine which Stop waits for.
func (o *Orchestrator) goNet(f func()) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		f()
	}()
}

func (o *Orchestrator) every(interval time.Duration, f func()) {
	o.goNet(func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-o.ctx.Done():
				return
			case <-t.C:
				o.post(f)
			}
		}
	})
}

func (o *Orchestrator) report(err er.R) {
	o.cfg.Errors.ReportError(err)
}

func (o *Orchestrator) setConnectivity(c walletstate.Connectivity) {
	if o.store.Connectivity() != c {
		o.store.SetConnectivity(c)
	}
}

// pollFailed keeps the stale state and marks the link down.
func (o *Orchestrator) pollFailed(what string, err er.R) {
	o.report(ErrPoll.New(what, err))
	o.setConnectivity(walletstate.Disconnected)
}

// pollSucceeded marks the link up when there is no realtime connection to
// decide it.
func (o *Orchestrator) pollSucceeded() {
	if o.cfg.Dial == nil {
		o.setConnectivity(walletstate.Connected)
	}
}

// poll fetches balances then history, overlapping any poll which is still
// in flight unless MaxInFlightPolls is set.
func (o *Orchestrator) poll() {
	if o.sem != nil && !o.sem.TryAcquire(1) {
		log.Debugf("Skipping poll, [%d] already in flight", o.cfg.MaxInFlightPolls)
		return
	}
	o.goNet(func() {
		if o.sem != nil {
			defer o.sem.Release(1)
		}
		b, err := o.gw.Balances(o.ctx)
		o.post(func() { o.applyBalances(b, err) })
		o.fetchHistory()
	})
}

func (o *Orchestrator) refreshBalances() {
	o.goNet(func() {
		b, err := o.gw.Balances(o.ctx)
		o.post(func() { o.applyBalances(b, err) })
	})
}

func (o *Orchestrator) refreshTransactions() {
	o.goNet(o.fetchHistory)
}

// fetchHistory runs on a network goroutine.
func (o *Orchestrator) fetchHistory() {
	txns, herr := o.gw.History(o.ctx)
	o.post(func() { o.applyHistory(txns, herr) })
	rps, rerr := o.gw.ReceivedPayments(o.ctx)
	o.post(func() { o.applyReceived(rps, rerr) })
}

func (o *Orchestrator) refreshConnections() {
	o.goNet(func() {
		conns, err := o.gw.Connections(o.ctx)
		o.post(func() { o.applyConnections(conns, err) })
	})
}

func (o *Orchestrator) applyBalances(b walletmodel.Balances, err er.R) {
	if err != nil {
		o.pollFailed("balances", err)
		return
	}
	log.Tracef("Balances: %v", log.C(func() string { return spew.Sdump(b) }))
	o.store.SetBalances(b)
	o.pollSucceeded()
}

func (o *Orchestrator) applyHistory(txns []walletmodel.Transaction, err er.R) {
	if err != nil {
		o.pollFailed("history", err)
		return
	}
	changes := TransactionChanges(o.store.Transactions(), txns)
	o.store.SetTransactions(txns)
	o.pollSucceeded()
	o.confirmed(changes)
}

func (o *Orchestrator) applyReceived(rps []walletmodel.ReceivedPayment, err er.R) {
	if err != nil {
		o.pollFailed("received payments", err)
		return
	}
	changes := ReceivedPaymentChanges(o.store.ReceivedPayments(), rps)
	o.store.SetReceivedPayments(rps)
	o.confirmed(changes)
}

func (o *Orchestrator) applyConnections(conns []walletmodel.Connection, err er.R) {
	if err != nil {
		o.report(ErrPoll.New("connections", err))
		return
	}
	o.store.SetConnections(conns)
}

// confirmed surfaces changes. Each change also refreshes the balances since
// a confirmation usually moves funds from pending to spendable.
func (o *Orchestrator) confirmed(changes []ConfirmationChange) {
	for _, c := range changes {
		log.Debugf("%s [%s] became %s", c.What(), c.Key, c.Status())
		o.cfg.Notifier.NotifyConfirmation(c)
		if err := o.confirmations.TryEmit(c); err != nil {
			log.Warnf("Confirmation of [%s] not delivered to every listener: %s",
				c.Key, err.Message())
		}
		o.refreshBalances()
	}
}

// connect dials the realtime socket unless a dial is already running. The
// dialing goroutine goes on to read the connection once the loop has it.
func (o *Orchestrator) connect() {
	if o.dialing || o.conn != nil {
		return
	}
	o.dialing = true
	o.goNet(func() {
		conn, err := o.cfg.Dial(o.ctx)
		if err != nil {
			o.post(func() { o.realtimeFailed(err) })
			return
		}
		opened := make(chan struct{}, 1)
		o.post(func() {
			o.realtimeOpened(conn)
			opened <- struct{}{}
		})
		select {
		case <-opened:
		case <-o.ctx.Done():
			_ = conn.Close()
			return
		}
		for {
			msg, err := conn.Read()
			if err != nil {
				o.post(func() { o.realtimeClosed(conn, err) })
				return
			}
			o.post(func() { o.realtimeMessage(msg) })
		}
	})
}

func (o *Orchestrator) reconnect() {
	d := o.backoff.next()
	if d == 0 {
		o.connect()
		return
	}
	log.Debugf("Reconnecting realtime in %v", d)
	o.goNet(func() {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-o.ctx.Done():
		case <-t.C:
			o.post(o.connect)
		}
	})
}

func (o *Orchestrator) realtimeOpened(conn RealtimeConn) {
	o.dialing = false
	o.conn = conn
	o.backoff.reset()
	log.Infof("Realtime connection to the daemon is %sopen%s", log.Bright, log.Reset)
	o.setConnectivity(walletstate.Connected)
	o.refreshBalances()
	o.refreshTransactions()
}

func (o *Orchestrator) realtimeFailed(err er.R) {
	o.dialing = false
	o.report(ErrRealtime.New("dial", err))
	o.setConnectivity(walletstate.Disconnected)
	o.reconnect()
}

func (o *Orchestrator) realtimeClosed(conn RealtimeConn, err er.R) {
	if o.conn != conn {
		return
	}
	o.conn = nil
	_ = conn.Close()
	if pldclient.ErrClosedCleanly.Is(err) {
		log.Infof("Realtime connection closed by the daemon")
	} else {
		o.report(ErrRealtime.New("closed", err))
	}
	o.setConnectivity(walletstate.Disconnected)
	o.reconnect()
}

// realtimeMessage treats every message as a hint to resync. A transaction
// payload is stored right away without confirmation detection, which only
// the polls do.
func (o *Orchestrator) realtimeMessage(msg []byte) {
	wo, err := walletmodel.DecodeWalletObject(msg)
	if err != nil {
		o.report(ErrBadPush.New("", err))
	} else if wo.Transaction != nil {
		log.Tracef("Pushed transaction: %v", log.C(func() string { return spew.Sdump(wo.Transaction) }))
		o.store.UpsertTransaction(wo.Transaction)
	} else if wo.Invoice != nil {
		log.Infof("Daemon created invoice [%s]", wo.Invoice.ID)
	}
	o.refreshBalances()
	o.refreshTransactions()
}

type paymentRequestCommand struct {
	PaymentRequest string `json:"payment_request"`
}

// SendPaymentRequest sends a payment request to the daemon over the realtime
// connection. It fails with ErrDisconnected if no connection is open.
func (o *Orchestrator) SendPaymentRequest(ctx context.Context, pr string) er.R {
	if o.ctx == nil {
		return ErrDisconnected.New("not started", nil)
	}
	res := make(chan er.R, 1)
	o.post(func() {
		if o.conn == nil {
			res <- ErrDisconnected.Default()
			return
		}
		res <- o.conn.Send(paymentRequestCommand{PaymentRequest: pr})
	})
	select {
	case err := <-res:
		return err
	case <-o.ctx.Done():
		return ErrDisconnected.New("stopped", nil)
	case <-ctx.Done():
		return er.E(ctx.Err())
	}
}
