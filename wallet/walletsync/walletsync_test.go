package walletsync_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkt-cash/pldwallet/btcutil/er"
	"github.com/pkt-cash/pldwallet/btcutil/event"
	"github.com/pkt-cash/pldwallet/btcutil/util"
	"github.com/pkt-cash/pldwallet/pldclient"
	"github.com/pkt-cash/pldwallet/pldclient/pldtest"
	"github.com/pkt-cash/pldwallet/wallet/walletmodel"
	"github.com/pkt-cash/pldwallet/wallet/walletstate"
	"github.com/pkt-cash/pldwallet/wallet/walletsync"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 5 * time.Second
	tick    = 5 * time.Millisecond
	never   = time.Hour
)

type harness struct {
	d     *pldtest.Daemon
	store *walletstate.Store
	rec   *recorder
	o     *walletsync.Orchestrator
}

// start runs an orchestrator against a fake daemon. Polls only happen on
// Start and on Refresh unless cfg says otherwise.
func start(t *testing.T, realtime bool, cfg walletsync.Config, setup func(d *pldtest.Daemon)) *harness {
	h := &harness{
		d:     pldtest.New("secret"),
		store: walletstate.New(),
		rec:   newRecorder(),
	}
	t.Cleanup(h.d.Close)
	if setup != nil {
		setup(h.d)
	}
	client, err := pldclient.New(pldclient.Config{DaemonURL: h.d.URL(), RequestTimeout: waitFor})
	util.RequireNoErr(t, err)
	if cfg.PollInterval == 0 {
		cfg.PollInterval = never
	}
	if realtime {
		u, err := pldclient.RealtimeURL(h.d.RealtimeURL(), "secret")
		util.RequireNoErr(t, err)
		cfg.Dial = walletsync.DialURL(u)
	}
	cfg.Errors = h.rec
	cfg.Notifier = h.rec
	h.o = walletsync.New(client, h.store, cfg)
	h.o.Start(context.Background())
	t.Cleanup(h.o.Stop)
	return h
}

func (h *harness) connectivity(c walletstate.Connectivity) func() bool {
	return func() bool { return h.store.Connectivity() == c }
}

func (h *harness) hasTx(id string, confirmed bool) func() bool {
	return func() bool {
		tx, ok := h.store.Transaction(id)
		return ok && tx.IsConfirmed() == confirmed
	}
}

func TestPollAppliesState(t *testing.T) {
	t.Parallel()
	h := start(t, false, walletsync.Config{ConnectionsInterval: 20 * time.Millisecond},
		func(d *pldtest.Daemon) {
			d.SetBalances(walletmodel.Balances{ChainBalance: 100, ChannelBalance: 50})
			d.SetHistory(inv("a", true), walletmodel.BlockchainTransaction{ID: "b", ConfirmationCount: 2})
			d.SetReceivedPayments(walletmodel.ReceivedPayment{Payment: "r1", Amount: 3})
		})
	require.Equal(t, walletstate.Initializing, h.store.Connectivity())

	require.Eventually(t, func() bool {
		b, ok := h.store.Balances()
		return ok && b.Spendable() == 150
	}, waitFor, tick)
	require.Eventually(t, func() bool { return len(h.store.Transactions()) == 2 }, waitFor, tick)
	require.Eventually(t, func() bool { return len(h.store.ReceivedPayments()) == 1 }, waitFor, tick)
	// without a realtime link, a good poll means connected
	require.Eventually(t, h.connectivity(walletstate.Connected), waitFor, tick)

	h.d.SetConnections(walletmodel.Connection{PublicKey: []byte{2}})
	require.Eventually(t, func() bool { return len(h.store.Connections()) == 1 }, waitFor, tick)
	require.Empty(t, h.rec.errors())
	require.Empty(t, h.rec.confirmations())
}

func TestPollTimer(t *testing.T) {
	t.Parallel()
	h := start(t, false, walletsync.Config{PollInterval: 10 * time.Millisecond}, nil)
	require.Eventually(t, func() bool {
		return h.d.Count(http.MethodGet, "history/") >= 3
	}, waitFor, tick)
}

func TestInvoiceConfirmation(t *testing.T) {
	t.Parallel()
	h := start(t, false, walletsync.Config{}, func(d *pldtest.Daemon) {
		d.SetHistory(inv("abc", false))
	})
	got := make(chan walletsync.ConfirmationChange, 4)
	ready := make(chan struct{})
	event.Go(func(l *event.Loop) {
		h.o.Confirmations().On(l, func(c walletsync.ConfirmationChange) { got <- c })
		close(ready)
	})
	<-ready
	t.Cleanup(func() { _ = h.o.Confirmations().Clear() })

	require.Eventually(t, h.hasTx("abc", false), waitFor, tick)
	require.Empty(t, h.rec.confirmations())
	balancePolls := h.d.Count(http.MethodGet, "balance/")

	h.d.SetHistory(walletmodel.Invoice{ID: "abc", Confirmed: true, Tokens: 1000})
	h.o.Refresh()

	require.Eventually(t, func() bool { return h.rec.confirmed("abc") }, waitFor, tick)
	c := h.rec.confirmations()[0]
	require.True(t, c.Transaction.IsConfirmed())
	require.Equal(t, walletmodel.Tokens(1000), c.Transaction.(walletmodel.Invoice).Tokens)
	select {
	case c := <-got:
		require.Equal(t, "abc", c.Key)
	case <-time.After(waitFor):
		require.Fail(t, "no confirmation on the emitter")
	}
	// one balance fetch from the poll, one triggered by the confirmation
	require.Eventually(t, func() bool {
		return h.d.Count(http.MethodGet, "balance/") >= balancePolls+2
	}, waitFor, tick)
	require.Len(t, h.store.Transactions(), 1)
	require.Len(t, h.rec.confirmations(), 1)
}

func TestReceivedPaymentConfirmation(t *testing.T) {
	t.Parallel()
	h := start(t, false, walletsync.Config{}, func(d *pldtest.Daemon) {
		d.SetReceivedPayments(walletmodel.ReceivedPayment{Payment: "r1", Amount: 9})
	})
	require.Eventually(t, func() bool { return len(h.store.ReceivedPayments()) == 1 }, waitFor, tick)

	h.d.SetReceivedPayments(walletmodel.ReceivedPayment{Payment: "r1", Amount: 9, Confirmed: true})
	h.o.Refresh()
	require.Eventually(t, func() bool { return h.rec.confirmed("r1") }, waitFor, tick)
	require.Equal(t, walletmodel.Tokens(9), h.rec.confirmations()[0].ReceivedPayment.Amount)
}

func TestPollFailureKeepsStaleState(t *testing.T) {
	t.Parallel()
	h := start(t, false, walletsync.Config{}, func(d *pldtest.Daemon) {
		d.SetBalances(walletmodel.Balances{ChainBalance: 7})
		d.SetHistory(inv("a", true))
	})
	require.Eventually(t, h.connectivity(walletstate.Connected), waitFor, tick)
	require.Eventually(t, func() bool { return len(h.store.Transactions()) == 1 }, waitFor, tick)

	h.d.Fail(http.MethodGet, "balance/", http.StatusInternalServerError)
	h.d.Fail(http.MethodGet, "history/", http.StatusInternalServerError)
	h.d.SetBalances(walletmodel.Balances{ChainBalance: 99})
	h.o.Refresh()

	require.Eventually(t, h.connectivity(walletstate.Disconnected), waitFor, tick)
	require.Eventually(t, func() bool { return h.rec.hasError(walletsync.ErrPoll) }, waitFor, tick)
	require.True(t, h.rec.hasError(pldclient.ErrHTTPStatus))
	b, ok := h.store.Balances()
	require.True(t, ok)
	require.Equal(t, walletmodel.Tokens(7), b.ChainBalance)
	require.Len(t, h.store.Transactions(), 1)

	h.d.Recover(http.MethodGet, "balance/")
	h.d.Recover(http.MethodGet, "history/")
	h.o.Refresh()
	require.Eventually(t, h.connectivity(walletstate.Connected), waitFor, tick)
	require.Eventually(t, func() bool {
		b, _ := h.store.Balances()
		return b.ChainBalance == 99
	}, waitFor, tick)
}

func TestTransportFailure(t *testing.T) {
	t.Parallel()
	store := walletstate.New()
	store.SetBalances(walletmodel.Balances{ChannelBalance: 100})
	store.SetTransactions([]walletmodel.Transaction{inv("old", true)})
	rec := newRecorder()

	gw := new(mockGateway)
	down := pldclient.ErrTransport.Default()
	gw.On("Balances", mock.Anything).Return(walletmodel.Balances{}, down)
	gw.On("History", mock.Anything).Return([]walletmodel.Transaction(nil), down)
	gw.On("ReceivedPayments", mock.Anything).Return([]walletmodel.ReceivedPayment(nil), down)

	o := walletsync.New(gw, store, walletsync.Config{PollInterval: never, Errors: rec, Notifier: rec})
	o.Start(context.Background())
	defer o.Stop()

	require.Eventually(t, func() bool {
		return store.Connectivity() == walletstate.Disconnected && len(rec.errors()) >= 3
	}, waitFor, tick)
	require.True(t, rec.hasError(pldclient.ErrTransport))
	b, ok := store.Balances()
	require.True(t, ok)
	require.Equal(t, walletmodel.Tokens(100), b.Spendable())
	require.Len(t, store.Transactions(), 1)
	gw.AssertCalled(t, "Balances", mock.Anything)
	gw.AssertNotCalled(t, "Connections", mock.Anything)
}

// A failed history fetch must not be mistaken for an empty history when the
// received payments fetch which follows it succeeds.
func TestHistoryFailureWithReceivedPayments(t *testing.T) {
	t.Parallel()
	store := walletstate.New()
	store.SetTransactions([]walletmodel.Transaction{inv("old", true)})
	store.SetConnectivity(walletstate.Connected)
	rec := newRecorder()

	// Hold the loop in applyBalances until received payments have been
	// fetched, so both results are queued when the loop runs them.
	fetched := make(chan struct{})
	var once sync.Once
	gw := new(mockGateway)
	gw.On("Balances", mock.Anything).Return(walletmodel.Balances{ChainBalance: 1}, nil)
	gw.On("History", mock.Anything).Return([]walletmodel.Transaction(nil), pldclient.ErrTransport.Default())
	gw.On("ReceivedPayments", mock.Anything).
		Run(func(mock.Arguments) { once.Do(func() { close(fetched) }) }).
		Return([]walletmodel.ReceivedPayment{{Payment: "p1", Amount: 5}}, nil)
	hook := store.OnChange(func(c walletstate.Change) {
		if c.Field == walletstate.FieldBalances {
			select {
			case <-fetched:
			case <-time.After(waitFor):
			}
		}
	})
	defer hook.Release()

	o := walletsync.New(gw, store, walletsync.Config{PollInterval: never, Errors: rec, Notifier: rec})
	o.Start(context.Background())
	defer o.Stop()

	require.Eventually(t, func() bool { return len(store.ReceivedPayments()) == 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return rec.hasError(walletsync.ErrPoll) }, waitFor, tick)
	require.True(t, rec.hasError(pldclient.ErrTransport))
	require.Equal(t, walletstate.Disconnected, store.Connectivity())
	require.Len(t, store.Transactions(), 1)
	_, ok := store.Transaction("old")
	require.True(t, ok)
}

func TestRealtimeOpen(t *testing.T) {
	t.Parallel()
	h := start(t, true, walletsync.Config{}, func(d *pldtest.Daemon) {
		d.SetHistory(inv("a", false))
	})
	require.Eventually(t, h.connectivity(walletstate.Connected), waitFor, tick)
	// the initial poll and the refresh on open
	require.Eventually(t, func() bool {
		return h.d.Count(http.MethodGet, "history/") >= 2 &&
			h.d.Count(http.MethodGet, "balance/") >= 2
	}, waitFor, tick)
	require.Equal(t, 1, h.d.RealtimeDials())
	require.Empty(t, h.rec.errors())
}

// With a realtime link the socket owns connectivity, a poll which
// succeeds after a failed one leaves the store disconnected.
func TestRealtimeConnectivityIgnoresPollSuccess(t *testing.T) {
	t.Parallel()
	h := start(t, true, walletsync.Config{}, func(d *pldtest.Daemon) {
		d.SetHistory(inv("a", true))
	})
	require.Eventually(t, h.connectivity(walletstate.Connected), waitFor, tick)
	require.Eventually(t, func() bool { return h.d.RealtimeClients() == 1 }, waitFor, tick)

	h.d.Fail(http.MethodGet, "balance/", http.StatusInternalServerError)
	h.o.Refresh()
	require.Eventually(t, h.connectivity(walletstate.Disconnected), waitFor, tick)

	h.d.Recover(http.MethodGet, "balance/")
	h.d.SetHistory(inv("a", true), inv("b", true))
	h.o.Refresh()
	require.Eventually(t, func() bool { return len(h.store.Transactions()) == 2 }, waitFor, tick)
	require.Equal(t, walletstate.Disconnected, h.store.Connectivity())
	require.Equal(t, 1, h.d.RealtimeDials())
}

func TestRealtimePush(t *testing.T) {
	t.Parallel()
	h := start(t, true, walletsync.Config{}, func(d *pldtest.Daemon) {
		d.SetHistory(inv("abc", false))
	})
	inserted := make(chan string, 4)
	hook := h.store.OnInsert(func(tx walletmodel.Transaction) { inserted <- tx.TxID() })
	defer hook.Release()
	seenConfirmed := make(chan struct{}, 1)
	changed := h.store.OnChange(func(walletstate.Change) {
		if i, ok := h.store.Invoice("abc"); ok && i.Confirmed {
			select {
			case seenConfirmed <- struct{}{}:
			default:
			}
		}
	})
	defer changed.Release()

	require.Eventually(t, h.connectivity(walletstate.Connected), waitFor, tick)
	require.Eventually(t, h.hasTx("abc", false), waitFor, tick)
	require.Eventually(t, func() bool { return h.d.RealtimeClients() == 1 }, waitFor, tick)
	historyPolls := h.d.Count(http.MethodGet, "history/")

	// The pushed record is stored as is. The daemon's history still has the
	// invoice unconfirmed so the resync puts it back, and since only polls
	// detect confirmations nothing is ever reported as confirmed.
	settled := walletmodel.Invoice{ID: "abc", Confirmed: true, Tokens: 1000}
	util.RequireNoErr(t, h.d.Push(walletmodel.WalletObject{Transaction: settled}))
	select {
	case <-seenConfirmed:
	case <-time.After(waitFor):
		require.Fail(t, "pushed transaction was not stored")
	}
	require.Eventually(t, func() bool {
		return h.d.Count(http.MethodGet, "history/") > historyPolls
	}, waitFor, tick)
	require.Eventually(t, h.hasTx("abc", false), waitFor, tick)
	require.False(t, h.rec.confirmed("abc"))
	require.Len(t, h.store.Transactions(), 1)

	// an unknown transaction is inserted
	fresh := walletmodel.BlockchainTransaction{ID: "tx9"}
	h.d.SetHistory(inv("abc", false), fresh)
	util.RequireNoErr(t, h.d.Push(walletmodel.WalletObject{Transaction: fresh}))
	select {
	case id := <-inserted:
		require.Equal(t, "tx9", id)
	case <-time.After(waitFor):
		require.Fail(t, "no insert")
	}

	// invoice pushes only trigger a resync
	util.RequireNoErr(t, h.d.Push(walletmodel.WalletObject{
		Invoice: &walletmodel.CreatedInvoice{ID: "h", PaymentRequest: "lnpk"},
	}))
	require.Eventually(t, func() bool { return len(h.store.Transactions()) == 2 }, waitFor, tick)
}

func TestRealtimeBadPush(t *testing.T) {
	t.Parallel()
	h := start(t, true, walletsync.Config{}, nil)
	require.Eventually(t, func() bool { return h.d.RealtimeClients() == 1 }, waitFor, tick)

	util.RequireNoErr(t, h.d.PushRaw([]byte(`{"something":{}}`)))
	require.Eventually(t, func() bool { return h.rec.hasError(walletsync.ErrBadPush) }, waitFor, tick)
	require.True(t, h.rec.hasError(walletmodel.ErrUnrecognizedType))
	// still connected
	require.Equal(t, walletstate.Connected, h.store.Connectivity())
	require.Equal(t, 1, h.d.RealtimeDials())
}

func TestRealtimeClose(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		code    int
		unclean bool
	}{
		{"normal", websocket.CloseNormalClosure, false},
		{"internal error", websocket.CloseInternalServerErr, true},
		{"cut", -1, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := start(t, true, walletsync.Config{}, nil)
			var transitions []walletstate.Connectivity
			changes := make(chan walletstate.Connectivity, 16)
			hook := h.store.OnChange(func(c walletstate.Change) {
				if c.Field == walletstate.FieldConnectivity {
					changes <- h.store.Connectivity()
				}
			})
			defer hook.Release()
			require.Eventually(t, func() bool { return h.d.RealtimeClients() == 1 }, waitFor, tick)

			h.d.DropRealtime(tt.code)
			// disconnected, then reconnected right away
			require.Eventually(t, func() bool {
				for {
					select {
					case c := <-changes:
						transitions = append(transitions, c)
					default:
						n := len(transitions)
						return n >= 2 && transitions[n-2] == walletstate.Disconnected &&
							transitions[n-1] == walletstate.Connected
					}
				}
			}, waitFor, tick)
			require.Equal(t, 2, h.d.RealtimeDials())
			require.Equal(t, tt.unclean, h.rec.hasError(walletsync.ErrRealtime))
			if tt.unclean {
				require.True(t, h.rec.hasError(pldclient.ErrClosedUncleanly))
			}
		})
	}
}

func TestRealtimeDialFailure(t *testing.T) {
	t.Parallel()
	h := start(t, true, walletsync.Config{
		ReconnectBackoff: true,
		MinBackoff:       10 * time.Millisecond,
		MaxBackoff:       40 * time.Millisecond,
	}, func(d *pldtest.Daemon) {
		d.RejectRealtime(true)
	})
	require.Eventually(t, h.connectivity(walletstate.Disconnected), waitFor, tick)
	require.Eventually(t, func() bool { return h.d.RealtimeDials() >= 3 }, waitFor, tick)
	require.True(t, h.rec.hasError(walletsync.ErrRealtime))
	require.True(t, h.rec.hasError(pldclient.ErrTransport))

	h.d.RejectRealtime(false)
	require.Eventually(t, h.connectivity(walletstate.Connected), waitFor, tick)
}

func TestSendPaymentRequest(t *testing.T) {
	t.Parallel()
	h := start(t, true, walletsync.Config{}, nil)
	require.Eventually(t, h.connectivity(walletstate.Connected), waitFor, tick)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	util.RequireNoErr(t, h.o.SendPaymentRequest(ctx, "lnpk1abc"))
	require.Eventually(t, func() bool { return len(h.d.Commands()) == 1 }, waitFor, tick)
	require.JSONEq(t, `{"payment_request":"lnpk1abc"}`, string(h.d.Commands()[0]))
}

func TestSendPaymentRequestDisconnected(t *testing.T) {
	t.Parallel()
	h := start(t, false, walletsync.Config{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	err := h.o.SendPaymentRequest(ctx, "lnpk1abc")
	util.RequireErrCode(t, err, walletsync.ErrDisconnected)

	h.o.Stop()
	err = h.o.SendPaymentRequest(ctx, "lnpk1abc")
	util.RequireErrCode(t, err, walletsync.ErrDisconnected)
}

func TestMaxInFlightPolls(t *testing.T) {
	t.Parallel()
	gw := newGatedGateway()
	gate := make(chan struct{})
	gw.gates[1] = gate
	o := walletsync.New(gw, walletstate.New(), walletsync.Config{
		PollInterval:     2 * time.Millisecond,
		MaxInFlightPolls: 1,
		Errors:           newRecorder(),
	})
	o.Start(context.Background())
	defer o.Stop()

	require.Eventually(t, func() bool { return gw.state().historyCalls == 1 }, waitFor, tick)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, gw.state().historyCalls)
	require.Equal(t, 1, gw.state().balanceCalls)

	close(gate)
	require.Eventually(t, func() bool { return gw.state().historyCalls > 3 }, waitFor, tick)
	require.Equal(t, 1, gw.state().maxInFlight)
}

func TestOverlappingPolls(t *testing.T) {
	t.Parallel()
	gw := newGatedGateway()
	gate := make(chan struct{})
	gw.gates[1] = gate
	o := walletsync.New(gw, walletstate.New(), walletsync.Config{
		PollInterval: 2 * time.Millisecond,
		Errors:       newRecorder(),
	})
	o.Start(context.Background())
	defer o.Stop()

	require.Eventually(t, func() bool { return gw.state().historyCalls >= 3 }, waitFor, tick)
	require.GreaterOrEqual(t, gw.state().maxInFlight, 2)
	close(gate)
}

func TestOutOfOrderCompletion(t *testing.T) {
	t.Parallel()
	gw := newGatedGateway()
	first, second := make(chan struct{}), make(chan struct{})
	gw.gates[2] = first
	gw.gates[3] = second
	gw.histories[1] = []walletmodel.Transaction{inv("a", false)}
	gw.histories[2] = []walletmodel.Transaction{inv("a", false), inv("b", false)}
	gw.histories[3] = []walletmodel.Transaction{inv("a", true), inv("b", true), inv("c", true)}
	store := walletstate.New()
	rec := newRecorder()
	o := walletsync.New(gw, store, walletsync.Config{PollInterval: never, Errors: rec, Notifier: rec})
	o.Start(context.Background())
	defer o.Stop()

	require.Eventually(t, func() bool { return len(store.Transactions()) == 1 }, waitFor, tick)
	o.Refresh()
	require.Eventually(t, func() bool { return gw.state().historyCalls == 2 }, waitFor, tick)
	o.Refresh()
	require.Eventually(t, func() bool { return gw.state().historyCalls == 3 }, waitFor, tick)

	// the newer request completes first, then the older one overwrites it
	close(second)
	require.Eventually(t, func() bool { return len(store.Transactions()) == 3 }, waitFor, tick)
	close(first)
	require.Eventually(t, func() bool { return len(store.Transactions()) == 2 }, waitFor, tick)

	ids := map[string]int{}
	for _, tx := range store.Transactions() {
		ids[tx.TxID()]++
	}
	require.Equal(t, map[string]int{"a": 1, "b": 1}, ids)
	require.True(t, rec.confirmed("a"))
	require.Empty(t, rec.errors())
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()
	o := walletsync.New(newGatedGateway(), walletstate.New(), walletsync.Config{})
	o.Stop()
	o.Start(context.Background())
	o.Stop()
	o.Stop()
	o.Refresh()
}

func TestErrorReporterFunc(t *testing.T) {
	t.Parallel()
	var got er.R
	walletsync.ErrorReporterFunc(func(err er.R) { got = err }).ReportError(er.New("x"))
	require.Equal(t, "x", got.Message())

	var conf walletsync.ConfirmationChange
	walletsync.NotifierFunc(func(c walletsync.ConfirmationChange) { conf = c }).
		NotifyConfirmation(walletsync.ConfirmationChange{Key: "k"})
	require.Equal(t, "k", conf.Key)
}
