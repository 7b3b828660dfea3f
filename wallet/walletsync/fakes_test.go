package walletsync_test

import (
	"context"

	"github.com/pkt-cash/pldwallet/btcutil/er"
	"github.com/pkt-cash/pldwallet/btcutil/lock"
	"github.com/pkt-cash/pldwallet/wallet/walletmodel"
	"github.com/pkt-cash/pldwallet/wallet/walletsync"
	"github.com/stretchr/testify/mock"
)

type recorded struct {
	errs  []er.R
	confs []walletsync.ConfirmationChange
}

// recorder is both the ErrorReporter and the Notifier.
type recorder struct {
	m lock.GenMutex[recorded]
}

func newRecorder() *recorder {
	return &recorder{m: lock.NewGenMutex(recorded{}, "recorder")}
}

func (r *recorder) ReportError(err er.R) {
	_ = r.m.In(func(rec *recorded) er.R {
		rec.errs = append(rec.errs, err)
		return nil
	})
}

func (r *recorder) NotifyConfirmation(c walletsync.ConfirmationChange) {
	_ = r.m.In(func(rec *recorded) er.R {
		rec.confs = append(rec.confs, c)
		return nil
	})
}

func (r *recorder) errors() []er.R {
	return lock.Get[recorded](&r.m, func(rec *recorded) []er.R {
		return append([]er.R(nil), rec.errs...)
	})
}

func (r *recorder) confirmations() []walletsync.ConfirmationChange {
	return lock.Get[recorded](&r.m, func(rec *recorded) []walletsync.ConfirmationChange {
		return append([]walletsync.ConfirmationChange(nil), rec.confs...)
	})
}

func (r *recorder) hasError(code *er.ErrorCode) bool {
	for _, e := range r.errors() {
		if code.Is(e) {
			return true
		}
	}
	return false
}

func (r *recorder) confirmed(key string) bool {
	for _, c := range r.confirmations() {
		if c.Key == key && c.Confirmed {
			return true
		}
	}
	return false
}

type mockGateway struct {
	mock.Mock
}

var _ walletsync.Gateway = (*mockGateway)(nil)

func errArg(args mock.Arguments, i int) er.R {
	if e := args.Get(i); e != nil {
		return e.(er.R)
	}
	return nil
}

func (m *mockGateway) Balances(ctx context.Context) (walletmodel.Balances, er.R) {
	args := m.Called(ctx)
	return args.Get(0).(walletmodel.Balances), errArg(args, 1)
}

func (m *mockGateway) History(ctx context.Context) ([]walletmodel.Transaction, er.R) {
	args := m.Called(ctx)
	return args.Get(0).([]walletmodel.Transaction), errArg(args, 1)
}

func (m *mockGateway) ReceivedPayments(ctx context.Context) ([]walletmodel.ReceivedPayment, er.R) {
	args := m.Called(ctx)
	return args.Get(0).([]walletmodel.ReceivedPayment), errArg(args, 1)
}

func (m *mockGateway) Connections(ctx context.Context) ([]walletmodel.Connection, er.R) {
	args := m.Called(ctx)
	return args.Get(0).([]walletmodel.Connection), errArg(args, 1)
}

type gatedState struct {
	historyCalls int
	balanceCalls int
	inFlight     int
	maxInFlight  int
}

// gatedGateway holds each History call until its gate is opened, call n
// (counting from 1) waits on gates[n] and returns histories[n]. Calls
// without a gate return at once.
type gatedGateway struct {
	st        lock.GenMutex[gatedState]
	gates     map[int]chan struct{}
	histories map[int][]walletmodel.Transaction
}

func newGatedGateway() *gatedGateway {
	return &gatedGateway{
		st:        lock.NewGenMutex(gatedState{}, "gatedGateway"),
		gates:     map[int]chan struct{}{},
		histories: map[int][]walletmodel.Transaction{},
	}
}

func (g *gatedGateway) state() gatedState {
	return lock.Get[gatedState](&g.st, func(s *gatedState) gatedState { return *s })
}

func (g *gatedGateway) Balances(ctx context.Context) (walletmodel.Balances, er.R) {
	_ = g.st.In(func(s *gatedState) er.R {
		s.balanceCalls++
		return nil
	})
	return walletmodel.Balances{ChainBalance: 1}, nil
}

func (g *gatedGateway) History(ctx context.Context) ([]walletmodel.Transaction, er.R) {
	n := 0
	_ = g.st.In(func(s *gatedState) er.R {
		s.historyCalls++
		s.inFlight++
		if s.inFlight > s.maxInFlight {
			s.maxInFlight = s.inFlight
		}
		n = s.historyCalls
		return nil
	})
	defer func() {
		_ = g.st.In(func(s *gatedState) er.R {
			s.inFlight--
			return nil
		})
	}()
	if gate, ok := g.gates[n]; ok {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, er.E(ctx.Err())
		}
	}
	return g.histories[n], nil
}

func (g *gatedGateway) ReceivedPayments(ctx context.Context) ([]walletmodel.ReceivedPayment, er.R) {
	return nil, nil
}

func (g *gatedGateway) Connections(ctx context.Context) ([]walletmodel.Connection, er.R) {
	return nil, nil
}
