// Package walletstate holds the wallet state which is shown to the user:
// balances, transaction history, received payments, connections and the
// state of the realtime link.
//
// A Store is created once by the application and passed to whatever needs it.
// It is mutated only by the sync orchestrator (or by the application before
// the orchestrator starts) and may be read from any goroutine.
package walletstate

import (
	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/pkt-cash/pldwallet/btcutil/er"
	"github.com/pkt-cash/pldwallet/btcutil/event"
	"github.com/pkt-cash/pldwallet/btcutil/lock"
	"github.com/pkt-cash/pldwallet/wallet/walletmodel"
)

// Connectivity is the state of the realtime link.
type Connectivity int

const (
	Initializing Connectivity = iota
	Connected
	Disconnected
)

func (c Connectivity) String() string {
	switch c {
	case Initializing:
		return "initializing"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	}
	return "unknown"
}

// Field identifies what part of the state a Change touched.
type Field int

const (
	FieldBalances Field = iota
	FieldTransactions
	FieldReceivedPayments
	FieldConnections
	FieldConnectivity
	// FieldSnapshot is a Restore, everything but connectivity may have changed
	FieldSnapshot
)

func (f Field) String() string {
	switch f {
	case FieldBalances:
		return "balances"
	case FieldTransactions:
		return "transactions"
	case FieldReceivedPayments:
		return "received_payments"
	case FieldConnections:
		return "connections"
	case FieldConnectivity:
		return "connectivity"
	case FieldSnapshot:
		return "snapshot"
	}
	return "unknown"
}

// Change is passed to OnChange hooks after every mutation.
type Change struct {
	Field Field
}

// Snapshot is a copy of the persistent part of the state.
type Snapshot struct {
	// Balances is nil if balances have never been set
	Balances         *walletmodel.Balances
	Transactions     []walletmodel.Transaction
	ReceivedPayments []walletmodel.ReceivedPayment
	Connectivity     Connectivity
}

type state struct {
	balances     *walletmodel.Balances
	txns         *linkedhashmap.Map // txid -> walletmodel.Transaction
	received     []walletmodel.ReceivedPayment
	connections  []walletmodel.Connection
	connectivity Connectivity
}

type Store struct {
	m        lock.GenRwLock[state]
	changed  event.Hooks[Change]
	inserted event.Hooks[walletmodel.Transaction]
}

// New creates an empty store in the Initializing state.
func New() *Store {
	return &Store{
		m: lock.NewGenRwLock(state{
			txns:         linkedhashmap.New(),
			connectivity: Initializing,
		}, "walletstate"),
		changed:  event.NewHooks[Change]("walletstate.changed"),
		inserted: event.NewHooks[walletmodel.Transaction]("walletstate.inserted"),
	}
}

// OnChange registers f to be called after every mutation. f runs on the
// mutating goroutine, after the mutation is complete.
func (s *Store) OnChange(f func(Change)) *event.Hook {
	return s.changed.Add(f)
}

// OnInsert registers f to be called when UpsertTransaction inserts a
// transaction with a previously unknown id.
func (s *Store) OnInsert(f func(walletmodel.Transaction)) *event.Hook {
	return s.inserted.Add(f)
}

func (s *Store) write(field Field, f func(st *state)) {
	_ = s.m.W().In(func(st *state) er.R {
		f(st)
		return nil
	})
	s.changed.Fire(Change{Field: field})
}

func txnMap(txns []walletmodel.Transaction) *linkedhashmap.Map {
	m := linkedhashmap.New()
	for _, tx := range txns {
		// Put on an existing key keeps the first position and the last value
		m.Put(tx.TxID(), tx)
	}
	return m
}

func (s *Store) SetBalances(b walletmodel.Balances) {
	s.write(FieldBalances, func(st *state) {
		st.balances = &b
	})
}

// SetTransactions replaces the whole transaction set. Transactions with the
// same id are collapsed into one entry holding the last value, in the
// position where the id was first seen.
func (s *Store) SetTransactions(txns []walletmodel.Transaction) {
	m := txnMap(txns)
	s.write(FieldTransactions, func(st *state) {
		st.txns = m
	})
}

// UpsertTransaction inserts tx, or replaces the stored transaction with the
// same id. It returns true if tx was inserted, in which case the insert hooks
// are fired before the change hooks.
func (s *Store) UpsertTransaction(tx walletmodel.Transaction) bool {
	inserted := false
	_ = s.m.W().In(func(st *state) er.R {
		_, exists := st.txns.Get(tx.TxID())
		inserted = !exists
		st.txns.Put(tx.TxID(), tx)
		return nil
	})
	if inserted {
		s.inserted.Fire(tx)
	}
	s.changed.Fire(Change{Field: FieldTransactions})
	return inserted
}

func (s *Store) SetReceivedPayments(rps []walletmodel.ReceivedPayment) {
	rps = append([]walletmodel.ReceivedPayment(nil), rps...)
	s.write(FieldReceivedPayments, func(st *state) {
		st.received = rps
	})
}

func (s *Store) SetConnections(conns []walletmodel.Connection) {
	conns = append([]walletmodel.Connection(nil), conns...)
	s.write(FieldConnections, func(st *state) {
		st.connections = conns
	})
}

func (s *Store) SetConnectivity(c Connectivity) {
	s.write(FieldConnectivity, func(st *state) {
		st.connectivity = c
	})
}

// Restore loads previously saved state. Connectivity is not restored.
func (s *Store) Restore(snap Snapshot) {
	m := txnMap(snap.Transactions)
	rps := append([]walletmodel.ReceivedPayment(nil), snap.ReceivedPayments...)
	s.write(FieldSnapshot, func(st *state) {
		if snap.Balances != nil {
			b := *snap.Balances
			st.balances = &b
		}
		st.txns = m
		st.received = rps
	})
}

// Balances returns the current balances, ok is false if they have never been set.
func (s *Store) Balances() (b walletmodel.Balances, ok bool) {
	_ = s.m.R().In(func(st *state) er.R {
		if st.balances != nil {
			b, ok = *st.balances, true
		}
		return nil
	})
	return
}

func transactions(st *state) []walletmodel.Transaction {
	out := make([]walletmodel.Transaction, 0, st.txns.Size())
	for _, v := range st.txns.Values() {
		out = append(out, v.(walletmodel.Transaction))
	}
	return out
}

// Transactions returns the transactions in the order they were first seen.
func (s *Store) Transactions() []walletmodel.Transaction {
	return lock.Get[state](s.m.R(), transactions)
}

func (s *Store) Transaction(id string) (walletmodel.Transaction, bool) {
	var out walletmodel.Transaction
	_ = s.m.R().In(func(st *state) er.R {
		if v, ok := st.txns.Get(id); ok {
			out = v.(walletmodel.Transaction)
		}
		return nil
	})
	return out, out != nil
}

// Invoice returns the transaction with the id if it is an Invoice.
func (s *Store) Invoice(id string) (walletmodel.Invoice, bool) {
	tx, ok := s.Transaction(id)
	if !ok {
		return walletmodel.Invoice{}, false
	}
	inv, ok := tx.(walletmodel.Invoice)
	return inv, ok
}

func (s *Store) ReceivedPayments() []walletmodel.ReceivedPayment {
	return lock.Get[state](s.m.R(), func(st *state) []walletmodel.ReceivedPayment {
		return append([]walletmodel.ReceivedPayment(nil), st.received...)
	})
}

func (s *Store) Connections() []walletmodel.Connection {
	return lock.Get[state](s.m.R(), func(st *state) []walletmodel.Connection {
		return append([]walletmodel.Connection(nil), st.connections...)
	})
}

func (s *Store) Connectivity() Connectivity {
	return lock.Get[state](s.m.R(), func(st *state) Connectivity {
		return st.connectivity
	})
}

// Snapshot copies the state in one consistent read.
func (s *Store) Snapshot() Snapshot {
	return lock.Get[state](s.m.R(), func(st *state) Snapshot {
		out := Snapshot{
			Transactions:     transactions(st),
			ReceivedPayments: append([]walletmodel.ReceivedPayment(nil), st.received...),
			Connectivity:     st.connectivity,
		}
		if st.balances != nil {
			b := *st.balances
			out.Balances = &b
		}
		return out
	})
}
