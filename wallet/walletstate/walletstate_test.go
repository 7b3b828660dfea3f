package walletstate_test

import (
	"sync"
	"testing"

	"github.com/pkt-cash/pldwallet/wallet/walletmodel"
	"github.com/pkt-cash/pldwallet/wallet/walletstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invoice(id string, confirmed bool) walletmodel.Invoice {
	return walletmodel.Invoice{ID: id, Confirmed: confirmed, Tokens: 1000}
}

func ids(txns []walletmodel.Transaction) []string {
	out := make([]string, 0, len(txns))
	for _, tx := range txns {
		out = append(out, tx.TxID())
	}
	return out
}

type recorder struct {
	changes  []walletstate.Change
	inserted []string
	order    []string
}

func record(s *walletstate.Store) *recorder {
	r := &recorder{}
	s.OnChange(func(c walletstate.Change) {
		r.changes = append(r.changes, c)
		r.order = append(r.order, "change")
	})
	s.OnInsert(func(tx walletmodel.Transaction) {
		r.inserted = append(r.inserted, tx.TxID())
		r.order = append(r.order, "insert")
	})
	return r
}

func TestInitialState(t *testing.T) {
	t.Parallel()
	s := walletstate.New()
	_, ok := s.Balances()
	require.False(t, ok)
	require.Empty(t, s.Transactions())
	require.Equal(t, walletstate.Initializing, s.Connectivity())
	require.Nil(t, s.Snapshot().Balances)
}

func TestUpsertSameID(t *testing.T) {
	t.Parallel()
	s := walletstate.New()
	r := record(s)

	require.True(t, s.UpsertTransaction(invoice("abc", false)))
	require.False(t, s.UpsertTransaction(invoice("abc", true)))
	require.False(t, s.UpsertTransaction(invoice("abc", false)))
	require.False(t, s.UpsertTransaction(invoice("abc", true)))

	txns := s.Transactions()
	require.Len(t, txns, 1)
	require.True(t, txns[0].IsConfirmed())
	require.Equal(t, []string{"abc"}, r.inserted)
	require.Len(t, r.changes, 4)
	require.Equal(t, []string{"insert", "change", "change", "change", "change"}, r.order)
}

func TestUpsertKeepsPosition(t *testing.T) {
	t.Parallel()
	s := walletstate.New()
	s.SetTransactions([]walletmodel.Transaction{invoice("a", false), invoice("b", false)})
	s.UpsertTransaction(invoice("a", true))
	s.UpsertTransaction(invoice("c", false))
	require.Equal(t, []string{"a", "b", "c"}, ids(s.Transactions()))
	inv, ok := s.Invoice("a")
	require.True(t, ok)
	require.True(t, inv.Confirmed)
}

func TestSetTransactionsIdempotent(t *testing.T) {
	t.Parallel()
	s := walletstate.New()
	r := record(s)
	list := []walletmodel.Transaction{
		invoice("a", false),
		walletmodel.BlockchainTransaction{ID: "b", ConfirmationCount: 1},
		invoice("a", true),
	}
	s.SetTransactions(list)
	first := s.Snapshot()
	s.SetTransactions(list)
	second := s.Snapshot()

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"a", "b"}, ids(second.Transactions))
	assert.True(t, second.Transactions[0].IsConfirmed(), "last value wins")
	assert.Equal(t, []walletstate.Change{
		{Field: walletstate.FieldTransactions},
		{Field: walletstate.FieldTransactions},
	}, r.changes)
	assert.Empty(t, r.inserted)
}

func TestInvoiceLookup(t *testing.T) {
	t.Parallel()
	s := walletstate.New()
	s.SetTransactions([]walletmodel.Transaction{
		invoice("inv", true),
		walletmodel.Payment{ID: "pay", Tokens: 1},
	})
	_, ok := s.Invoice("pay")
	require.False(t, ok)
	_, ok = s.Invoice("missing")
	require.False(t, ok)
	inv, ok := s.Invoice("inv")
	require.True(t, ok)
	require.Equal(t, walletmodel.Tokens(1000), inv.Tokens)
	tx, ok := s.Transaction("pay")
	require.True(t, ok)
	require.Equal(t, walletmodel.KindPayment, tx.Kind())
}

func TestEveryMutationNotifies(t *testing.T) {
	t.Parallel()
	s := walletstate.New()
	r := record(s)
	s.SetBalances(walletmodel.Balances{})
	s.SetBalances(walletmodel.Balances{})
	s.SetConnectivity(walletstate.Connected)
	s.SetReceivedPayments(nil)
	s.SetConnections([]walletmodel.Connection{{PublicKey: []byte{1}}})
	require.Equal(t, []walletstate.Change{
		{Field: walletstate.FieldBalances},
		{Field: walletstate.FieldBalances},
		{Field: walletstate.FieldConnectivity},
		{Field: walletstate.FieldReceivedPayments},
		{Field: walletstate.FieldConnections},
	}, r.changes)
	b, ok := s.Balances()
	require.True(t, ok)
	require.Equal(t, walletmodel.Tokens(0), b.Spendable())
	require.Len(t, s.Connections(), 1)
}

func TestHookRelease(t *testing.T) {
	t.Parallel()
	s := walletstate.New()
	n := 0
	h := s.OnChange(func(walletstate.Change) { n++ })
	s.SetConnectivity(walletstate.Connected)
	h.Release()
	s.SetConnectivity(walletstate.Disconnected)
	require.Equal(t, 1, n)
}

func TestHooksCanReadStore(t *testing.T) {
	t.Parallel()
	s := walletstate.New()
	var seen walletstate.Connectivity
	s.OnChange(func(walletstate.Change) { seen = s.Connectivity() })
	s.SetConnectivity(walletstate.Disconnected)
	require.Equal(t, walletstate.Disconnected, seen)
}

func TestRestore(t *testing.T) {
	t.Parallel()
	s := walletstate.New()
	s.SetConnectivity(walletstate.Connected)
	r := record(s)
	s.Restore(walletstate.Snapshot{
		Balances:         &walletmodel.Balances{ChainBalance: 5},
		Transactions:     []walletmodel.Transaction{invoice("x", true)},
		ReceivedPayments: []walletmodel.ReceivedPayment{{Payment: "p", Amount: 1}},
		Connectivity:     walletstate.Disconnected,
	})
	require.Equal(t, []walletstate.Change{{Field: walletstate.FieldSnapshot}}, r.changes)
	b, _ := s.Balances()
	require.Equal(t, walletmodel.Tokens(5), b.ChainBalance)
	require.Equal(t, []string{"x"}, ids(s.Transactions()))
	require.Len(t, s.ReceivedPayments(), 1)
	require.Equal(t, walletstate.Connected, s.Connectivity())
}

func TestConcurrentReaders(t *testing.T) {
	t.Parallel()
	s := walletstate.New()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				snap := s.Snapshot()
				seen := map[string]bool{}
				for _, tx := range snap.Transactions {
					assert.False(t, seen[tx.TxID()], "duplicate id")
					seen[tx.TxID()] = true
				}
			}
		}()
	}
	for j := 0; j < 200; j++ {
		s.UpsertTransaction(invoice("a", j%2 == 0))
		s.SetTransactions([]walletmodel.Transaction{invoice("a", true), invoice("b", false), invoice("a", false)})
	}
	wg.Wait()
	require.Len(t, s.Transactions(), 2)
}
