package walletsync_test

import (
	"testing"

	"github.com/pkt-cash/pldwallet/wallet/walletmodel"
	"github.com/pkt-cash/pldwallet/wallet/walletsync"
	"github.com/stretchr/testify/require"
)

func inv(id string, confirmed bool) walletmodel.Invoice {
	return walletmodel.Invoice{ID: id, Confirmed: confirmed, Tokens: 1000}
}

func TestTransactionChanges(t *testing.T) {
	t.Parallel()
	yes := true
	tests := []struct {
		name     string
		stored   []walletmodel.Transaction
		incoming []walletmodel.Transaction
		want     map[string]bool
	}{
		{
			name:     "invoice settles",
			stored:   []walletmodel.Transaction{inv("abc", false)},
			incoming: []walletmodel.Transaction{inv("abc", true)},
			want:     map[string]bool{"abc": true},
		},
		{
			name:     "nothing changed",
			stored:   []walletmodel.Transaction{inv("abc", true)},
			incoming: []walletmodel.Transaction{inv("abc", true)},
			want:     map[string]bool{},
		},
		{
			name:     "new records raise nothing",
			stored:   nil,
			incoming: []walletmodel.Transaction{inv("abc", true)},
			want:     map[string]bool{},
		},
		{
			name: "chain transaction gets its first confirmation",
			stored: []walletmodel.Transaction{
				walletmodel.BlockchainTransaction{ID: "tx1"},
			},
			incoming: []walletmodel.Transaction{
				walletmodel.BlockchainTransaction{ID: "tx1", ConfirmationCount: 1},
			},
			want: map[string]bool{"tx1": true},
		},
		{
			name: "payment goes from absent to confirmed",
			stored: []walletmodel.Transaction{
				walletmodel.Payment{ID: "p"},
			},
			incoming: []walletmodel.Transaction{
				walletmodel.Payment{ID: "p", Confirmed: &yes},
			},
			want: map[string]bool{"p": true},
		},
		{
			name:     "unconfirmed again",
			stored:   []walletmodel.Transaction{inv("abc", true)},
			incoming: []walletmodel.Transaction{inv("abc", false)},
			want:     map[string]bool{"abc": false},
		},
		{
			name:     "duplicate incoming id raises once",
			stored:   []walletmodel.Transaction{inv("abc", false)},
			incoming: []walletmodel.Transaction{inv("abc", true), inv("abc", true)},
			want:     map[string]bool{"abc": true},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			changes := walletsync.TransactionChanges(tt.stored, tt.incoming)
			require.Len(t, changes, len(tt.want))
			for _, c := range changes {
				confirmed, ok := tt.want[c.Key]
				require.True(t, ok, c.Key)
				require.Equal(t, confirmed, c.Confirmed)
				require.Equal(t, c.Key, c.Transaction.TxID())
				require.Equal(t, confirmed, c.Transaction.IsConfirmed())
				require.Nil(t, c.ReceivedPayment)
			}
		})
	}
}

func TestTransactionChangesCarriesNewRecord(t *testing.T) {
	t.Parallel()
	memo := "second"
	next := walletmodel.Invoice{ID: "abc", Confirmed: true, Tokens: 2000, Memo: &memo}
	changes := walletsync.TransactionChanges(
		[]walletmodel.Transaction{inv("abc", false)},
		[]walletmodel.Transaction{next},
	)
	require.Len(t, changes, 1)
	require.Equal(t, next, changes[0].Transaction)
	require.Equal(t, "invoice", changes[0].What())
	require.Equal(t, "confirmed", changes[0].Status())
}

func TestReceivedPaymentChanges(t *testing.T) {
	t.Parallel()
	stored := []walletmodel.ReceivedPayment{
		{Payment: "r1", Amount: 5},
		{Payment: "r2", Amount: 6, Confirmed: true},
	}
	incoming := []walletmodel.ReceivedPayment{
		{Payment: "r1", Amount: 5, Confirmed: true},
		{Payment: "r2", Amount: 6, Confirmed: true},
		{Payment: "r3", Amount: 7, Confirmed: true},
	}
	changes := walletsync.ReceivedPaymentChanges(stored, incoming)
	require.Len(t, changes, 1)
	require.Equal(t, "r1", changes[0].Key)
	require.True(t, changes[0].Confirmed)
	require.Nil(t, changes[0].Transaction)
	require.Equal(t, walletmodel.Tokens(5), changes[0].ReceivedPayment.Amount)
	require.Equal(t, "received payment", changes[0].What())
}
