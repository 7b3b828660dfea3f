package walletsync

import (
	"github.com/pkt-cash/pldwallet/wallet/walletmodel"
)

// ConfirmationChange is raised when a transaction or received payment which
// was already known changes its confirmed flag. Exactly one of Transaction
// and ReceivedPayment is set, and holds the new record.
type ConfirmationChange struct {
	// Key is the transaction id, or the payment reference of a received payment.
	Key             string
	Confirmed       bool
	Transaction     walletmodel.Transaction
	ReceivedPayment *walletmodel.ReceivedPayment
}

// What names the kind of record which changed.
func (c ConfirmationChange) What() string {
	if c.Transaction != nil {
		return string(c.Transaction.Kind())
	}
	return "received payment"
}

func (c ConfirmationChange) Status() string {
	if c.Confirmed {
		return "confirmed"
	}
	return "unconfirmed"
}

// TransactionChanges compares incoming transactions with the previously
// stored ones by id. Records which were not stored before raise nothing.
func TransactionChanges(stored, incoming []walletmodel.Transaction) []ConfirmationChange {
	prev := make(map[string]bool, len(stored))
	for _, tx := range stored {
		prev[tx.TxID()] = tx.IsConfirmed()
	}
	var out []ConfirmationChange
	for _, tx := range incoming {
		was, ok := prev[tx.TxID()]
		if !ok || was == tx.IsConfirmed() {
			continue
		}
		// a duplicate id in the incoming list must not raise twice
		prev[tx.TxID()] = tx.IsConfirmed()
		out = append(out, ConfirmationChange{
			Key:         tx.TxID(),
			Confirmed:   tx.IsConfirmed(),
			Transaction: tx,
		})
	}
	return out
}

// ReceivedPaymentChanges is TransactionChanges for the legacy received
// payments list, which is keyed by the payment reference.
func ReceivedPaymentChanges(stored, incoming []walletmodel.ReceivedPayment) []ConfirmationChange {
	prev := make(map[string]bool, len(stored))
	for _, rp := range stored {
		prev[rp.Payment] = rp.Confirmed
	}
	var out []ConfirmationChange
	for i := range incoming {
		rp := incoming[i]
		was, ok := prev[rp.Payment]
		if !ok || was == rp.Confirmed {
			continue
		}
		prev[rp.Payment] = rp.Confirmed
		out = append(out, ConfirmationChange{
			Key:             rp.Payment,
			Confirmed:       rp.Confirmed,
			ReceivedPayment: &rp,
		})
	}
	return out
}
