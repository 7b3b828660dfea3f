// Package walletmodel contains the records exchanged with the daemon and
// the decoders and encoders for their JSON wire format.
package walletmodel

import (
	"time"
)

// TimeLayout is the wire format of every timestamp.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Kind is the discriminator of a Transaction.
type Kind string

const (
	KindBlockchain Kind = "chain_transaction"
	KindInvoice    Kind = "invoice"
	KindPayment    Kind = "payment"

	// kindChannel is the legacy discriminator for lightning transactions,
	// it decodes to an Invoice or a Payment depending on "outgoing".
	kindChannel Kind = "channel_transaction"
)

// Transaction is one entry of the wallet history, it is a BlockchainTransaction,
// an Invoice or a Payment. Two transactions are the same transaction if their
// TxID is the same.
type Transaction interface {
	TxID() string
	Kind() Kind
	IsConfirmed() bool
	Created() *time.Time
	isTransaction()
}

// Input is a reference to the output of a previous transaction.
type Input struct {
	TransactionID string
	Vout          uint32
}

type Output struct {
	Address string
	Tokens  Tokens
}

type BlockchainTransaction struct {
	ID                string
	ConfirmationCount uint64
	Inputs            []Input
	Outputs           []Output
	Outgoing          *bool
	CreatedAt         *time.Time
	// Tokens is the amount sent, when known
	Tokens *Tokens
}

// Invoice is a receivable lightning transaction, ID is the payment hash.
type Invoice struct {
	ID             string
	Memo           *string
	ChainAddress   *string
	PaymentRequest *string
	Confirmed      bool
	Tokens         Tokens
	CreatedAt      *time.Time
}

// Payment is a sent lightning transaction, ID is the payment hash.
type Payment struct {
	ID string
	// Destination is the public key of the payee, nil if absent.
	Destination    []byte
	Confirmed      *bool
	Tokens         Tokens
	PaymentRequest *string
	CreatedAt      *time.Time
}

var (
	_ Transaction = BlockchainTransaction{}
	_ Transaction = Invoice{}
	_ Transaction = Payment{}
)

func (t BlockchainTransaction) TxID() string        { return t.ID }
func (t BlockchainTransaction) Kind() Kind          { return KindBlockchain }
func (t BlockchainTransaction) IsConfirmed() bool   { return t.ConfirmationCount > 0 }
func (t BlockchainTransaction) Created() *time.Time { return t.CreatedAt }
func (BlockchainTransaction) isTransaction()        {}

func (t Invoice) TxID() string        { return t.ID }
func (t Invoice) Kind() Kind          { return KindInvoice }
func (t Invoice) IsConfirmed() bool   { return t.Confirmed }
func (t Invoice) Created() *time.Time { return t.CreatedAt }
func (Invoice) isTransaction()        {}

func (t Payment) TxID() string        { return t.ID }
func (t Payment) Kind() Kind          { return KindPayment }
func (t Payment) IsConfirmed() bool   { return t.Confirmed != nil && *t.Confirmed }
func (t Payment) Created() *time.Time { return t.CreatedAt }
func (Payment) isTransaction()        {}

// ReceivedPayment is a row of the legacy received payments list. Rows are
// identified by Payment.
type ReceivedPayment struct {
	Amount    Tokens
	Confirmed bool
	CreatedAt *time.Time
	Memo      *string
	Payment   string
}

type Balances struct {
	ChainBalance          Tokens
	ChannelBalance        Tokens
	PendingChainBalance   Tokens
	PendingChannelBalance Tokens
}

// Spendable is the chain balance plus the channel balance.
func (b Balances) Spendable() Tokens {
	return SumTokens(b.ChainBalance, b.ChannelBalance)
}

// Pending is the total of the balances which are not yet spendable.
func (b Balances) Pending() Tokens {
	return SumTokens(b.PendingChainBalance, b.PendingChannelBalance)
}

type Peer struct {
	ID             uint64
	Address        string
	PingTime       time.Duration
	BytesSent      uint64
	BytesReceived  uint64
	TokensSent     Tokens
	TokensReceived Tokens
}

type ChannelState string

const (
	ChannelActive   ChannelState = "active"
	ChannelInactive ChannelState = "inactive"
	ChannelOpening  ChannelState = "opening"
	ChannelClosing  ChannelState = "closing"
)

var channelStates = []ChannelState{ChannelActive, ChannelInactive, ChannelOpening, ChannelClosing}

type Channel struct {
	ID               string
	TransactionID    string
	TransactionVout  uint32
	LocalBalance     Tokens
	RemoteBalance    Tokens
	Sent             Tokens
	Received         Tokens
	State            ChannelState
	TransfersCount   uint64
	UnsettledBalance Tokens
}

// Connection is everything known about one remote node.
type Connection struct {
	PublicKey []byte
	Channels  []Channel
	Peers     []Peer
}

// Balance is the sum of the local balances of the connection's channels.
func (c Connection) Balance() Tokens {
	var out Tokens
	for _, ch := range c.Channels {
		out, _ = out.Add(ch.LocalBalance)
	}
	return out
}

// BestPing is the lowest ping time of the connection's peers, ok is false
// if there are no peers.
func (c Connection) BestPing() (best time.Duration, ok bool) {
	for i, p := range c.Peers {
		if i == 0 || p.PingTime < best {
			best = p.PingTime
		}
	}
	return best, len(c.Peers) > 0
}

// CreatedInvoice is the daemon's reply to creating an invoice.
type CreatedInvoice struct {
	ID             string
	PaymentRequest string
}

// PaymentRequestDetails is a decoded payment request.
type PaymentRequestDetails struct {
	ID           string
	Destination  []byte
	Tokens       Tokens
	Description  *string
	ChainAddress *string
	ExpiresAt    *time.Time
}

// WalletObject is a realtime push message, exactly one field is set.
type WalletObject struct {
	Invoice     *CreatedInvoice
	Transaction Transaction
}
