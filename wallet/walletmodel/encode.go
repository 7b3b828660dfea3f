package walletmodel

import (
	"encoding/hex"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkt-cash/pldwallet/btcutil/er"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type wireTime time.Time

func (t wireTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).Format(TimeLayout))
}

func toWireTime(t *time.Time) *wireTime {
	if t == nil {
		return nil
	}
	wt := wireTime(*t)
	return &wt
}

type wireHex []byte

func (h wireHex) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

func toWireHex(b []byte) *wireHex {
	if b == nil {
		return nil
	}
	h := wireHex(b)
	return &h
}

type inputWire struct {
	TransactionID string `json:"transaction_id"`
	Vout          uint32 `json:"vout"`
}

type outputWire struct {
	Address string `json:"address"`
	Tokens  Tokens `json:"tokens"`
}

type chainTxWire struct {
	Type              Kind         `json:"type"`
	ID                string       `json:"id"`
	ConfirmationCount uint64       `json:"confirmation_count"`
	Inputs            []inputWire  `json:"inputs"`
	Outputs           []outputWire `json:"outputs"`
	Outgoing          *bool        `json:"outgoing,omitempty"`
	CreatedAt         *wireTime    `json:"created_at,omitempty"`
	Tokens            *Tokens      `json:"tokens,omitempty"`
}

func (t BlockchainTransaction) MarshalJSON() ([]byte, error) {
	w := chainTxWire{
		Type:              KindBlockchain,
		ID:                t.ID,
		ConfirmationCount: t.ConfirmationCount,
		Outgoing:          t.Outgoing,
		CreatedAt:         toWireTime(t.CreatedAt),
		Tokens:            t.Tokens,
	}
	if t.Inputs != nil {
		w.Inputs = make([]inputWire, 0, len(t.Inputs))
		for _, in := range t.Inputs {
			w.Inputs = append(w.Inputs, inputWire(in))
		}
	}
	if t.Outputs != nil {
		w.Outputs = make([]outputWire, 0, len(t.Outputs))
		for _, out := range t.Outputs {
			w.Outputs = append(w.Outputs, outputWire(out))
		}
	}
	return json.Marshal(w)
}

type invoiceWire struct {
	Type           Kind      `json:"type"`
	ID             string    `json:"id"`
	Memo           *string   `json:"memo,omitempty"`
	ChainAddress   *string   `json:"chain_address,omitempty"`
	PaymentRequest *string   `json:"payment_request,omitempty"`
	Confirmed      bool      `json:"confirmed"`
	Tokens         Tokens    `json:"tokens"`
	CreatedAt      *wireTime `json:"created_at,omitempty"`
}

func (t Invoice) MarshalJSON() ([]byte, error) {
	return json.Marshal(invoiceWire{
		Type:           KindInvoice,
		ID:             t.ID,
		Memo:           t.Memo,
		ChainAddress:   t.ChainAddress,
		PaymentRequest: t.PaymentRequest,
		Confirmed:      t.Confirmed,
		Tokens:         t.Tokens,
		CreatedAt:      toWireTime(t.CreatedAt),
	})
}

type paymentWire struct {
	Type           Kind      `json:"type"`
	ID             string    `json:"id"`
	Destination    *wireHex  `json:"destination,omitempty"`
	Confirmed      *bool     `json:"confirmed,omitempty"`
	Tokens         Tokens    `json:"tokens"`
	PaymentRequest *string   `json:"payment_request,omitempty"`
	CreatedAt      *wireTime `json:"created_at,omitempty"`
}

func (t Payment) MarshalJSON() ([]byte, error) {
	return json.Marshal(paymentWire{
		Type:           KindPayment,
		ID:             t.ID,
		Destination:    toWireHex(t.Destination),
		Confirmed:      t.Confirmed,
		Tokens:         t.Tokens,
		PaymentRequest: t.PaymentRequest,
		CreatedAt:      toWireTime(t.CreatedAt),
	})
}

type receivedPaymentWire struct {
	Amount    Tokens    `json:"amount"`
	Confirmed bool      `json:"confirmed"`
	CreatedAt *wireTime `json:"created_at,omitempty"`
	Memo      *string   `json:"memo,omitempty"`
	Payment   string    `json:"payment"`
}

func (r ReceivedPayment) MarshalJSON() ([]byte, error) {
	return json.Marshal(receivedPaymentWire{
		Amount:    r.Amount,
		Confirmed: r.Confirmed,
		CreatedAt: toWireTime(r.CreatedAt),
		Memo:      r.Memo,
		Payment:   r.Payment,
	})
}

type balancesWire struct {
	ChainBalance          Tokens `json:"chain_balance"`
	ChannelBalance        Tokens `json:"channel_balance"`
	PendingChainBalance   Tokens `json:"pending_chain_balance"`
	PendingChannelBalance Tokens `json:"pending_channel_balance"`
}

func (b Balances) MarshalJSON() ([]byte, error) {
	return json.Marshal(balancesWire(b))
}

type peerWire struct {
	ID             uint64 `json:"id"`
	Address        string `json:"address"`
	PingTime       int64  `json:"ping_time"`
	BytesSent      uint64 `json:"bytes_sent"`
	BytesReceived  uint64 `json:"bytes_received"`
	TokensSent     Tokens `json:"tokens_sent"`
	TokensReceived Tokens `json:"tokens_received"`
}

func (p Peer) MarshalJSON() ([]byte, error) {
	return json.Marshal(peerWire{
		ID:             p.ID,
		Address:        p.Address,
		PingTime:       p.PingTime.Milliseconds(),
		BytesSent:      p.BytesSent,
		BytesReceived:  p.BytesReceived,
		TokensSent:     p.TokensSent,
		TokensReceived: p.TokensReceived,
	})
}

type channelWire struct {
	ID               string       `json:"id"`
	TransactionID    string       `json:"transaction_id"`
	TransactionVout  uint32       `json:"transaction_vout"`
	LocalBalance     Tokens       `json:"local_balance"`
	RemoteBalance    Tokens       `json:"remote_balance"`
	Sent             Tokens       `json:"sent"`
	Received         Tokens       `json:"received"`
	State            ChannelState `json:"state"`
	TransfersCount   uint64       `json:"transfers_count"`
	UnsettledBalance Tokens       `json:"unsettled_balance"`
}

func (c Channel) MarshalJSON() ([]byte, error) {
	return json.Marshal(channelWire(c))
}

type connectionWire struct {
	PublicKey wireHex   `json:"public_key"`
	Channels  []Channel `json:"channels"`
	Peers     []Peer    `json:"peers"`
}

func (c Connection) MarshalJSON() ([]byte, error) {
	return json.Marshal(connectionWire{
		PublicKey: wireHex(c.PublicKey),
		Channels:  c.Channels,
		Peers:     c.Peers,
	})
}

type createdInvoiceWire struct {
	ID             string `json:"id"`
	PaymentRequest string `json:"payment_request"`
}

func (c CreatedInvoice) MarshalJSON() ([]byte, error) {
	return json.Marshal(createdInvoiceWire(c))
}

type paymentRequestWire struct {
	ID           string    `json:"id"`
	Destination  wireHex   `json:"destination"`
	Tokens       Tokens    `json:"tokens"`
	Description  *string   `json:"description,omitempty"`
	ChainAddress *string   `json:"chain_address,omitempty"`
	ExpiresAt    *wireTime `json:"expires_at,omitempty"`
}

func (p PaymentRequestDetails) MarshalJSON() ([]byte, error) {
	return json.Marshal(paymentRequestWire{
		ID:           p.ID,
		Destination:  wireHex(p.Destination),
		Tokens:       p.Tokens,
		Description:  p.Description,
		ChainAddress: p.ChainAddress,
		ExpiresAt:    toWireTime(p.ExpiresAt),
	})
}

func (w WalletObject) MarshalJSON() ([]byte, error) {
	switch {
	case w.Invoice != nil && w.Transaction == nil:
		return json.Marshal(map[string]interface{}{"invoice": *w.Invoice})
	case w.Transaction != nil && w.Invoice == nil:
		return json.Marshal(map[string]interface{}{"transaction": w.Transaction})
	}
	return nil, er.Native(ErrUnrecognizedType.New("wallet object must hold exactly one value", nil))
}

// Encode marshals any record of this package in its wire format.
func Encode(v interface{}) ([]byte, er.R) {
	return er.E1(json.Marshal(v))
}
