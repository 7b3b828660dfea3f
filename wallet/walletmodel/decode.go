package walletmodel

import (
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkt-cash/pldwallet/btcutil/er"
	"github.com/pkt-cash/pldwallet/btcutil/util"
)

func decodeInput(o jsoniter.Any) (Input, er.R) {
	txid, err := reqString(o, "transaction_id")
	if err != nil {
		return Input{}, err
	}
	vout, err := reqUint32(o, "vout")
	if err != nil {
		return Input{}, err
	}
	return Input{TransactionID: txid, Vout: vout}, nil
}

func decodeOutput(o jsoniter.Any) (Output, er.R) {
	addr, err := reqString(o, "address")
	if err != nil {
		return Output{}, err
	}
	tokens, err := reqTokens(o, "tokens")
	if err != nil {
		return Output{}, err
	}
	return Output{Address: addr, Tokens: tokens}, nil
}

func decodeBlockchainTransaction(o jsoniter.Any) (BlockchainTransaction, er.R) {
	var out BlockchainTransaction
	var err er.R
	if out.ID, err = reqString(o, "id"); err != nil {
		return out, err
	}
	if out.ConfirmationCount, err = reqUint(o, "confirmation_count"); err != nil {
		return out, err
	}
	if out.Inputs, err = optList(o, "inputs", decodeInput); err != nil {
		return out, err
	}
	if out.Outputs, err = optList(o, "outputs", decodeOutput); err != nil {
		return out, err
	}
	out.Outgoing = optBool(o, "outgoing")
	out.CreatedAt = optTime(o, "created_at")
	out.Tokens = optTokens(o, "tokens")
	return out, nil
}

func decodeInvoice(o jsoniter.Any) (Invoice, er.R) {
	var out Invoice
	var err er.R
	if out.ID, err = reqString(o, "id"); err != nil {
		return out, err
	}
	if out.Confirmed, err = reqBool(o, "confirmed"); err != nil {
		return out, err
	}
	if out.Tokens, err = reqTokens(o, "tokens"); err != nil {
		return out, err
	}
	out.Memo = optString(o, "memo")
	out.ChainAddress = optString(o, "chain_address")
	out.PaymentRequest = optString(o, "payment_request")
	out.CreatedAt = optTime(o, "created_at")
	return out, nil
}

func decodePayment(o jsoniter.Any) (Payment, er.R) {
	var out Payment
	var err er.R
	if out.ID, err = reqString(o, "id"); err != nil {
		return out, err
	}
	if out.Tokens, err = reqTokens(o, "tokens"); err != nil {
		return out, err
	}
	if out.Destination, err = optHex(o, "destination"); err != nil {
		return out, err
	}
	out.Confirmed = optBool(o, "confirmed")
	out.PaymentRequest = optString(o, "payment_request")
	out.CreatedAt = optTime(o, "created_at")
	return out, nil
}

func decodeTransaction(o jsoniter.Any) (Transaction, er.R) {
	typ, err := reqString(o, "type")
	if err != nil {
		return nil, err
	}
	switch Kind(typ) {
	case KindBlockchain:
		return asTx[BlockchainTransaction](decodeBlockchainTransaction(o))
	case KindInvoice:
		return asTx[Invoice](decodeInvoice(o))
	case KindPayment:
		return asTx[Payment](decodePayment(o))
	case kindChannel:
		if out := optBool(o, "outgoing"); out != nil && *out {
			return asTx[Payment](decodePayment(o))
		}
		return asTx[Invoice](decodeInvoice(o))
	}
	return nil, UnrecognizedType(typ)
}

func asTx[T Transaction](t T, err er.R) (Transaction, er.R) {
	if err != nil {
		return nil, err
	}
	return t, nil
}

func decodeReceivedPayment(o jsoniter.Any) (ReceivedPayment, er.R) {
	var out ReceivedPayment
	var err er.R
	if out.Amount, err = reqTokens(o, "amount"); err != nil {
		return out, err
	}
	if out.Confirmed, err = reqBool(o, "confirmed"); err != nil {
		return out, err
	}
	if out.Payment, err = reqString(o, "payment"); err != nil {
		return out, err
	}
	out.CreatedAt = optTime(o, "created_at")
	out.Memo = optString(o, "memo")
	return out, nil
}

func decodeBalances(o jsoniter.Any) (Balances, er.R) {
	var out Balances
	var err er.R
	if out.ChainBalance, err = reqTokens(o, "chain_balance"); err != nil {
		return out, err
	}
	if out.ChannelBalance, err = reqTokens(o, "channel_balance"); err != nil {
		return out, err
	}
	if out.PendingChainBalance, err = reqTokens(o, "pending_chain_balance"); err != nil {
		return out, err
	}
	if out.PendingChannelBalance, err = reqTokens(o, "pending_channel_balance"); err != nil {
		return out, err
	}
	return out, nil
}

func decodePeer(o jsoniter.Any) (Peer, er.R) {
	var out Peer
	var err er.R
	if out.ID, err = reqUint(o, "id"); err != nil {
		return out, err
	}
	if out.Address, err = reqString(o, "address"); err != nil {
		return out, err
	}
	ping, err := reqUint(o, "ping_time")
	if err != nil {
		return out, err
	}
	out.PingTime = time.Duration(ping) * time.Millisecond
	if out.BytesSent, err = reqUint(o, "bytes_sent"); err != nil {
		return out, err
	}
	if out.BytesReceived, err = reqUint(o, "bytes_received"); err != nil {
		return out, err
	}
	if out.TokensSent, err = reqTokens(o, "tokens_sent"); err != nil {
		return out, err
	}
	if out.TokensReceived, err = reqTokens(o, "tokens_received"); err != nil {
		return out, err
	}
	return out, nil
}

func decodeChannel(o jsoniter.Any) (Channel, er.R) {
	var out Channel
	var err er.R
	if out.ID, err = reqString(o, "id"); err != nil {
		return out, err
	}
	if out.TransactionID, err = reqString(o, "transaction_id"); err != nil {
		return out, err
	}
	if out.TransactionVout, err = reqUint32(o, "transaction_vout"); err != nil {
		return out, err
	}
	if out.LocalBalance, err = reqTokens(o, "local_balance"); err != nil {
		return out, err
	}
	if out.RemoteBalance, err = reqTokens(o, "remote_balance"); err != nil {
		return out, err
	}
	if out.Sent, err = reqTokens(o, "sent"); err != nil {
		return out, err
	}
	if out.Received, err = reqTokens(o, "received"); err != nil {
		return out, err
	}
	state, err := reqString(o, "state")
	if err != nil {
		return out, err
	}
	if !util.Contains(channelStates, ChannelState(state)) {
		return out, UnrecognizedType(state)
	}
	out.State = ChannelState(state)
	if out.TransfersCount, err = reqUint(o, "transfers_count"); err != nil {
		return out, err
	}
	if out.UnsettledBalance, err = reqTokens(o, "unsettled_balance"); err != nil {
		return out, err
	}
	return out, nil
}

func decodeConnection(o jsoniter.Any) (Connection, er.R) {
	var out Connection
	var err er.R
	if out.PublicKey, err = reqHex(o, "public_key"); err != nil {
		return out, err
	}
	if out.Channels, err = optList(o, "channels", decodeChannel); err != nil {
		return out, err
	}
	if out.Peers, err = optList(o, "peers", decodePeer); err != nil {
		return out, err
	}
	return out, nil
}

func decodeCreatedInvoice(o jsoniter.Any) (CreatedInvoice, er.R) {
	var out CreatedInvoice
	var err er.R
	if out.ID, err = reqString(o, "id"); err != nil {
		return out, err
	}
	if out.PaymentRequest, err = reqString(o, "payment_request"); err != nil {
		return out, err
	}
	return out, nil
}

func decodePaymentRequest(o jsoniter.Any) (PaymentRequestDetails, er.R) {
	var out PaymentRequestDetails
	var err er.R
	if out.ID, err = reqString(o, "id"); err != nil {
		return out, err
	}
	if out.Destination, err = reqHex(o, "destination"); err != nil {
		return out, err
	}
	if out.Tokens, err = reqTokens(o, "tokens"); err != nil {
		return out, err
	}
	out.Description = optString(o, "description")
	out.ChainAddress = optString(o, "chain_address")
	out.ExpiresAt = optTime(o, "expires_at")
	return out, nil
}

func decodeWalletObject(o jsoniter.Any) (WalletObject, er.R) {
	keys := o.Keys()
	if len(keys) != 1 {
		return WalletObject{}, UnrecognizedType("wallet object with keys [" + strings.Join(keys, ",") + "]")
	}
	body := o.Get(keys[0])
	if body.ValueType() != jsoniter.ObjectValue {
		return WalletObject{}, MissingField(keys[0])
	}
	switch keys[0] {
	case "invoice":
		inv, err := decodeCreatedInvoice(body)
		if err != nil {
			return WalletObject{}, err
		}
		return WalletObject{Invoice: &inv}, nil
	case "transaction":
		tx, err := decodeTransaction(body)
		if err != nil {
			return WalletObject{}, err
		}
		return WalletObject{Transaction: tx}, nil
	}
	return WalletObject{}, UnrecognizedType(keys[0])
}

// DecodeTransaction decodes a history entry, the variant is selected by "type".
func DecodeTransaction(data []byte) (Transaction, er.R) {
	return decodeObject(data, decodeTransaction)
}

// DecodeBlockchainTransaction decodes an on-chain transaction, ignoring "type".
func DecodeBlockchainTransaction(data []byte) (BlockchainTransaction, er.R) {
	return decodeObject(data, decodeBlockchainTransaction)
}

func DecodeInvoice(data []byte) (Invoice, er.R) {
	return decodeObject(data, decodeInvoice)
}

func DecodePayment(data []byte) (Payment, er.R) {
	return decodeObject(data, decodePayment)
}

func DecodeReceivedPayment(data []byte) (ReceivedPayment, er.R) {
	return decodeObject(data, decodeReceivedPayment)
}

func DecodeBalances(data []byte) (Balances, er.R) {
	return decodeObject(data, decodeBalances)
}

func DecodePeer(data []byte) (Peer, er.R) {
	return decodeObject(data, decodePeer)
}

func DecodeChannel(data []byte) (Channel, er.R) {
	return decodeObject(data, decodeChannel)
}

func DecodeConnection(data []byte) (Connection, er.R) {
	return decodeObject(data, decodeConnection)
}

func DecodeCreatedInvoice(data []byte) (CreatedInvoice, er.R) {
	return decodeObject(data, decodeCreatedInvoice)
}

func DecodePaymentRequest(data []byte) (PaymentRequestDetails, er.R) {
	return decodeObject(data, decodePaymentRequest)
}

// DecodeWalletObject decodes a realtime push message.
func DecodeWalletObject(data []byte) (WalletObject, er.R) {
	return decodeObject(data, decodeWalletObject)
}

// DecodeTransactions decodes the reply to GET history/
func DecodeTransactions(data []byte) ([]Transaction, er.R) {
	return decodeArray(data, "history", decodeTransaction)
}

// DecodeReceivedPayments decodes the reply to GET invoices/
func DecodeReceivedPayments(data []byte) ([]ReceivedPayment, er.R) {
	return decodeArray(data, "invoices", decodeReceivedPayment)
}

// DecodeConnections decodes the reply to GET connections/
func DecodeConnections(data []byte) ([]Connection, er.R) {
	return decodeArray(data, "connections", decodeConnection)
}
