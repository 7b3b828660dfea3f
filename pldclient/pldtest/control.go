package pldtest

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkt-cash/pldwallet/btcutil/er"
	"github.com/pkt-cash/pldwallet/wallet/walletmodel"
)

func (d *Daemon) SetBalances(b walletmodel.Balances) {
	_ = d.fix.W().In(func(f *fixtures) er.R {
		f.balances = b
		return nil
	})
}

func (d *Daemon) SetHistory(txns ...walletmodel.Transaction) {
	_ = d.fix.W().In(func(f *fixtures) er.R {
		f.history = append([]walletmodel.Transaction(nil), txns...)
		return nil
	})
}

func (d *Daemon) History() []walletmodel.Transaction {
	var out []walletmodel.Transaction
	_ = d.fix.R().In(func(f *fixtures) er.R {
		out = append(out, f.history...)
		return nil
	})
	return out
}

func (d *Daemon) SetReceivedPayments(rps ...walletmodel.ReceivedPayment) {
	_ = d.fix.W().In(func(f *fixtures) er.R {
		f.received = append([]walletmodel.ReceivedPayment(nil), rps...)
		return nil
	})
}

func (d *Daemon) SetConnections(conns ...walletmodel.Connection) {
	_ = d.fix.W().In(func(f *fixtures) er.R {
		f.connections = append([]walletmodel.Connection(nil), conns...)
		return nil
	})
}

// SetPaymentRequest makes GET payment_request/{encoded} return details.
func (d *Daemon) SetPaymentRequest(encoded string, details walletmodel.PaymentRequestDetails) {
	_ = d.fix.W().In(func(f *fixtures) er.R {
		f.payReqs[encoded] = details
		return nil
	})
}

// Fail makes every request for method and path (relative to /v0/) fail
// with status until Recover is called.
func (d *Daemon) Fail(method, path string, status int) {
	d.failures.Put(method+" "+path, status)
}

func (d *Daemon) Recover(method, path string) {
	d.failures.Delete(method + " " + path)
}

// Requests returns every request received so far.
func (d *Daemon) Requests() []Request {
	var out []Request
	_ = d.requests.In(func(rs *[]Request) er.R {
		out = append(out, *rs...)
		return nil
	})
	return out
}

// Count is the number of requests received for method and path.
func (d *Daemon) Count(method, path string) int {
	n := 0
	for _, r := range d.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// RejectRealtime makes new realtime connection attempts fail.
func (d *Daemon) RejectRealtime(reject bool) {
	d.reject.Store(reject)
}

// RealtimeDials is the number of realtime connection attempts, successful
// or not.
func (d *Daemon) RealtimeDials() int {
	return int(d.dials.Load())
}

// RealtimeClients is the number of open realtime connections.
func (d *Daemon) RealtimeClients() int {
	n := 0
	_ = d.conns.In(func(cs *[]*websocket.Conn) er.R {
		n = len(*cs)
		return nil
	})
	return n
}

// Commands returns every text frame received on the realtime connections.
func (d *Daemon) Commands() [][]byte {
	var out [][]byte
	_ = d.commands.In(func(cs *[][]byte) er.R {
		out = append(out, *cs...)
		return nil
	})
	return out
}

// Push sends a wallet object to every realtime client.
func (d *Daemon) Push(wo walletmodel.WalletObject) er.R {
	js, err := walletmodel.Encode(wo)
	if err != nil {
		return err
	}
	return d.PushRaw(js)
}

// PushRaw sends a text frame to every realtime client.
func (d *Daemon) PushRaw(msg []byte) er.R {
	return d.conns.In(func(cs *[]*websocket.Conn) er.R {
		for _, c := range *cs {
			if err := er.E(c.WriteMessage(websocket.TextMessage, msg)); err != nil {
				return err
			}
		}
		return nil
	})
}

// DropRealtime ends every realtime connection. A positive code is sent in a
// close frame first, otherwise the connection is cut without one.
func (d *Daemon) DropRealtime(code int) {
	_ = d.conns.In(func(cs *[]*websocket.Conn) er.R {
		for _, c := range *cs {
			if code > 0 {
				_ = c.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(code, ""), time.Now().Add(time.Second))
			}
			c.Close()
		}
		return nil
	})
}
