package walletsync

import (
	"context"

	"github.com/pkt-cash/pldwallet/btcutil/er"
	"github.com/pkt-cash/pldwallet/pldclient"
	"github.com/pkt-cash/pldwallet/pktlog/log"
	"github.com/pkt-cash/pldwallet/wallet/walletmodel"
)

// Gateway is the part of the daemon api which the orchestrator polls.
// *pldclient.Client implements it.
type Gateway interface {
	Balances(ctx context.Context) (walletmodel.Balances, er.R)
	History(ctx context.Context) ([]walletmodel.Transaction, er.R)
	ReceivedPayments(ctx context.Context) ([]walletmodel.ReceivedPayment, er.R)
	Connections(ctx context.Context) ([]walletmodel.Connection, er.R)
}

var _ Gateway = (*pldclient.Client)(nil)

// RealtimeConn is an open realtime connection. Read is only called from one
// goroutine, it returns pldclient.ErrClosedCleanly when the daemon closed the
// connection normally.
type RealtimeConn interface {
	Read() ([]byte, er.R)
	Send(v interface{}) er.R
	Close() er.R
}

var _ RealtimeConn = (*pldclient.Conn)(nil)

// DialFunc opens a realtime connection.
type DialFunc func(ctx context.Context) (RealtimeConn, er.R)

// DialURL dials the realtime socket at a url made by pldclient.RealtimeURL.
func DialURL(url string) DialFunc {
	return func(ctx context.Context) (RealtimeConn, er.R) {
		c, err := pldclient.DialRealtime(ctx, url)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// ErrorReporter receives every error from both the polling and the realtime
// side. It is called on the orchestrator's goroutine.
type ErrorReporter interface {
	ReportError(err er.R)
}

// Notifier surfaces confirmation changes to the user. It is called on the
// orchestrator's goroutine.
type Notifier interface {
	NotifyConfirmation(c ConfirmationChange)
}

type ErrorReporterFunc func(err er.R)

func (f ErrorReporterFunc) ReportError(err er.R) { f(err) }

type NotifierFunc func(c ConfirmationChange)

func (f NotifierFunc) NotifyConfirmation(c ConfirmationChange) { f(c) }

type logReporter struct{}

func (logReporter) ReportError(err er.R) {
	log.Warnf("Wallet sync: %s", err.Message())
}

type logNotifier struct{}

func (logNotifier) NotifyConfirmation(c ConfirmationChange) {
	log.Infof("%s [%s] is now %s", c.What(), c.Key, c.Status())
}
