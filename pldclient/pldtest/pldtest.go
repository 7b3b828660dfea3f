// Package pldtest is an in-process fake of the pld daemon's REST api and
// realtime socket, for tests.
package pldtest

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkt-cash/pldwallet/btcutil/er"
	"github.com/pkt-cash/pldwallet/btcutil/lock"
	"github.com/pkt-cash/pldwallet/pktlog/log"
	"github.com/pkt-cash/pldwallet/wallet/walletmodel"
)

// Request is a request which the daemon received.
type Request struct {
	Method string
	// Path is relative to /v0/, e.g. "balance/"
	Path   string
	Body   []byte
	Header http.Header
}

type fixtures struct {
	balances    walletmodel.Balances
	history     []walletmodel.Transaction
	received    []walletmodel.ReceivedPayment
	connections []walletmodel.Connection
	payReqs     map[string]walletmodel.PaymentRequestDetails
	invoiceSeq  int
}

type Daemon struct {
	SecretKey string

	srv      *httptest.Server
	fix      lock.GenRwLock[fixtures]
	failures lock.AtomicMap[string, int]
	requests lock.GenMutex[[]Request]
	conns    lock.GenMutex[[]*websocket.Conn]
	commands lock.GenMutex[[][]byte]
	reject   lock.AtomicBool
	dials    lock.AtomicInt32
}

const apiPrefix = "/v0/"

var upgrader = websocket.Upgrader{}

// New starts a fake daemon, all lists start empty and balances zero.
func New(secretKey string) *Daemon {
	d := &Daemon{
		SecretKey: secretKey,
		fix: lock.NewGenRwLock(fixtures{
			payReqs: map[string]walletmodel.PaymentRequestDetails{},
		}, "pldtest.fixtures"),
		requests: lock.NewGenMutex([]Request(nil), "pldtest.requests"),
		conns:    lock.NewGenMutex([]*websocket.Conn(nil), "pldtest.conns"),
		commands: lock.NewGenMutex([][]byte(nil), "pldtest.commands"),
	}
	d.srv = httptest.NewServer(d.router())
	return d
}

// URL is the daemon url, suitable for pldclient.Config.DaemonURL.
func (d *Daemon) URL() string {
	return d.srv.URL
}

// RealtimeURL is the realtime url without the secret key.
func (d *Daemon) RealtimeURL() string {
	return "ws" + strings.TrimPrefix(d.srv.URL, "http") + "/"
}

// Close drops every realtime connection and stops the server.
func (d *Daemon) Close() {
	d.DropRealtime(-1)
	d.srv.Close()
}

func (d *Daemon) router() *mux.Router {
	r := mux.NewRouter()
	r.Use(d.record)
	api := r.PathPrefix(strings.TrimSuffix(apiPrefix, "/")).Subrouter()
	api.HandleFunc("/balance/", d.reply(func(f *fixtures, _ *http.Request) interface{} {
		return f.balances
	})).Methods(http.MethodGet)
	api.HandleFunc("/history/", d.reply(func(f *fixtures, _ *http.Request) interface{} {
		return nonNil(f.history)
	})).Methods(http.MethodGet)
	api.HandleFunc("/invoices/", d.reply(func(f *fixtures, _ *http.Request) interface{} {
		return nonNil(f.received)
	})).Methods(http.MethodGet)
	api.HandleFunc("/connections/", d.reply(func(f *fixtures, _ *http.Request) interface{} {
		return nonNil(f.connections)
	})).Methods(http.MethodGet)
	api.HandleFunc("/payment_request/{pr}", d.reply(func(f *fixtures, r *http.Request) interface{} {
		if pr, ok := f.payReqs[mux.Vars(r)["pr"]]; ok {
			return pr
		}
		return nil
	})).Methods(http.MethodGet)
	api.HandleFunc("/invoices/", d.createInvoice).Methods(http.MethodPost)
	for _, p := range []string{"/payments/", "/transactions/", "/peers/", "/channels/"} {
		api.HandleFunc(p, d.ok).Methods(http.MethodPost)
	}
	api.HandleFunc("/channels/{id}", d.ok).Methods(http.MethodDelete)
	r.HandleFunc("/", d.realtime)
	return r
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}

func (d *Daemon) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
		req := Request{
			Method: r.Method,
			Path:   strings.TrimPrefix(r.URL.Path, apiPrefix),
			Body:   body,
			Header: r.Header.Clone(),
		}
		_ = d.requests.In(func(rs *[]Request) er.R {
			*rs = append(*rs, req)
			return nil
		})
		if code, ok := d.failures.Get(r.Method + " " + req.Path); ok {
			respondServerError(w, code, "injected failure of "+req.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func respondServerError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = jsoniter.NewEncoder(w).Encode(map[string]interface{}{
		"message": msg,
		"stack":   []string{"pldtest.Daemon"},
	})
}

func respondJSON(w http.ResponseWriter, v interface{}) {
	js, err := walletmodel.Encode(v)
	if err != nil {
		respondServerError(w, http.StatusInternalServerError, err.Message())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(js)
}

func (d *Daemon) reply(f func(f *fixtures, r *http.Request) interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var out interface{}
		_ = d.fix.R().In(func(fx *fixtures) er.R {
			out = f(fx, r)
			return nil
		})
		if out == nil {
			respondServerError(w, http.StatusNotFound, "not found")
			return
		}
		respondJSON(w, out)
	}
}

func (d *Daemon) ok(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte("{}"))
}

// createInvoice answers POST invoices/ and adds an unconfirmed invoice
// to the history.
func (d *Daemon) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount walletmodel.Tokens `json:"amount"`
		Memo   string             `json:"memo"`
	}
	if err := jsoniter.NewDecoder(r.Body).Decode(&req); err != nil {
		respondServerError(w, http.StatusBadRequest, err.Error())
		return
	}
	var out walletmodel.CreatedInvoice
	_ = d.fix.W().In(func(f *fixtures) er.R {
		f.invoiceSeq++
		n := strconv.Itoa(f.invoiceSeq)
		out = walletmodel.CreatedInvoice{ID: "hash" + n, PaymentRequest: "lnpktest" + n}
		memo := req.Memo
		created := time.Now()
		f.history = append(f.history, walletmodel.Invoice{
			ID:             out.ID,
			Memo:           &memo,
			PaymentRequest: &out.PaymentRequest,
			Tokens:         req.Amount,
			CreatedAt:      &created,
		})
		return nil
	})
	respondJSON(w, out)
}

func (d *Daemon) realtime(w http.ResponseWriter, r *http.Request) {
	d.dials.Add(1)
	if d.reject.Load() || r.URL.Query().Get("secret_key") != d.SecretKey {
		respondServerError(w, http.StatusUnauthorized, "bad secret key")
		return
	}
	conn, errr := upgrader.Upgrade(w, r, nil)
	if errr != nil {
		log.Warnf("pldtest: upgrade failed: %v", errr)
		return
	}
	_ = d.conns.In(func(cs *[]*websocket.Conn) er.R {
		*cs = append(*cs, conn)
		return nil
	})
	go d.readLoop(conn)
}

func (d *Daemon) readLoop(conn *websocket.Conn) {
	defer d.removeConn(conn)
	for {
		mt, msg, errr := conn.ReadMessage()
		if errr != nil {
			return
		}
		if mt == websocket.TextMessage {
			_ = d.commands.In(func(cs *[][]byte) er.R {
				*cs = append(*cs, msg)
				return nil
			})
		}
	}
}

func (d *Daemon) removeConn(conn *websocket.Conn) {
	_ = d.conns.In(func(cs *[]*websocket.Conn) er.R {
		for i, c := range *cs {
			if c == conn {
				*cs = append((*cs)[:i], (*cs)[i+1:]...)
				break
			}
		}
		return nil
	})
	conn.Close()
}
