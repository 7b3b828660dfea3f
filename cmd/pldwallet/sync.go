package main

import (
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" // registers the profiling handlers on the default mux
	"os"

	"github.com/arl/statsviz"
	"github.com/pkt-cash/pldwallet/btcutil/er"
	"github.com/pkt-cash/pldwallet/pldclient"
	"github.com/pkt-cash/pldwallet/pktlog/log"
	"github.com/pkt-cash/pldwallet/wallet/walletdb"
	"github.com/pkt-cash/pldwallet/wallet/walletmodel"
	"github.com/pkt-cash/pldwallet/wallet/walletstate"
	"github.com/pkt-cash/pldwallet/wallet/walletsync"
	"golang.org/x/crypto/ssh/terminal"
)

type syncCmd struct{ a *app }

func (c *syncCmd) Execute(_ []string) error {
	return er.Native(c.a.sync())
}

func promptSecret() (string, er.R) {
	fmt.Fprint(os.Stderr, "Enter the secret key of the realtime socket: ")
	secret, errr := terminal.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if errr != nil {
		return "", er.Errorf("unable to read the secret key: %v", errr)
	}
	return string(secret), nil
}

func (a *app) dialer() (walletsync.DialFunc, er.R) {
	if a.cfg.Realtime == "" {
		return nil, nil
	}
	secret := a.cfg.SecretKey
	if secret == "" && a.cfg.PromptSecret {
		s, err := a.readSecret()
		if err != nil {
			return nil, err
		}
		secret = s
	}
	u, err := pldclient.RealtimeURL(a.cfg.Realtime, secret)
	if err != nil {
		return nil, err
	}
	return walletsync.DialURL(u), nil
}

// debugServers starts the --profile and --statsviz http servers, the
// returned function stops them.
func (a *app) debugServers() func() {
	var servers []*http.Server
	serve := func(what, port string, h http.Handler) {
		srv := &http.Server{Addr: net.JoinHostPort("", port), Handler: h}
		servers = append(servers, srv)
		log.Infof("%s server listening on %s", what, srv.Addr)
		go func() {
			if errr := srv.ListenAndServe(); errr != http.ErrServerClosed {
				log.Errorf("%s server: %v", what, errr)
			}
		}()
	}
	if a.cfg.Profile != "" {
		mux := http.NewServeMux()
		mux.Handle("/debug/pprof/", http.DefaultServeMux)
		mux.Handle("/", http.RedirectHandler("/debug/pprof/", http.StatusSeeOther))
		serve("Profile", a.cfg.Profile, mux)
	}
	if a.cfg.StatsViz != "" {
		mux := http.NewServeMux()
		statsviz.Register(mux)
		serve("StatsViz", a.cfg.StatsViz, mux)
	}
	return func() {
		for _, srv := range servers {
			_ = srv.Close()
		}
	}
}

// printer writes what the user needs to know about the wallet state. Its
// hooks run on the orchestrator's goroutine.
type printer struct {
	a     *app
	store *walletstate.Store

	lastSpendable walletmodel.Tokens
	lastPending   walletmodel.Tokens
	printed       bool
}

func (p *printer) changed(c walletstate.Change) {
	switch c.Field {
	case walletstate.FieldBalances, walletstate.FieldSnapshot:
		b, ok := p.store.Balances()
		if !ok {
			return
		}
		if p.printed && b.Spendable() == p.lastSpendable && b.Pending() == p.lastPending {
			return
		}
		p.printed = true
		p.lastSpendable, p.lastPending = b.Spendable(), b.Pending()
		fmt.Fprintf(p.a.out, "Balance: %s spendable, %s pending\n", p.lastSpendable, p.lastPending)
	case walletstate.FieldConnectivity:
		fmt.Fprintf(p.a.out, "Daemon: %s\n", p.store.Connectivity())
	}
}

func (p *printer) inserted(tx walletmodel.Transaction) {
	fmt.Fprintf(p.a.out, "New %s [%s]\n", tx.Kind(), tx.TxID())
}

func (p *printer) NotifyConfirmation(c walletsync.ConfirmationChange) {
	fmt.Fprintf(p.a.out, "The %s [%s] is now %s\n", c.What(), c.Key, c.Status())
}

func (p *printer) ReportError(err er.R) {
	log.Warnf("%s", err.Message())
}

// sync runs until the context ends.
func (a *app) sync() er.R {
	if err := a.setup(); err != nil {
		return err
	}
	client, err := pldclient.New(a.cfg.clientConfig())
	if err != nil {
		return err
	}
	dial, err := a.dialer()
	if err != nil {
		return err
	}

	store := walletstate.New()
	p := &printer{a: a, store: store}
	defer store.OnChange(p.changed).Release()
	defer store.OnInsert(p.inserted).Release()

	if a.cfg.SnapshotFile != "" {
		db, err := walletdb.Open(a.cfg.SnapshotFile)
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Warnf("Closing snapshot: %s", err.Message())
			}
		}()
		if snap, err := db.Load(); err == nil {
			store.Restore(snap)
			log.Infof("Restored [%d] transactions from [%s]",
				len(snap.Transactions), a.cfg.SnapshotFile)
		} else if !walletdb.ErrNoSnapshot.Is(err) {
			return err
		}
		defer db.Attach(store).Release()
	}

	defer a.debugServers()()

	scfg := a.cfg.syncConfig()
	scfg.Dial = dial
	scfg.Errors = p
	scfg.Notifier = p
	o := walletsync.New(client, store, scfg)
	o.Start(a.ctx)
	log.Infof("Syncing with [%s]", client.BaseURL())
	<-a.ctx.Done()
	log.Infof("Shutting down")
	o.Stop()
	return nil
}
