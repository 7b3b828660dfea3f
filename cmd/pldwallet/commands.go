package main

import (
	"bytes"
	"encoding/json"

	"github.com/pkt-cash/pldwallet/btcutil/er"
	"github.com/pkt-cash/pldwallet/pldclient"
	"github.com/pkt-cash/pldwallet/pktlog/log"
	"github.com/pkt-cash/pldwallet/wallet/walletmodel"
)

type command struct {
	name  string
	short string
	long  string
	data  interface{}
}

func commands(a *app) []command {
	return []command{
		{"sync", "Keep the wallet in sync with the daemon",
			"Polls the daemon and listens on the realtime socket, printing balance " +
				"and connectivity changes until interrupted.", &syncCmd{a: a}},
		{"balance", "Show the wallet balances", "", &balanceCmd{a: a}},
		{"history", "List the transaction history", "", &historyCmd{a: a}},
		{"connections", "List connected nodes with their channels and peers", "",
			&connectionsCmd{a: a}},
		{"decodepayreq", "Decode a payment request", "", &decodePayReqCmd{a: a}},
		{"addinvoice", "Create an invoice", "", &addInvoiceCmd{a: a}},
		{"pay", "Pay a payment request", "", &payCmd{a: a}},
		{"sendcoins", "Send coins to an on-chain address", "", &sendCoinsCmd{a: a}},
		{"addpeer", "Connect to a node", "", &addPeerCmd{a: a}},
		{"openchannel", "Open a channel to a connected node", "", &openChannelCmd{a: a}},
		{"closechannel", "Close a channel", "", &closeChannelCmd{a: a}},
	}
}

// printJSON writes v, which must be encodable by walletmodel.Encode, as
// indented JSON.
func (a *app) printJSON(v interface{}) er.R {
	js, err := walletmodel.Encode(v)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := er.E(json.Indent(&buf, js, "", "    ")); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, errr := a.out.Write(buf.Bytes())
	return er.E(errr)
}

// call runs one request against the daemon and prints the reply, if any.
func (a *app) call(f func(c *pldclient.Client) (interface{}, er.R)) error {
	if err := a.setup(); err != nil {
		return er.Native(err)
	}
	c, err := pldclient.New(a.cfg.clientConfig())
	if err != nil {
		return er.Native(err)
	}
	out, err := f(c)
	if err != nil {
		return er.Native(err)
	}
	if out == nil {
		return nil
	}
	return er.Native(a.printJSON(out))
}

type balanceCmd struct{ a *app }

func (c *balanceCmd) Execute(_ []string) error {
	return c.a.call(func(cl *pldclient.Client) (interface{}, er.R) {
		b, err := cl.Balances(c.a.ctx)
		if err != nil {
			return nil, err
		}
		log.Infof("Spendable [%s] pending [%s]", b.Spendable(), b.Pending())
		return b, nil
	})
}

type historyCmd struct{ a *app }

func (c *historyCmd) Execute(_ []string) error {
	return c.a.call(func(cl *pldclient.Client) (interface{}, er.R) {
		txns, err := cl.History(c.a.ctx)
		return txns, err
	})
}

type connectionsCmd struct{ a *app }

func (c *connectionsCmd) Execute(_ []string) error {
	return c.a.call(func(cl *pldclient.Client) (interface{}, er.R) {
		conns, err := cl.Connections(c.a.ctx)
		if err != nil {
			return nil, err
		}
		for _, conn := range conns {
			if ping, ok := conn.BestPing(); ok {
				log.Debugf("Node [%x] balance [%s] ping [%v]", conn.PublicKey, conn.Balance(), ping)
			}
		}
		return conns, nil
	})
}

type decodePayReqCmd struct {
	a    *app
	Args struct {
		PaymentRequest string `positional-arg-name:"payreq"`
	} `positional-args:"yes" required:"yes"`
}

func (c *decodePayReqCmd) Execute(_ []string) error {
	return c.a.call(func(cl *pldclient.Client) (interface{}, er.R) {
		pr, err := cl.DecodePaymentRequest(c.a.ctx, c.Args.PaymentRequest)
		return pr, err
	})
}

type addInvoiceCmd struct {
	a      *app
	Amount uint64 `long:"amount" required:"yes" description:"Amount in the smallest unit"`
	Memo   string `long:"memo" description:"Description shown to the payer"`
}

func (c *addInvoiceCmd) Execute(_ []string) error {
	return c.a.call(func(cl *pldclient.Client) (interface{}, er.R) {
		inv, err := cl.CreateInvoice(c.a.ctx, walletmodel.Tokens(c.Amount), c.Memo)
		return inv, err
	})
}

type payCmd struct {
	a    *app
	Args struct {
		PaymentRequest string `positional-arg-name:"payreq"`
	} `positional-args:"yes" required:"yes"`
}

func (c *payCmd) Execute(_ []string) error {
	return c.a.call(func(cl *pldclient.Client) (interface{}, er.R) {
		if err := cl.Pay(c.a.ctx, c.Args.PaymentRequest); err != nil {
			return nil, err
		}
		log.Infof("Payment sent")
		return nil, nil
	})
}

type sendCoinsCmd struct {
	a       *app
	Address string `long:"address" required:"yes" description:"Destination address"`
	Amount  uint64 `long:"amount" required:"yes" description:"Amount in the smallest unit"`
}

func (c *sendCoinsCmd) Execute(_ []string) error {
	return c.a.call(func(cl *pldclient.Client) (interface{}, er.R) {
		amt := walletmodel.Tokens(c.Amount)
		if err := cl.SendOnChain(c.a.ctx, c.Address, amt); err != nil {
			return nil, err
		}
		log.Infof("Sent [%s] to [%s]", amt, c.Address)
		return nil, nil
	})
}

type addPeerCmd struct {
	a      *app
	Host   string `long:"host" required:"yes" description:"host:port of the node"`
	PubKey string `long:"pubkey" required:"yes" description:"Hex public key of the node"`
}

func (c *addPeerCmd) Execute(_ []string) error {
	return c.a.call(func(cl *pldclient.Client) (interface{}, er.R) {
		return nil, cl.AddPeer(c.a.ctx, c.Host, c.PubKey)
	})
}

type openChannelCmd struct {
	a      *app
	PubKey string `long:"pubkey" required:"yes" description:"Hex public key of a connected node"`
}

func (c *openChannelCmd) Execute(_ []string) error {
	return c.a.call(func(cl *pldclient.Client) (interface{}, er.R) {
		return nil, cl.OpenChannel(c.a.ctx, c.PubKey)
	})
}

type closeChannelCmd struct {
	a    *app
	Args struct {
		ID string `positional-arg-name:"channel_id"`
	} `positional-args:"yes" required:"yes"`
}

func (c *closeChannelCmd) Execute(_ []string) error {
	return c.a.call(func(cl *pldclient.Client) (interface{}, er.R) {
		return nil, cl.CloseChannel(c.a.ctx, c.Args.ID)
	})
}
