// Package pldclient talks to the pld daemon, over its REST api and its
// realtime websocket.
package pldclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkt-cash/pldwallet/btcutil/er"
	"github.com/pkt-cash/pldwallet/pktconfig/version"
	"github.com/pkt-cash/pldwallet/pktlog/log"
	"github.com/pkt-cash/pldwallet/wallet/walletmodel"
	"github.com/sethgrid/pester"
	"golang.org/x/time/rate"
)

// APIPath is where the daemon serves the REST api.
const APIPath = "/v0/"

type Config struct {
	// DaemonURL is http://host:port, the scheme may be omitted.
	DaemonURL string

	// RequestTimeout is the timeout of each attempt, 0 means no timeout.
	RequestTimeout time.Duration

	// MaxRetries is the number of attempts made for each GET request, one
	// which fails with a transport error or a 5xx status is retried with
	// exponential backoff. Commands (POST and DELETE) are attempted once.
	MaxRetries int

	// MaxRequestRate limits requests per second, 0 means unlimited.
	MaxRequestRate float64

	// Backoff is the wait before retry n, nil means exponential with jitter.
	Backoff pester.BackoffStrategy

	// Transport is used for tests, nil means http.DefaultTransport.
	Transport http.RoundTripper
}

type Client struct {
	base    *url.URL
	hc      *pester.Client
	once    *http.Client
	limiter *rate.Limiter
}

// normalizeURL adds the scheme if it is missing.
func normalizeURL(raw, scheme string, others ...string) (*url.URL, er.R) {
	hasScheme := strings.HasPrefix(raw, scheme+"://")
	for _, s := range others {
		hasScheme = hasScheme || strings.HasPrefix(raw, s+"://")
	}
	if !hasScheme {
		raw = scheme + "://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, ErrBadURL.New(raw, er.E(err))
	}
	if u.Host == "" {
		return nil, ErrBadURL.New(raw, nil)
	}
	return u, nil
}

func New(cfg Config) (*Client, er.R) {
	base, err := normalizeURL(cfg.DaemonURL, "http", "https")
	if err != nil {
		return nil, err
	}
	base.Path = strings.TrimSuffix(base.Path, "/") + APIPath

	hc := pester.New()
	hc.Transport = cfg.Transport
	hc.Timeout = cfg.RequestTimeout
	hc.MaxRetries = cfg.MaxRetries
	if hc.MaxRetries < 1 {
		hc.MaxRetries = 1
	}
	hc.Backoff = cfg.Backoff
	if hc.Backoff == nil {
		hc.Backoff = pester.ExponentialJitterBackoff
	}
	hc.LogHook = func(e pester.ErrEntry) {
		log.Debugf("%s %s attempt %d failed: %v", e.Verb, e.URL, e.Attempt, e.Err)
	}

	limit := rate.Inf
	if cfg.MaxRequestRate > 0 {
		limit = rate.Limit(cfg.MaxRequestRate)
	}
	return &Client{
		base: base,
		hc:   hc,
		once: &http.Client{
			Transport: cfg.Transport,
			Timeout:   cfg.RequestTimeout,
		},
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// BaseURL is the url which endpoint paths are relative to.
func (c *Client) BaseURL() string {
	return c.base.String()
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) ([]byte, er.R) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, ErrTransport.New(method+" "+path, er.E(err))
	}
	var reqBody io.Reader
	if body != nil {
		js, err := er.E1(jsoniter.Marshal(body))
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(js)
	}
	u := *c.base
	u.Path += path
	req, errr := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if errr != nil {
		return nil, ErrBadURL.New(u.String(), er.E(errr))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	reqID := uuid.New().String()
	req.Header.Set("X-Request-Id", reqID)

	log.Tracef("[%s] %s %s", reqID, method, u.String())
	var resp *http.Response
	if method == http.MethodGet {
		resp, errr = c.hc.Do(req)
	} else {
		resp, errr = c.once.Do(req)
	}
	if errr != nil {
		return nil, ErrTransport.New(method+" "+path, er.E(errr))
	}
	defer resp.Body.Close()

	out, errr := io.ReadAll(resp.Body)
	if errr != nil {
		return nil, ErrTransport.New(method+" "+path, er.E(errr))
	}
	log.Tracef("[%s] %d, %d bytes", reqID, resp.StatusCode, len(out))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, ErrHTTPStatus.New(strconv.Itoa(resp.StatusCode)+" "+method+" "+path,
			checkForServerError(out))
	}
	return out, nil
}

func decode[T any](body []byte, err er.R, dec func([]byte) (T, er.R)) (T, er.R) {
	if err != nil {
		var t T
		return t, err
	}
	t, err := dec(body)
	if err != nil {
		return t, ErrMalformedResponse.New("", err)
	}
	return t, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, er.R) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Balances is GET balance/
func (c *Client) Balances(ctx context.Context) (walletmodel.Balances, er.R) {
	body, err := c.get(ctx, "balance/")
	return decode(body, err, walletmodel.DecodeBalances)
}

// History is GET history/
func (c *Client) History(ctx context.Context) ([]walletmodel.Transaction, er.R) {
	body, err := c.get(ctx, "history/")
	return decode(body, err, walletmodel.DecodeTransactions)
}

// ReceivedPayments is GET invoices/
func (c *Client) ReceivedPayments(ctx context.Context) ([]walletmodel.ReceivedPayment, er.R) {
	body, err := c.get(ctx, "invoices/")
	return decode(body, err, walletmodel.DecodeReceivedPayments)
}

// Connections is GET connections/
func (c *Client) Connections(ctx context.Context) ([]walletmodel.Connection, er.R) {
	body, err := c.get(ctx, "connections/")
	return decode(body, err, walletmodel.DecodeConnections)
}

// DecodePaymentRequest asks the daemon to decode a payment request.
func (c *Client) DecodePaymentRequest(ctx context.Context, encoded string) (walletmodel.PaymentRequestDetails, er.R) {
	body, err := c.get(ctx, "payment_request/"+url.PathEscape(encoded))
	return decode(body, err, walletmodel.DecodePaymentRequest)
}

// CreateInvoice creates an invoice for tokens, memo may be empty.
func (c *Client) CreateInvoice(ctx context.Context, tokens walletmodel.Tokens, memo string) (walletmodel.CreatedInvoice, er.R) {
	body, err := c.do(ctx, http.MethodPost, "invoices/", map[string]interface{}{
		"amount": tokens,
		"memo":   memo,
	})
	return decode(body, err, walletmodel.DecodeCreatedInvoice)
}

// Pay pays a lightning payment request.
func (c *Client) Pay(ctx context.Context, paymentRequest string) er.R {
	_, err := c.do(ctx, http.MethodPost, "payments/", map[string]interface{}{
		"payment_request": paymentRequest,
	})
	return err
}

// SendOnChain sends tokens to a chain address.
func (c *Client) SendOnChain(ctx context.Context, address string, tokens walletmodel.Tokens) er.R {
	_, err := c.do(ctx, http.MethodPost, "transactions/", map[string]interface{}{
		"address": address,
		"tokens":  tokens,
	})
	return err
}

// AddPeer connects to a node.
func (c *Client) AddPeer(ctx context.Context, host string, publicKey string) er.R {
	_, err := c.do(ctx, http.MethodPost, "peers/", map[string]interface{}{
		"host":       host,
		"public_key": publicKey,
	})
	return err
}

// OpenChannel opens a channel to a connected node.
func (c *Client) OpenChannel(ctx context.Context, partnerPublicKey string) er.R {
	_, err := c.do(ctx, http.MethodPost, "channels/", map[string]interface{}{
		"partner_public_key": partnerPublicKey,
	})
	return err
}

func (c *Client) CloseChannel(ctx context.Context, id string) er.R {
	_, err := c.do(ctx, http.MethodDelete, "channels/"+url.PathEscape(id), nil)
	return err
}
