package pldclient

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkt-cash/pldwallet/btcutil/er"
	"github.com/pkt-cash/pldwallet/btcutil/lock"
	"github.com/pkt-cash/pldwallet/pktconfig/version"
	"github.com/pkt-cash/pldwallet/pktlog/log"
)

const closeWriteTimeout = time.Second

// RealtimeURL builds the url of the realtime socket, the secret key is
// passed as the secret_key query parameter.
func RealtimeURL(realtime, secretKey string) (string, er.R) {
	u, err := normalizeURL(realtime, "ws", "wss")
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("secret_key", secretKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Conn is a realtime connection to the daemon. Read must only be called from
// one goroutine, Send and Close may be called from any.
type Conn struct {
	ws *websocket.Conn
	wl lock.GenMutex[*websocket.Conn]
}

// DialRealtime opens the realtime socket at a url built by RealtimeURL.
func DialRealtime(ctx context.Context, rawURL string) (*Conn, er.R) {
	h := http.Header{}
	h.Set("User-Agent", version.UserAgent())
	ws, resp, errr := websocket.DefaultDialer.DialContext(ctx, rawURL, h)
	if errr != nil {
		status := ""
		if resp != nil {
			status = resp.Status
		}
		return nil, ErrTransport.New("dial realtime "+status, er.E(errr))
	}
	return &Conn{
		ws: ws,
		wl: lock.NewGenMutex(ws, "pldclient.Conn"),
	}, nil
}

func classifyClose(errr error) er.R {
	if ce, ok := errr.(*websocket.CloseError); ok {
		switch ce.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			return ErrClosedCleanly.New(ce.Error(), nil)
		}
		return ErrClosedUncleanly.New(ce.Error(), nil)
	}
	return ErrClosedUncleanly.New("", er.E(errr))
}

// Read blocks until the next text frame arrives. When the connection ends
// the error is ErrClosedCleanly or ErrClosedUncleanly.
func (c *Conn) Read() ([]byte, er.R) {
	for {
		mt, msg, errr := c.ws.ReadMessage()
		if errr != nil {
			return nil, classifyClose(errr)
		}
		if mt != websocket.TextMessage {
			log.Debugf("Ignoring realtime frame of type [%d]", mt)
			continue
		}
		return msg, nil
	}
}

// Send writes v as a JSON text frame.
func (c *Conn) Send(v interface{}) er.R {
	js, err := er.E1(jsoniter.Marshal(v))
	if err != nil {
		return err
	}
	return c.wl.In(func(ws **websocket.Conn) er.R {
		return er.E((*ws).WriteMessage(websocket.TextMessage, js))
	})
}

// Close sends a normal close frame and closes the connection.
func (c *Conn) Close() er.R {
	_ = c.wl.In(func(ws **websocket.Conn) er.R {
		return er.E((*ws).WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeWriteTimeout)))
	})
	return er.E(c.ws.Close())
}
