package pldclient

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/pkt-cash/pldwallet/btcutil/er"
)

var Err er.ErrorType = er.NewErrorType("pldclient.Err")

var (
	ErrTransport = Err.CodeWithDetail("ErrTransport",
		"unable to reach the daemon")
	ErrHTTPStatus = Err.CodeWithDetail("ErrHTTPStatus",
		"daemon replied with an error status")
	ErrMalformedResponse = Err.CodeWithDetail("ErrMalformedResponse",
		"daemon reply could not be read")
	ErrBadURL = Err.CodeWithDetail("ErrBadURL",
		"invalid daemon url")

	// ErrClosedCleanly is returned by Conn.Read when the daemon closed the
	// realtime connection with a normal or going-away close frame.
	ErrClosedCleanly = Err.CodeWithDetail("ErrClosedCleanly",
		"realtime connection closed")
	// ErrClosedUncleanly is returned by Conn.Read for every other way the
	// realtime connection can end.
	ErrClosedUncleanly = Err.CodeWithDetail("ErrClosedUncleanly",
		"realtime connection terminated abnormally")
)

// serverError is the body of an error reply from the daemon.
type serverError struct {
	Message string   `json:"message,omitempty"`
	Stack   []string `json:"stack,omitempty"`
}

// checkForServerError extracts the daemon's error message from a reply body,
// nil if the body is not an error reply.
func checkForServerError(body []byte) er.R {
	var se serverError
	if err := jsoniter.Unmarshal(body, &se); err != nil || len(se.Message) == 0 {
		return nil
	}
	msg := "pld returned an error message: " + se.Message
	if len(se.Stack) > 0 {
		msg += "\n\npld stack trace:"
		for _, step := range se.Stack {
			msg += "\n" + step
		}
	}
	return er.New(msg)
}
