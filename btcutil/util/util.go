package util

import (
	"encoding/hex"
	"os"

	"github.com/pkt-cash/pldwallet/btcutil/er"
	"github.com/stretchr/testify/require"
)

func DecodeHex(s string) ([]byte, er.R) {
	o, e := hex.DecodeString(s)
	return o, er.E(e)
}

func Exists(path string) bool {
	_, errr := os.Stat(path)
	return !os.IsNotExist(errr)
}

func RequireErr(t require.TestingT, err er.R, msgAndArgs ...interface{}) {
	require.Error(t, er.Native(err), msgAndArgs...)
}

func RequireNoErr(t require.TestingT, err er.R, msgAndArgs ...interface{}) {
	require.NoError(t, er.Native(err), msgAndArgs...)
}

// RequireErrCode fails the test unless err carries the code.
func RequireErrCode(t require.TestingT, err er.R, code *er.ErrorCode, msgAndArgs ...interface{}) {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	if err == nil {
		require.Fail(t, "expected error ["+code.Header+"] but got nil", msgAndArgs...)
		return
	}
	if !code.Is(err) {
		require.Fail(t, "unexpected error code, got ["+err.Message()+"] want ["+code.Header+"]",
			msgAndArgs...)
	}
}

func Contains[T comparable](list []T, examples ...T) bool {
	for _, t := range list {
		for _, ex := range examples {
			if t == ex {
				return true
			}
		}
	}
	return false
}
