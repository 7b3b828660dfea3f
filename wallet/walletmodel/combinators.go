package walletmodel

import (
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkt-cash/pldwallet/btcutil/er"
	"github.com/pkt-cash/pldwallet/btcutil/util"
)

// Field combinators over a parsed JSON object.
//
// Required fields which are absent, null, or of the wrong type fail with
// ErrMissingField. Optional fields which are absent, null, or of the wrong
// type decode as nil.

func parse(data []byte) (jsoniter.Any, er.R) {
	if !jsoniter.Valid(data) {
		return nil, ErrMalformedJSON.Default()
	}
	return jsoniter.Get(data), nil
}

func parseObject(data []byte) (jsoniter.Any, er.R) {
	a, err := parse(data)
	if err != nil {
		return nil, err
	}
	if a.ValueType() != jsoniter.ObjectValue {
		return nil, ErrMalformedJSON.New("expected an object", nil)
	}
	return a, nil
}

func parseArray(data []byte) (jsoniter.Any, er.R) {
	a, err := parse(data)
	if err != nil {
		return nil, err
	}
	if a.ValueType() != jsoniter.ArrayValue {
		return nil, ErrMalformedJSON.New("expected an array", nil)
	}
	return a, nil
}

func field(o jsoniter.Any, key string) (jsoniter.Any, bool) {
	v := o.Get(key)
	switch v.ValueType() {
	case jsoniter.InvalidValue, jsoniter.NilValue:
		return nil, false
	}
	return v, true
}

func anyUint(v jsoniter.Any) (uint64, bool) {
	if v.ValueType() != jsoniter.NumberValue {
		return 0, false
	}
	// fractions, exponents and negatives are all rejected here
	n, err := strconv.ParseUint(v.ToString(), 10, 64)
	return n, err == nil
}

func reqString(o jsoniter.Any, key string) (string, er.R) {
	v, ok := field(o, key)
	if !ok || v.ValueType() != jsoniter.StringValue {
		return "", MissingField(key)
	}
	return v.ToString(), nil
}

func reqUint(o jsoniter.Any, key string) (uint64, er.R) {
	v, ok := field(o, key)
	if !ok {
		return 0, MissingField(key)
	}
	n, ok := anyUint(v)
	if !ok {
		return 0, MissingField(key)
	}
	return n, nil
}

func reqUint32(o jsoniter.Any, key string) (uint32, er.R) {
	n, err := reqUint(o, key)
	if err != nil {
		return 0, err
	}
	if n > 0xffffffff {
		return 0, MissingField(key)
	}
	return uint32(n), nil
}

func reqTokens(o jsoniter.Any, key string) (Tokens, er.R) {
	n, err := reqUint(o, key)
	return Tokens(n), err
}

func reqBool(o jsoniter.Any, key string) (bool, er.R) {
	v, ok := field(o, key)
	if !ok || v.ValueType() != jsoniter.BoolValue {
		return false, MissingField(key)
	}
	return v.ToBool(), nil
}

func decodeHex(key, s string) ([]byte, er.R) {
	b, err := util.DecodeHex(s)
	if err != nil {
		return nil, ErrMalformedHex.New(key, err)
	}
	return b, nil
}

func reqHex(o jsoniter.Any, key string) ([]byte, er.R) {
	s, err := reqString(o, key)
	if err != nil {
		return nil, err
	}
	return decodeHex(key, s)
}

func optString(o jsoniter.Any, key string) *string {
	v, ok := field(o, key)
	if !ok || v.ValueType() != jsoniter.StringValue {
		return nil
	}
	s := v.ToString()
	return &s
}

func optTokens(o jsoniter.Any, key string) *Tokens {
	v, ok := field(o, key)
	if !ok {
		return nil
	}
	n, ok := anyUint(v)
	if !ok {
		return nil
	}
	t := Tokens(n)
	return &t
}

func optBool(o jsoniter.Any, key string) *bool {
	v, ok := field(o, key)
	if !ok || v.ValueType() != jsoniter.BoolValue {
		return nil
	}
	b := v.ToBool()
	return &b
}

// optTime decodes a timestamp, one which does not parse is treated as absent.
func optTime(o jsoniter.Any, key string) *time.Time {
	s := optString(o, key)
	if s == nil {
		return nil
	}
	t, e := time.Parse(TimeLayout, *s)
	if e != nil {
		return nil
	}
	return &t
}

// optHex is absent if the field is absent, but malformed hex is an error.
func optHex(o jsoniter.Any, key string) ([]byte, er.R) {
	s := optString(o, key)
	if s == nil {
		return nil, nil
	}
	return decodeHex(key, *s)
}

// decodeElems decodes each element of an array, the first failure fails
// the whole array.
func decodeElems[T any](a jsoniter.Any, key string, dec func(jsoniter.Any) (T, er.R)) ([]T, er.R) {
	n := a.Size()
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		el := a.Get(i)
		if el.ValueType() != jsoniter.ObjectValue {
			return nil, MissingField(key + "[" + strconv.Itoa(i) + "]")
		}
		t, err := dec(el)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// optList decodes an optional array of objects, nil means absent.
func optList[T any](o jsoniter.Any, key string, dec func(jsoniter.Any) (T, er.R)) ([]T, er.R) {
	v, ok := field(o, key)
	if !ok || v.ValueType() != jsoniter.ArrayValue {
		return nil, nil
	}
	return decodeElems(v, key, dec)
}

// decodeArray decodes a top level JSON array.
func decodeArray[T any](data []byte, what string, dec func(jsoniter.Any) (T, er.R)) ([]T, er.R) {
	a, err := parseArray(data)
	if err != nil {
		return nil, err
	}
	return decodeElems(a, what, dec)
}

// decodeObject decodes a top level JSON object.
func decodeObject[T any](data []byte, dec func(jsoniter.Any) (T, er.R)) (T, er.R) {
	o, err := parseObject(data)
	if err != nil {
		var t T
		return t, err
	}
	return dec(o)
}
