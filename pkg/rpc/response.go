package rpc

import (
	"github.com/evgeniums/hatn-sub006/pkg/dataunit"
	"github.com/evgeniums/hatn-sub006/pkg/herr"
)

const (
	fieldRespPayload uint32 = 1
	fieldRespError   uint32 = 2
)

func responseUnit(payload []byte, err error) *dataunit.Unit {
	u := dataunit.New("response_unit")
	if err != nil {
		u.SetString(fieldRespError, err.Error())
		return u
	}
	u.SetBytes(fieldRespPayload, payload)
	return u
}

func decodeResponseOutcome(body []byte) ([]byte, error) {
	u, err := dataunit.Unmarshal("response_unit", body)
	if err != nil {
		return nil, herr.Wrap(herr.InvalidInput, "decode rpc response", err)
	}
	if f, ok := u.Get(fieldRespError); ok {
		return nil, herr.New(herr.Transient, f.String)
	}
	if f, ok := u.Get(fieldRespPayload); ok {
		return f.Bytes, nil
	}
	return nil, nil
}
