package rpc_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/evgeniums/hatn-sub006/pkg/rpc"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, rpc.WriteFrame(&buf, []byte("hello")))
	body, err := rpc.ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), body)
}

func TestReadFrameRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	big := make([]byte, 8)
	// length prefix larger than MaxFrameSize
	big[0], big[1], big[2], big[3] = 0xff, 0xff, 0xff, 0xff
	buf.Write(big[:4])
	_, err := rpc.ReadFrame(&buf)
	require.Error(t, err)
}

func TestRequestWireOrder(t *testing.T) {
	req := rpc.NewRequest("svc", "GetThing", "topic1", "tenant1", rpc.High, time.Second, []byte("payload"))
	req.AuthHeader = []byte("auth")
	req.MethodAuth = []byte("methodauth")

	u := req.Marshal()
	data := u.Marshal()
	require.True(t, bytes.Contains(data, []byte("auth")))
	require.True(t, bytes.Contains(data, []byte("methodauth")))
	require.True(t, bytes.Contains(data, []byte("payload")))

	authAt := bytes.Index(data, []byte("auth"))
	methodAt := bytes.Index(data, []byte("methodauth"))
	payloadAt := bytes.Index(data, []byte("payload"))
	require.Less(t, authAt, methodAt)
	require.Less(t, methodAt, payloadAt)
}

func TestRequestDecodeRoundTrip(t *testing.T) {
	req := rpc.NewRequest("svc", "DoThing", "topic1", "tenant1", rpc.Normal, 0, []byte("body"))
	u := req.Marshal()

	decoded, err := rpc.DecodeRequest(u.Marshal())
	require.NoError(t, err)
	require.Equal(t, "svc", decoded.Service)
	require.Equal(t, "DoThing", decoded.Method)
	require.Equal(t, "topic1", decoded.Topic)
	require.Equal(t, "tenant1", decoded.Tenancy)
	require.Equal(t, []byte("body"), decoded.Payload)
}

func TestCancelBeforeSendNeverTransmits(t *testing.T) {
	req := rpc.NewRequest("svc", "Method", "t", "tn", rpc.Low, time.Second, nil)
	require.NoError(t, req.Cancel())
	require.Equal(t, rpc.Cancelled, req.State())

	_, err := req.Wait()
	require.Error(t, err)
}

func TestRequestTimesOut(t *testing.T) {
	req := rpc.NewRequest("svc", "Method", "t", "tn", rpc.Normal, 10*time.Millisecond, nil)
	_, err := req.Wait()
	require.Error(t, err)
	require.Equal(t, rpc.TimedOut, req.State())
}

func TestDispatcherRoutesByServiceMethod(t *testing.T) {
	d := rpc.NewDispatcher()
	d.Register("svc", "Echo", func(req *rpc.Request) ([]byte, error) {
		return req.Payload, nil
	})

	req := rpc.NewRequest("svc", "Echo", "t", "tn", rpc.Normal, 0, []byte("ping"))
	resp, err := d.Dispatch(req)
	require.NoError(t, err)
	require.Equal(t, []byte("ping"), resp)
}

func TestDispatcherUnknownMethod(t *testing.T) {
	d := rpc.NewDispatcher()
	req := rpc.NewRequest("svc", "Missing", "t", "tn", rpc.Normal, 0, nil)
	_, err := d.Dispatch(req)
	require.Error(t, err)
}

func TestSessionRefreshCoalesces(t *testing.T) {
	s := rpc.NewSession("sess1")

	calls := 0
	block := make(chan struct{})
	started := make(chan struct{})
	slowRefresh := func() ([]byte, error) {
		calls++
		close(started)
		<-block
		return []byte("token1"), nil
	}

	results := make(chan []byte, 2)
	go func() {
		h, _ := s.Refresh(slowRefresh)
		results <- h
	}()
	<-started
	go func() {
		h, _ := s.Refresh(func() ([]byte, error) { return []byte("should-not-be-called"), nil })
		results <- h
	}()

	close(block)
	h1 := <-results
	h2 := <-results
	require.Equal(t, 1, calls)
	require.Equal(t, []byte("token1"), h1)
	require.Equal(t, []byte("token1"), h2)
}

func TestSessionValidAuthHeaderSkipsRefresh(t *testing.T) {
	s := rpc.NewSession("sess1")
	calls := 0
	fn := func() ([]byte, error) { calls++; return []byte("tok"), nil }

	_, err := s.Refresh(fn)
	require.NoError(t, err)
	_, err = s.Refresh(fn)
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}
