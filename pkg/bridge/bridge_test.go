package bridge_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evgeniums/hatn-sub006/pkg/bridge"
	"github.com/evgeniums/hatn-sub006/pkg/taskctx"
)

type echoRequest struct {
	Text string `json:"text"`
}

type echoResponse struct {
	Text string `json:"text"`
	Env  string `json:"env"`
}

func newTestBridge() *bridge.Bridge {
	envs := bridge.NewEnvRegistry(&bridge.Env{Name: "default", Value: "default-value"})
	envs.Register(&bridge.Env{Name: "tenantA", Value: "tenantA-value"})
	b := bridge.New(envs)

	b.RegisterBuilder("echo_request", func(data []byte) (any, error) {
		var req echoRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		return req, nil
	})

	b.RegisterHandler("greeter", "Echo", func(ctx *taskctx.Context, request any) (any, error) {
		req := request.(echoRequest)
		envSub := taskctx.MustGet[*bridge.EnvSubContext](ctx)
		return echoResponse{Text: req.Text, Env: envSub.Env.Name}, nil
	})

	return b
}

func TestExecRoutesToHandler(t *testing.T) {
	b := newTestBridge()
	out, err := b.Exec("greeter", "Echo", "echo_request", "", []byte(`{"text":"hi"}`))
	require.NoError(t, err)

	var resp echoResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	require.Equal(t, "hi", resp.Text)
	require.Equal(t, "default", resp.Env)
}

func TestExecResolvesNamedEnv(t *testing.T) {
	b := newTestBridge()
	out, err := b.Exec("greeter", "Echo", "echo_request", "tenantA", []byte(`{"text":"hi"}`))
	require.NoError(t, err)

	var resp echoResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	require.Equal(t, "tenantA", resp.Env)
}

func TestExecUnknownEnvFallsBackToDefault(t *testing.T) {
	b := newTestBridge()
	out, err := b.Exec("greeter", "Echo", "echo_request", "no-such-tenant", []byte(`{"text":"hi"}`))
	require.NoError(t, err)

	var resp echoResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	require.Equal(t, "default", resp.Env)
}

func TestExecUnknownService(t *testing.T) {
	b := newTestBridge()
	_, err := b.Exec("nope", "Echo", "echo_request", "", []byte(`{}`))
	require.Error(t, err)
}

func TestExecUnknownMessageType(t *testing.T) {
	b := newTestBridge()
	_, err := b.Exec("greeter", "Echo", "no_such_type", "", []byte(`{}`))
	require.Error(t, err)
}
