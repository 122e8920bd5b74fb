package connectivity

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_Online(t *testing.T) {
	tests := []struct {
		state State
		want  bool
	}{
		{State{true, true}, true},
		{State{true, false}, false},
		{State{false, true}, false},
		{State{}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.Online(), "%+v", tt.state)
	}
}

func TestSwitch(t *testing.T) {
	s := NewSwitch(State{})
	state, err := s.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, state.Online())

	s.SetOnline(true)
	state, _ = s.Check(context.Background())
	assert.True(t, state.Online())
}

func upInterfaces() ([]net.Interface, error) {
	return []net.Interface{{Name: "lo", Flags: net.FlagUp | net.FlagLoopback}, {Name: "eth0", Flags: net.FlagUp}}, nil
}

func TestHTTPProbe(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ok.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	t.Run("reachable", func(t *testing.T) {
		p := NewHTTPProbe(ok.URL, time.Second)
		p.interfaces = upInterfaces
		state, err := p.Check(context.Background())
		require.NoError(t, err)
		assert.True(t, state.Online())
	})

	t.Run("server error is unreachable", func(t *testing.T) {
		p := NewHTTPProbe(broken.URL, time.Second)
		p.interfaces = upInterfaces
		state, err := p.Check(context.Background())
		require.NoError(t, err)
		assert.True(t, state.IsConnected)
		assert.False(t, state.IsInternetReachable)
	})

	t.Run("only loopback is disconnected", func(t *testing.T) {
		p := NewHTTPProbe(ok.URL, time.Second)
		p.interfaces = func() ([]net.Interface, error) {
			return []net.Interface{{Name: "lo", Flags: net.FlagUp | net.FlagLoopback}}, nil
		}
		state, err := p.Check(context.Background())
		require.NoError(t, err)
		assert.False(t, state.IsConnected)
	})

	t.Run("interface error", func(t *testing.T) {
		p := NewHTTPProbe("", time.Second)
		p.interfaces = func() ([]net.Interface, error) { return nil, errors.New("netlink") }
		_, err := p.Check(context.Background())
		assert.Error(t, err)
	})

	t.Run("no url", func(t *testing.T) {
		p := NewHTTPProbe("", 0)
		p.interfaces = upInterfaces
		state, err := p.Check(context.Background())
		require.NoError(t, err)
		assert.True(t, state.Online())
	})
}
