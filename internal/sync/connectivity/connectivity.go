// Package connectivity answers whether the remote store is worth trying.
package connectivity

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"
)

// State is the result of one probe.
type State struct {
	IsConnected         bool `json:"is_connected"`
	IsInternetReachable bool `json:"is_internet_reachable"`
}

// Online reports whether a drain may run: both flags must hold.
func (s State) Online() bool {
	return s.IsConnected && s.IsInternetReachable
}

// Probe reports current connectivity.
type Probe interface {
	Check(ctx context.Context) (State, error)
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) (State, error)

// Check calls f.
func (f ProbeFunc) Check(ctx context.Context) (State, error) {
	return f(ctx)
}

// Switch is a probe whose answer is set by hand, for hosts that receive
// connectivity changes as events and for tests.
type Switch struct {
	mu    sync.RWMutex
	state State
}

// NewSwitch creates a Switch reporting state.
func NewSwitch(state State) *Switch {
	return &Switch{state: state}
}

// Set replaces the reported state.
func (s *Switch) Set(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// SetOnline sets both flags to online.
func (s *Switch) SetOnline(online bool) {
	s.Set(State{IsConnected: online, IsInternetReachable: online})
}

// Check returns the current state.
func (s *Switch) Check(context.Context) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, nil
}

// HTTPProbe treats the host as connected when a non-loopback interface is
// up, and the internet as reachable when URL answers a HEAD request.
type HTTPProbe struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client

	// interfaces is replaced in tests.
	interfaces func() ([]net.Interface, error)
}

// NewHTTPProbe creates a probe against url. An empty url skips the
// reachability request and reports reachable whenever connected.
func NewHTTPProbe(url string, timeout time.Duration) *HTTPProbe {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPProbe{
		URL:        url,
		Timeout:    timeout,
		Client:     &http.Client{Timeout: timeout},
		interfaces: net.Interfaces,
	}
}

// Check runs the probe.
func (p *HTTPProbe) Check(ctx context.Context) (State, error) {
	var state State

	ifaces, err := p.interfaces()
	if err != nil {
		return state, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 {
			state.IsConnected = true
			break
		}
	}
	if !state.IsConnected {
		return state, nil
	}
	if p.URL == "" {
		state.IsInternetReachable = true
		return state, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return state, err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return state, nil
	}
	_ = resp.Body.Close()
	state.IsInternetReachable = resp.StatusCode < http.StatusInternalServerError
	return state, nil
}
