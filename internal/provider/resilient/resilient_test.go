package resilient

import (
	"context"
	"testing"

	"github.com/routa-dev/routa/internal/provider"
	"github.com/routa-dev/routa/internal/routaerr"
	"github.com/routa-dev/routa/internal/store"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	calls   int
	results []error // nil entries mean success
}

func (s *scriptedProvider) nextErr() error {
	idx := s.calls
	s.calls++
	if idx >= len(s.results) {
		return nil
	}
	return s.results[idx]
}

func (s *scriptedProvider) Run(ctx context.Context, role provider.Role, agentID, prompt string) (string, error) {
	if err := s.nextErr(); err != nil {
		return "", err
	}
	return "ok", nil
}
func (s *scriptedProvider) RunStreaming(ctx context.Context, role provider.Role, agentID, prompt string, onChunk provider.OnChunk) (string, error) {
	return s.Run(ctx, role, agentID, prompt)
}
func (s *scriptedProvider) IsHealthy(agentID string) bool       { return true }
func (s *scriptedProvider) Interrupt(agentID string)            {}
func (s *scriptedProvider) Cleanup(agentID string)              {}
func (s *scriptedProvider) Shutdown()                           {}
func (s *scriptedProvider) Capabilities() provider.Capabilities { return provider.Capabilities{Name: "scripted"} }

func fastBackoffWrapper(inner provider.Provider) *Wrapper {
	w := New(inner, store.NewMemoryConversationStore(), nil)
	w.backoff = BackoffPolicy{BaseDelay: 0, Multiplier: 1, MaxAttempts: 3}
	return w
}

func TestResilient_RetriesTransientThenSucceeds(t *testing.T) {
	inner := &scriptedProvider{results: []error{routaerr.Transient(nil), nil}}
	w := fastBackoffWrapper(inner)

	out, err := w.Run(context.Background(), store.RoleCrafter, "a1", "do it")
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.Equal(t, 2, inner.calls)
}

func TestResilient_FatalErrorFailsFast(t *testing.T) {
	inner := &scriptedProvider{results: []error{routaerr.Validation("bad input")}}
	w := fastBackoffWrapper(inner)

	_, err := w.Run(context.Background(), store.RoleCrafter, "a1", "do it")
	require.Error(t, err)
	require.Equal(t, 1, inner.calls, "validation errors must not be retried")
}

func TestResilient_ExhaustsRetriesAndSurfacesError(t *testing.T) {
	conv := store.NewMemoryConversationStore()
	inner := &scriptedProvider{results: []error{
		routaerr.Transient(nil), routaerr.Transient(nil), routaerr.Transient(nil),
	}}
	w := New(inner, conv, nil)
	w.backoff = BackoffPolicy{BaseDelay: 0, Multiplier: 1, MaxAttempts: 3}

	_, err := w.Run(context.Background(), store.RoleCrafter, "a1", "do it")
	require.Error(t, err)

	msgs, _ := conv.GetConversation(context.Background(), "a1")
	require.Len(t, msgs, 1)
	require.Contains(t, msgs[0].Content, "ERROR")
}

func TestResilient_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	// 5 single-attempt-exhausting failures trip the breaker; the 6th call
	// never reaches the inner provider.
	inner := &scriptedProvider{}
	w := fastBackoffWrapper(inner)
	w.backoff.MaxAttempts = 1

	for i := 0; i < 5; i++ {
		inner.results = append(inner.results, routaerr.Transient(nil))
	}

	for i := 0; i < 5; i++ {
		_, err := w.Run(context.Background(), store.RoleCrafter, "breaker-agent", "x")
		require.Error(t, err)
	}

	callsBefore := inner.calls
	_, err := w.Run(context.Background(), store.RoleCrafter, "breaker-agent", "x")
	require.ErrorIs(t, err, routaerr.ErrCircuitOpen)
	require.Equal(t, callsBefore, inner.calls, "circuit-open call must not reach the inner provider")
}
