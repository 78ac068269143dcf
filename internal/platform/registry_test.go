package platform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testrig/internal/capability"
)

type stubAdapter struct {
	name string
}

func (s *stubAdapter) Name() string { return s.name }
func (s *stubAdapter) DeclareTemplates() []capability.Capability {
	return nil
}
func (s *stubAdapter) Prepare(ctx context.Context, spec capability.Capability) (Handle, error) {
	return nil, nil
}
func (s *stubAdapter) Deploy(ctx context.Context, h Handle) (capability.Capability, error) {
	return capability.Capability{}, nil
}
func (s *stubAdapter) Connect(ctx context.Context, h Handle) (ControlChannel, error) {
	return nil, nil
}
func (s *stubAdapter) Delete(ctx context.Context, h Handle) error { return nil }

func TestRegistry_PreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubAdapter{name: "azure"}))
	require.NoError(t, r.Register(&stubAdapter{name: "hyperv"}))
	require.NoError(t, r.Register(&stubAdapter{name: "ready"}))

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, "azure", all[0].Name())
	assert.Equal(t, "hyperv", all[1].Name())
	assert.Equal(t, "ready", all[2].Name())
}

func TestRegistry_RejectsDuplicateNames(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubAdapter{name: "ready"}))
	assert.Error(t, r.Register(&stubAdapter{name: "ready"}))
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubAdapter{name: "ready"}))

	a, ok := r.Get("ready")
	assert.True(t, ok)
	assert.Equal(t, "ready", a.Name())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}
