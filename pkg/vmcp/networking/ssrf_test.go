package networking

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedResolver map[string][]net.IPAddr

func (f fixedResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	return f[host], nil
}

func TestGuard_RejectsPrivateRange(t *testing.T) {
	t.Parallel()
	guard := NewGuardWithResolver(fixedResolver{
		"internal.example.com": {{IP: net.ParseIP("10.0.0.5")}},
	})

	err := guard.Check(context.Background(), "https://internal.example.com/mcp")

	require.Error(t, err)
}

func TestGuard_RejectsLoopbackLiteral(t *testing.T) {
	t.Parallel()
	guard := NewGuard()

	err := guard.Check(context.Background(), "http://127.0.0.1:8080/mcp")

	require.Error(t, err)
}

func TestGuard_RejectsIPv6LinkLocal(t *testing.T) {
	t.Parallel()
	guard := NewGuard()

	err := guard.Check(context.Background(), "http://[fe80::1]/mcp")

	require.Error(t, err)
}

func TestGuard_AllowsPublicAddress(t *testing.T) {
	t.Parallel()
	guard := NewGuardWithResolver(fixedResolver{
		"api.example.com": {{IP: net.ParseIP("203.0.113.10")}},
	})

	err := guard.Check(context.Background(), "https://api.example.com/mcp")

	assert.NoError(t, err)
}
