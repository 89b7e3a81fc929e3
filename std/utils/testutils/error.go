package utils

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

var testT *testing.T

func SetT(t *testing.T) {
	testT = t
}

func NoErr[T any](v T, err error) T {
	require.NoError(testT, err)
	return v
}

// Addr parses an IPv4 address literal, failing the test on error.
func Addr(s string) netip.Addr {
	return NoErr(netip.ParseAddr(s))
}
