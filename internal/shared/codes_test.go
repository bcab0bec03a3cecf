package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeCodes(t *testing.T) {
	require.Equal(t, "P1", NormalizeCode("  p1 "))
	require.Equal(t, []string{"P1", "P2"}, NormalizeCodes([]string{"p2", "P1", " p1", ""}))
	require.Empty(t, NormalizeCodes(nil))
}
