package main

import (
	stdtesting "testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-access/internal/app"
	_ "github.com/odyssey-erp/odyssey-access/testing"
)

func TestMainSkipsRuntimeInTestMode(t *stdtesting.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	require.NotPanics(t, main)
}
