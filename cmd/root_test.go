// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snabbsalud/agendabot/internal/observability"
)

func TestVersionCommand(t *testing.T) {
	t.Cleanup(observability.ResetForTest)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"version"})

	err := rootCmd.Execute()
	require.NoError(t, err)
}

func TestConfigDefaultsLoad(t *testing.T) {
	t.Cleanup(observability.ResetForTest)

	require.NoError(t, initializeConfig())

	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())

	require.NotNil(t, cfg)
	assert.Equal(t, "https://agenda.redsalud.cl/patientPortal/identifyPatient", cfg.Portal.URL)
	assert.Equal(t, "Carnet de Identidad", cfg.Portal.DocumentType)
	assert.Positive(t, cfg.Booking.ContinueAttempts)
	assert.Positive(t, cfg.Sessions.TTL)
}
