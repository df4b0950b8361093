package updater

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTrigger(t *testing.T) {
	t.Parallel()

	for input, want := range map[string]Trigger{
		"":       TriggerStart,
		"start":  TriggerStart,
		" Boot ": TriggerBoot,
		"boot":   TriggerBoot,
	} {
		got, err := ParseTrigger(input)
		require.NoError(t, err, input)
		require.Equal(t, want, got, input)
	}

	_, err := ParseTrigger("periodic")
	require.ErrorIs(t, err, errUnknownTrigger)

	_, err = ParseTrigger("shutdown")
	require.ErrorIs(t, err, errUnknownTrigger)
}
