package telemetry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skidbot-team/skidbot/go-controller/pkg/policy"
)

func TestConnectWithoutBrokerIsDisabled(t *testing.T) {
	m, err := Connect(Config{})
	require.NoError(t, err)
	require.Nil(t, m)
}

func TestNilMirrorIsSafe(t *testing.T) {
	var m *Mirror
	// The loop calls these unconditionally; a disabled mirror must be
	// inert, not a panic.
	m.RecordPayload(policy.SyncPayload{RunID: "r"})
	m.RecordForcedStop("test")
	m.Close()
}
