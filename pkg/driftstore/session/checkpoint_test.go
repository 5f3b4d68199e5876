package session_test

import (
	"testing"

	"github.com/neuraldrift/driftstore/pkg/driftstore/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRoundTrip(t *testing.T) {
	cp := session.New("plan-1")
	cp.DirtyKeys = []string{"agents", "facts"}
	cp.StepIndex = 3

	data, err := cp.Marshal()
	require.NoError(t, err)

	restored, err := session.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, "plan-1", restored.PlanID)
	assert.Equal(t, 3, restored.StepIndex)
	assert.Equal(t, []string{"agents", "facts"}, restored.DirtyKeys)
	assert.Equal(t, session.Version, restored.Version)
	assert.False(t, restored.Closed)
}

func TestUnmarshalRejectsBadEnvelopes(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not_json", `{"plan_id":`},
		{"missing_version", `{"plan_id": "p1", "step_index": 0}`},
		{"zero_version", `{"version": 0, "plan_id": "p1"}`},
		{"missing_plan", `{"version": 1, "step_index": 0}`},
		{"negative_step", `{"version": 1, "plan_id": "p1", "step_index": -2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := session.Unmarshal([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestUnmarshalNormalizesNilDirtyKeys(t *testing.T) {
	cp, err := session.Unmarshal([]byte(`{"version": 1, "plan_id": "p1"}`))
	require.NoError(t, err)
	assert.NotNil(t, cp.DirtyKeys)
	assert.Empty(t, cp.DirtyKeys)
}

func TestIsDirty(t *testing.T) {
	cp := session.New("plan-1")
	assert.False(t, cp.IsDirty("facts"))
	cp.DirtyKeys = []string{"facts"}
	assert.True(t, cp.IsDirty("facts"))
	assert.False(t, cp.IsDirty("agents"))
}
