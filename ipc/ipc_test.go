package ipc

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crucible-run/crucible/model"
)

type recordingHandler struct {
	kinds  []model.Kind
	phases []model.Phase
}

func (h *recordingHandler) ApplyResult(k model.Kind) { h.kinds = append(h.kinds, k) }
func (h *recordingHandler) ApplyPhase(p model.Phase) { h.phases = append(h.phases, p) }

func TestForwardAppliesEvents(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	require.NoError(t, enc.SendPhase(model.PhaseTestSetup))
	require.NoError(t, enc.SendResult(model.Pass))
	require.NoError(t, enc.SendPhase(model.PhaseTestRun))
	require.NoError(t, enc.SendResult(model.Fail))
	require.NoError(t, enc.SendResult(model.Error))

	var h recordingHandler
	require.NoError(t, Forward(&buf, &h))

	require.Equal(t, []model.Kind{model.Pass, model.Fail, model.Error}, h.kinds)
	require.Equal(t, []model.Phase{model.PhaseTestSetup, model.PhaseTestRun}, h.phases)
}

func TestForwardIgnoresUnknownEventTypes(t *testing.T) {
	input := `{"type":"heartbeat"}
{"type":"result","kind":1}
`
	var h recordingHandler
	require.NoError(t, Forward(strings.NewReader(input), &h))
	require.Equal(t, []model.Kind{model.Pass}, h.kinds)
}

func TestForwardReportsGarbage(t *testing.T) {
	var h recordingHandler
	err := Forward(strings.NewReader("not json at all\n"), &h)
	require.Error(t, err)
	require.Empty(t, h.kinds)
}

func TestForwardEmptyStream(t *testing.T) {
	var h recordingHandler
	require.NoError(t, Forward(strings.NewReader(""), &h))
	require.Empty(t, h.kinds)
	require.Empty(t, h.phases)
}
