package voice

import (
	"context"

	"github.com/looplab/fsm"
)

// Pipeline stages. Strictly ordered: no stage may emit before its
// predecessor finished, and a turn ends in exactly one of finished or
// failed.
const (
	stagePending      = "pending"
	stageTranscribing = "transcribing"
	stageCompleting   = "completing"
	stageSynthesizing = "synthesizing"
	stageFinished     = "finished"
	stageFailed       = "failed"
)

const (
	stageEventTranscribe = "transcribe"
	stageEventComplete   = "complete"
	stageEventSynthesize = "synthesize"
	stageEventFinish     = "finish"
	stageEventFail       = "fail"
)

// turnMachine tracks one voice turn through the pipeline. Using an
// explicit state machine keeps the single-terminal invariant
// structural instead of a pile of boolean flags.
type turnMachine struct {
	fsm *fsm.FSM
}

func newTurnMachine() *turnMachine {
	return &turnMachine{
		fsm: fsm.NewFSM(
			stagePending,
			fsm.Events{
				{Name: stageEventTranscribe, Src: []string{stagePending}, Dst: stageTranscribing},
				{Name: stageEventComplete, Src: []string{stageTranscribing}, Dst: stageCompleting},
				{Name: stageEventSynthesize, Src: []string{stageCompleting}, Dst: stageSynthesizing},
				{Name: stageEventFinish, Src: []string{stageSynthesizing}, Dst: stageFinished},
				{Name: stageEventFail, Src: []string{stageTranscribing, stageCompleting, stageSynthesizing}, Dst: stageFailed},
			},
			fsm.Callbacks{},
		),
	}
}

// advance moves the turn forward. Transitions are linear so an error
// here is a programming mistake; it panics rather than corrupting the
// stage ordering.
func (t *turnMachine) advance(ctx context.Context, event string) {
	if err := t.fsm.Event(ctx, event); err != nil {
		panic("voice turn stage violation: " + err.Error())
	}
}

func (t *turnMachine) stage() string {
	return t.fsm.Current()
}
