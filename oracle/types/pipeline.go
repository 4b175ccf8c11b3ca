package types

import "fmt"

// Stage names a step of the update pipeline.
type Stage int

const (
	StageStart Stage = iota
	StageLoadFeed
	StageLoadJobSpec
	StageCollectQuotes
	StageBuildInstruction
	StageResolveLookupTables
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageStart:
		return "Start"
	case StageLoadFeed:
		return "LoadFeed"
	case StageLoadJobSpec:
		return "LoadJobSpec"
	case StageCollectQuotes:
		return "CollectQuotes"
	case StageBuildInstruction:
		return "BuildInstruction"
	case StageResolveLookupTables:
		return "ResolveLookupTables"
	case StageDone:
		return "Done"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// PipelineError is the terminal Failed state of an update run.
type PipelineError struct {
	Stage Stage
	Err   error
}

func NewPipelineError(stage Stage, err error) *PipelineError {
	return &PipelineError{Stage: stage, Err: err}
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
