package workflow

import (
	"errors"
	"testing"
)

func TestStageClassification(t *testing.T) {
	tests := []struct {
		stage    Stage
		terminal bool
		runnable bool
	}{
		{StageReceive, false, true},
		{StageParse, false, true},
		{StagePatch, false, true},
		{StageValidate, false, true},
		{StageTriage, false, true},
		{StageStageExport, false, true},
		{StageHumanReview, false, false},
		{StageDone, true, false},
		{StageException, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			if !tt.stage.Valid() {
				t.Error("Valid() = false")
			}
			if got := tt.stage.Terminal(); got != tt.terminal {
				t.Errorf("Terminal() = %v, want %v", got, tt.terminal)
			}
			if got := tt.stage.Runnable(); got != tt.runnable {
				t.Errorf("Runnable() = %v, want %v", got, tt.runnable)
			}
		})
	}

	if Stage("ship").Valid() {
		t.Error("unknown stage reported valid")
	}
	if Stage("").Runnable() {
		t.Error("empty stage reported runnable")
	}
}

func TestStagesCoversClassification(t *testing.T) {
	if len(Stages()) != 9 {
		t.Fatalf("Stages() returned %d stages, want 9", len(Stages()))
	}
	for _, s := range Stages() {
		if !s.Valid() {
			t.Errorf("stage %s not valid", s)
		}
	}
}

func TestRetryable(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "transient stage error", err: transient(StageParse, cause), want: true},
		{name: "fatal stage error", err: fatal(StageParse, cause), want: false},
		{name: "wrapped fatal", err: errors.Join(errors.New("outer"), fatal(StageReceive, cause)), want: false},
		{name: "untagged error", err: cause, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStageErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := transient(StageValidate, cause)

	if !errors.Is(err, cause) {
		t.Error("wrapped cause not reachable through errors.Is")
	}

	var se *StageError
	if !errors.As(err, &se) {
		t.Fatal("errors.As failed to find StageError")
	}
	if se.Stage != StageValidate {
		t.Errorf("stage = %s, want %s", se.Stage, StageValidate)
	}
}
