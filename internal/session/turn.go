package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vzynszice/voice-interview-system/pkg/audio"
)

// Stage names one pipeline step of a turn.
type Stage string

// The stages of a turn, in execution order.
const (
	StageTranscribe    Stage = "transcribe"
	StageTranslate     Stage = "translate"
	StageGenerate      Stage = "generate"
	StageBackTranslate Stage = "back_translate"
	StageSynthesize    Stage = "synthesize"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageTranscribe, StageTranslate, StageGenerate, StageBackTranslate, StageSynthesize}

// StageStatus is the outcome of one stage within a turn.
type StageStatus int

const (
	// StagePending means the stage has not run (yet).
	StagePending StageStatus = iota
	// StageSucceeded means the first attempt succeeded.
	StageSucceeded
	// StageFailedFallback means the stage succeeded after at least one failed
	// attempt or provider.
	StageFailedFallback
	// StageFailedFatal means every provider of the stage failed.
	StageFailedFatal
	// StageSkipped means the stage did not apply, e.g. translation when both
	// languages are equal.
	StageSkipped
)

var stageStatusNames = []string{"pending", "succeeded", "failed_fallback", "failed_fatal", "skipped"}

// String implements [fmt.Stringer].
func (s StageStatus) String() string {
	if int(s) >= 0 && int(s) < len(stageStatusNames) {
		return stageStatusNames[s]
	}
	return fmt.Sprintf("StageStatus(%d)", int(s))
}

// MarshalText implements [encoding.TextMarshaler].
func (s StageStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements [encoding.TextUnmarshaler].
func (s *StageStatus) UnmarshalText(b []byte) error {
	for i, n := range stageStatusNames {
		if n == string(b) {
			*s = StageStatus(i)
			return nil
		}
	}
	return fmt.Errorf("session: unknown stage status %q", b)
}

// TurnStatus is the terminal status of a turn.
type TurnStatus int

const (
	// TurnPending is the status of a turn that has not finished. It is never
	// accepted by CompleteTurn.
	TurnPending TurnStatus = iota
	// TurnSucceeded means every applicable stage produced output and the
	// response was played.
	TurnSucceeded
	// TurnFailedFatal means a stage exhausted its ranking.
	TurnFailedFatal
	// TurnAborted means the turn was cancelled, usually by the session
	// ending.
	TurnAborted
)

var turnStatusNames = []string{"pending", "succeeded", "failed_fatal", "aborted"}

// String implements [fmt.Stringer].
func (s TurnStatus) String() string {
	if int(s) >= 0 && int(s) < len(turnStatusNames) {
		return turnStatusNames[s]
	}
	return fmt.Sprintf("TurnStatus(%d)", int(s))
}

// Terminal reports whether s may be stored by CompleteTurn.
func (s TurnStatus) Terminal() bool {
	return s == TurnSucceeded || s == TurnFailedFatal || s == TurnAborted
}

// MarshalText implements [encoding.TextMarshaler].
func (s TurnStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements [encoding.TextUnmarshaler].
func (s *TurnStatus) UnmarshalText(b []byte) error {
	for i, n := range turnStatusNames {
		if n == string(b) {
			*s = TurnStatus(i)
			return nil
		}
	}
	return fmt.Errorf("session: unknown turn status %q", b)
}

// StageOutcome records how one stage of a turn went.
type StageOutcome struct {
	Stage    Stage         `json:"stage"`
	Status   StageStatus   `json:"status"`
	Provider string        `json:"provider,omitempty"`
	Latency  time.Duration `json:"latency_ns,omitempty"`

	// Attempts is the number of provider calls made, including skips of
	// providers with an open circuit breaker.
	Attempts int    `json:"attempts,omitempty"`
	Error    string `json:"error,omitempty"`
}

// UtteranceInfo is the metadata of the utterance that opened a turn. The
// audio itself is not kept in the session log.
type UtteranceInfo struct {
	FirstSeq     uint64        `json:"first_seq"`
	LastSeq      uint64        `json:"last_seq"`
	Start        time.Duration `json:"start_ns"`
	End          time.Duration `json:"end_ns"`
	SpeechFrames int           `json:"speech_frames"`
}

// InfoFrom extracts the metadata of u.
func InfoFrom(u audio.Utterance) UtteranceInfo {
	return UtteranceInfo{
		FirstSeq:     u.FirstSeq,
		LastSeq:      u.LastSeq,
		Start:        u.Start,
		End:          u.End,
		SpeechFrames: u.SpeechFrames,
	}
}

// Turn is one question/answer exchange. Text fields are filled as stages
// complete, so a failed turn keeps whatever was produced before the failure.
type Turn struct {
	Index     int           `json:"index"`
	Utterance UtteranceInfo `json:"utterance"`
	Phase     string        `json:"phase,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	// Transcript is the candidate's answer in the primary language.
	Transcript string `json:"transcript,omitempty"`
	// RawTranscript is the recogniser's output when vocabulary correction
	// changed it.
	RawTranscript string `json:"raw_transcript,omitempty"`
	// Translated is Transcript in the target language. It is empty when the
	// languages are equal.
	Translated string `json:"translated,omitempty"`
	// Response is the interviewer's reply in the target language.
	Response string `json:"response,omitempty"`
	// Narrated is Response as spoken, in the primary language.
	Narrated string `json:"narrated,omitempty"`

	// Audio is the synthesized reply. It is not persisted.
	Audio audio.Clip `json:"-"`

	Stages []StageOutcome `json:"stages"`

	Status TurnStatus `json:"status"`
	// FailedAt names the pipeline state in which the turn failed or was
	// aborted.
	FailedAt string `json:"failed_at,omitempty"`
	Error    string `json:"error,omitempty"`

	// Err is the error behind Error, for errors.Is checks by in-process
	// callers. It is not persisted.
	Err error `json:"-"`
}

// Stage returns the outcome recorded for st.
func (t Turn) Stage(st Stage) (StageOutcome, bool) {
	for _, o := range t.Stages {
		if o.Stage == st {
			return o, true
		}
	}
	return StageOutcome{Stage: st}, false
}

// SetStage records o, replacing an earlier outcome for the same stage.
func (t *Turn) SetStage(o StageOutcome) {
	for i := range t.Stages {
		if t.Stages[i].Stage == o.Stage {
			t.Stages[i] = o
			return
		}
	}
	t.Stages = append(t.Stages, o)
}

// Duration returns the wall time between start and completion.
func (t Turn) Duration() time.Duration { return t.CompletedAt.Sub(t.StartedAt) }

// clone returns a copy that shares no slices with t.
func (t Turn) clone() Turn {
	t.Stages = append([]StageOutcome(nil), t.Stages...)
	return t
}

// String returns a one-line summary for logs.
func (t Turn) String() string {
	b, _ := json.Marshal(struct {
		Index  int    `json:"index"`
		Status string `json:"status"`
		Failed string `json:"failed_at,omitempty"`
	}{t.Index, t.Status.String(), t.FailedAt})
	return string(b)
}
