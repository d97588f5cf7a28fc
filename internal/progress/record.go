package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind denotes the lifecycle step represented by a Record.
type Kind string

// Supported record kinds.
const (
	KindSessionStart Kind = "SESSION_START"
	KindStageStart   Kind = "STAGE_START"
	KindStageDone    Kind = "STAGE_DONE"
	KindStageError   Kind = "STAGE_ERROR"
	KindSessionEnd   Kind = "SESSION_END"
)

// Result summarizes how a session ended.
type Result string

// Session results carried by KindSessionEnd records.
const (
	ResultSuccess  Result = "success"
	ResultFailed   Result = "failed"
	ResultCanceled Result = "canceled"
)

// Record is one observed bridge lifecycle step.
type Record struct {
	// SessionID identifies the bridge instance using the 16-byte UUID form.
	SessionID [16]byte
	// TS is the emission time reported by the bridge.
	TS time.Time
	// Kind is the lifecycle step.
	Kind Kind
	// Stage is "a", "b" or "cleanup" for stage records.
	Stage string
	// Seq is the stream sequence number of the matching event. Session end
	// records repeat the last sequence number emitted.
	Seq uint64
	// Dur is the stage runtime for done/error records and the session
	// lifetime for end records.
	Dur time.Duration
	// Result is set on session end records.
	Result Result
	// Note holds error text for failures.
	Note string
}

// Validate performs coarse validation on Record payloads.
func (r Record) Validate() error {
	if r.SessionID == [16]byte{} {
		return errors.New("session id is required")
	}
	if r.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch r.Kind {
	case KindSessionStart:
	case KindStageStart, KindStageDone, KindStageError:
		if r.Stage == "" {
			return fmt.Errorf("%s requires stage", r.Kind)
		}
	case KindSessionEnd:
		switch r.Result {
		case ResultSuccess, ResultFailed, ResultCanceled:
		default:
			return fmt.Errorf("unknown session result %q", r.Result)
		}
	default:
		return fmt.Errorf("unknown kind %q", r.Kind)
	}
	if r.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// SessionUUID converts the binary session ID to uuid.UUID for repositories.
func (r Record) SessionUUID() uuid.UUID {
	return uuid.UUID(r.SessionID)
}

// UUIDToBytes encodes a uuid.UUID into the Record form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
