package job

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON renders Status as the externally-tagged encoding spec.md
// §6 requires: a bare string for the unit variants, an object keyed by
// the variant name for the variants that carry a payload.
func (s Status) MarshalJSON() ([]byte, error) {
	switch s.kind {
	case statusRunning:
		return json.Marshal("Running")
	case statusTerminated:
		return json.Marshal("Terminated")
	case statusCompleted:
		return json.Marshal(map[string]completedPayload{
			"Completed": {ExitCode: s.exitCode},
		})
	case statusError:
		return json.Marshal(map[string]errorPayload{
			"Error": {Msg: s.msg},
		})
	default:
		return nil, fmt.Errorf("marshal job status: unknown variant %d", s.kind)
	}
}

type completedPayload struct {
	ExitCode int32 `json:"exit_code"`
}

type errorPayload struct {
	Msg string `json:"msg"`
}

// UnmarshalJSON parses the externally-tagged encoding produced by
// MarshalJSON. It is primarily exercised by the CLI client when decoding
// a server response.
func (s *Status) UnmarshalJSON(data []byte) error {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		switch bare {
		case "Running":
			*s = StatusRunning()
			return nil
		case "Terminated":
			*s = StatusTerminated()
			return nil
		default:
			return fmt.Errorf("unmarshal job status: unknown bare variant %q", bare)
		}
	}

	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("unmarshal job status: %w", err)
	}
	if raw, ok := tagged["Completed"]; ok {
		var payload completedPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("unmarshal job status completed payload: %w", err)
		}
		*s = StatusCompleted(payload.ExitCode)
		return nil
	}
	if raw, ok := tagged["Error"]; ok {
		var payload errorPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("unmarshal job status error payload: %w", err)
		}
		*s = StatusError(payload.Msg)
		return nil
	}
	return fmt.Errorf("unmarshal job status: unrecognized tagged variant in %s", string(data))
}
