package scheduler

import (
	"fmt"

	"github.com/quayside/flotilla/pkg/errors"
	"github.com/quayside/flotilla/pkg/structs"
)

func validateTaskSpec(spec *structs.TaskSpec) error {
	if spec == nil {
		return fmt.Errorf("%w task spec required", errors.ErrInvalidArg)
	}
	if spec.Name == "" || len(spec.Name) > maxNameLength {
		return fmt.Errorf("%w task name must be 1-%d chars", errors.ErrInvalidArg, maxNameLength)
	}
	if spec.GroupKey == "" || len(spec.GroupKey) > maxGroupLength {
		return fmt.Errorf("%w group key must be 1-%d chars", errors.ErrInvalidArg, maxGroupLength)
	}
	if len(spec.Payload) > maxPayloadLength {
		return fmt.Errorf("%w payload exceeds %d bytes", errors.ErrMaxExceeded, maxPayloadLength)
	}
	if spec.RetryMax < 0 || spec.RetryCount < 0 || spec.RetryCount > spec.RetryMax {
		return fmt.Errorf("%w retry count %d must be 0 <= count <= max (%d)", errors.ErrInvalidArg, spec.RetryCount, spec.RetryMax)
	}
	if spec.CreatedToStartedTimeoutSecs <= 0 || spec.StartedToCompletedTimeoutSecs <= 0 || spec.HeartbeatTimeoutSecs <= 0 {
		return fmt.Errorf("%w all task timeouts must be positive", errors.ErrInvalidArg)
	}
	return nil
}

func validateScheduleSpec(spec *structs.ScheduleSpec) error {
	if spec == nil {
		return fmt.Errorf("%w schedule spec required", errors.ErrInvalidArg)
	}
	if spec.Name == "" || len(spec.Name) > maxNameLength {
		return fmt.Errorf("%w schedule name must be 1-%d chars", errors.ErrInvalidArg, maxNameLength)
	}
	if spec.GroupKey == "" || len(spec.GroupKey) > maxGroupLength {
		return fmt.Errorf("%w group key must be 1-%d chars", errors.ErrInvalidArg, maxGroupLength)
	}
	if len(spec.Payload) > maxPayloadLength {
		return fmt.Errorf("%w payload exceeds %d bytes", errors.ErrMaxExceeded, maxPayloadLength)
	}
	if spec.FrequencySecs < minFrequencySecs {
		return fmt.Errorf("%w frequency must be at least %d seconds", errors.ErrInvalidArg, minFrequencySecs)
	}
	if spec.RetryMax < 0 {
		return fmt.Errorf("%w retry max must be >= 0", errors.ErrInvalidArg)
	}
	if spec.CreatedToStartedTimeoutSecs <= 0 || spec.StartedToCompletedTimeoutSecs <= 0 || spec.HeartbeatTimeoutSecs <= 0 {
		return fmt.Errorf("%w all task timeouts must be positive", errors.ErrInvalidArg)
	}
	return nil
}
