package opt

import (
	"fmt"
	"sort"
)

// Method names accepted by New.
const (
	MethodAdam   = "adam"
	MethodSSG    = "ssg"
	MethodMayfly = "mayfly"
)

// Config selects and configures an optimizer.
type Config struct {
	Method   string
	Schedule Schedule
	Adam     AdamConfig
	SSG      SSGConfig
	Mayfly   MayflyConfig
	OnEpoch  EpochHook
}

// Methods lists the registered method names in sorted order.
func Methods() []string {
	names := []string{MethodAdam, MethodSSG, MethodMayfly}
	sort.Strings(names)
	return names
}

// New builds the optimizer named by config.Method. Descent methods require a
// valid schedule.
func New(config Config) (Optimizer, error) {
	switch config.Method {
	case MethodAdam, MethodSSG:
		if err := config.Schedule.Validate(); err != nil {
			return nil, fmt.Errorf("invalid schedule: %w", err)
		}
	}

	switch config.Method {
	case MethodAdam:
		return NewAdam(config.Adam, config.Schedule).OnEpoch(config.OnEpoch), nil
	case MethodSSG:
		return NewSSG(config.SSG, config.Schedule).OnEpoch(config.OnEpoch), nil
	case MethodMayfly:
		return NewMayfly(config.Mayfly).OnEpoch(config.OnEpoch), nil
	default:
		return nil, fmt.Errorf("unknown method: %s (available: %v)", config.Method, Methods())
	}
}
