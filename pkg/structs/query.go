package structs

const (
	queryLimitDefault = 100
	queryLimitMax     = 1000
)

// Query filters task searches.
type Query struct {
	Limit int `json:"limit,omitempty"`

	// Filters
	IDs        []string    `json:"ids,omitempty"`
	GroupKey   string      `json:"group_key,omitempty"`
	States     []TaskState `json:"states,omitempty"`
	ScheduleID string      `json:"schedule_id,omitempty"`
}

func (q *Query) Sanitize() {
	if q.Limit <= 0 {
		q.Limit = queryLimitDefault
	}
	if q.Limit > queryLimitMax {
		q.Limit = queryLimitMax
	}
	if len(q.IDs) == 0 {
		q.IDs = nil
	}
	if len(q.States) == 0 {
		q.States = nil
	}
}
