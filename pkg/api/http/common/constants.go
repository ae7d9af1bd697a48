package common

const (
	// API_TASKS is used to submit tasks
	API_TASKS = "/api/v1/tasks"

	// API_TASKS_SEARCH is used to search tasks by ids, group key or state
	API_TASKS_SEARCH = "/api/v1/tasks/search"

	// API_TASKS_CLAIM is used by workers to claim ready tasks
	API_TASKS_CLAIM = "/api/v1/tasks/claim"

	// API_TASK is used to fetch a single task
	API_TASK = "/api/v1/tasks/{id}"

	// API_TASK_OUTPUT is used to fetch a terminal task's output
	API_TASK_OUTPUT = "/api/v1/tasks/{id}/output"

	// API_TASK_HEARTBEAT is used by workers to report liveness
	API_TASK_HEARTBEAT = "/api/v1/tasks/{id}/heartbeat"

	// API_TASK_SUCCEED / FAIL / CANCEL terminate a task
	API_TASK_SUCCEED = "/api/v1/tasks/{id}/succeed"
	API_TASK_FAIL    = "/api/v1/tasks/{id}/fail"
	API_TASK_CANCEL  = "/api/v1/tasks/{id}/cancel"

	// API_TASK_RESUBMIT creates a fresh attempt of a failed task
	API_TASK_RESUBMIT = "/api/v1/tasks/{id}/resubmit"

	// API_SCHEDULES is used to create schedules
	API_SCHEDULES = "/api/v1/schedules"

	// API_SCHEDULE is used to fetch or delete a single schedule
	API_SCHEDULE = "/api/v1/schedules/{name}"

	// API_SCHEDULE_PAUSE / RESUME toggle a schedule
	API_SCHEDULE_PAUSE  = "/api/v1/schedules/{name}/pause"
	API_SCHEDULE_RESUME = "/api/v1/schedules/{name}/resume"

	// API_SCHEDULE_RUN materializes a task for a schedule immediately
	API_SCHEDULE_RUN = "/api/v1/schedules/{name}/run"

	// API_FLEET_ROLLOUT makes a new image the active deployment
	API_FLEET_ROLLOUT = "/api/v1/fleet/rollout"

	// API_FLEET_NODE_REGISTER / IDLE are callbacks from node processes
	API_FLEET_NODE_REGISTER = "/api/v1/fleet/nodes/{id}/register"
	API_FLEET_NODE_IDLE     = "/api/v1/fleet/nodes/{id}/idle"

	// API_FLEET_CONFIG_OVERRIDE pins or reverts a routing group's node config
	API_FLEET_CONFIG_OVERRIDE = "/api/v1/fleet/config-overrides/{routing_id}"
)
