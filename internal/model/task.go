package model

// TaskStatus is the lifecycle state of a remote processing task.
type TaskStatus string

const (
	StatusCreated   TaskStatus = "CREATED"
	StatusRunning   TaskStatus = "RUNNING"
	StatusFailed    TaskStatus = "FAILED"
	StatusCompleted TaskStatus = "COMPLETED"
	StatusCanceled  TaskStatus = "CANCELED"
	StatusUnknown   TaskStatus = "UNKNOWN"
)

// NodeODM wire codes for task status.
const (
	codeCreated   = 10
	codeRunning   = 20
	codeFailed    = 30
	codeCompleted = 40
	codeCanceled  = 50
)

// StatusFromCode maps a NodeODM status code to a TaskStatus.
func StatusFromCode(code int) TaskStatus {
	switch code {
	case codeCreated:
		return StatusCreated
	case codeRunning:
		return StatusRunning
	case codeFailed:
		return StatusFailed
	case codeCompleted:
		return StatusCompleted
	case codeCanceled:
		return StatusCanceled
	default:
		return StatusUnknown
	}
}

// Terminal reports whether the status is one the task can never leave.
func (s TaskStatus) Terminal() bool {
	return s == StatusFailed || s == StatusCompleted || s == StatusCanceled
}

// TaskInfo is a snapshot of a remote task as reported by the node.
type TaskInfo struct {
	UUID        string     `json:"uuid"`
	Name        string     `json:"name"`
	Status      TaskStatus `json:"status"`
	LastError   string     `json:"last_error,omitempty"`
	Progress    float64    `json:"progress"`
	ImagesCount int        `json:"images_count"`
}

// NodeInfo describes the processing node, as returned by its info probe.
type NodeInfo struct {
	Version          string `json:"version"`
	Engine           string `json:"engine"`
	EngineVersion    string `json:"engineVersion"`
	MaxImages        int    `json:"maxImages"`
	MaxParallelTasks int    `json:"maxParallelTasks"`
	TaskQueueCount   int    `json:"taskQueueCount"`
}
