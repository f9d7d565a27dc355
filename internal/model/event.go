package model

import "time"

// LifecycleEvent is published to the message broker on dataset lifecycle
// transitions (submission and terminal dispositions).
type LifecycleEvent struct {
	Dataset string    `json:"dataset"`
	UUID    string    `json:"uuid"`
	State   string    `json:"state"`            // marker state name, e.g. RUNNING, FAILED
	Detail  string    `json:"detail,omitempty"` // error text or artifact path
	Time    time.Time `json:"time"`
}
