package models

import "strings"

const (
	StatusPending    = "pending"
	StatusInProgress = "inprogress"
	StatusSuccess    = "success"
	StatusCancelled  = "cancelled"
)

// Argument binds one activity parameter to a concrete URL for a work item.
type Argument struct {
	URL     string            `json:"url"`
	Verb    string            `json:"verb,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type WorkItemSpec struct {
	ActivityID string              `json:"activityId"`
	Arguments  map[string]Argument `json:"arguments"`
}

// WorkItemStatus is the platform's status snapshot of a work item. Unknown
// fields are not retained.
type WorkItemStatus struct {
	ID        string         `json:"id"`
	Status    string         `json:"status"`
	Progress  string         `json:"progress,omitempty"`
	ReportURL string         `json:"reportUrl,omitempty"`
	Stats     map[string]any `json:"stats,omitempty"`
}

func (s WorkItemStatus) Succeeded() bool {
	return s.Status == StatusSuccess
}

func (s WorkItemStatus) Failed() bool {
	return strings.Contains(s.Status, "failed")
}

// Terminal reports whether the platform will not change the status anymore.
func (s WorkItemStatus) Terminal() bool {
	return s.Succeeded() || s.Failed() || s.Status == StatusCancelled
}
