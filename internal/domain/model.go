// Package domain defines core business entities for aiosd.
//
// The domain layer is independent of infrastructure concerns and represents
// pure data structures shared between the daemon, the dispatch service and
// the CLI client.
package domain

// TaskType is the coarse category of a natural-language command, used to pick
// an appropriate model profile.
type TaskType string

const (
	TaskFileOps     TaskType = "file_ops"
	TaskProcessOps  TaskType = "process_ops"
	TaskNetworkOps  TaskType = "network_ops"
	TaskSystemOps   TaskType = "system_ops"
	TaskDevOps      TaskType = "dev_ops"
	TaskDataOps     TaskType = "data_ops"
	TaskSecurityOps TaskType = "security_ops"
	TaskGeneral     TaskType = "general"
)

// TaskTypes enumerates all task types in declaration order. Classification
// ties are broken by this order.
var TaskTypes = []TaskType{
	TaskFileOps, TaskProcessOps, TaskNetworkOps, TaskSystemOps,
	TaskDevOps, TaskDataOps, TaskSecurityOps, TaskGeneral,
}

// ModelProfile describes one configured backend model together with its
// accumulated performance statistics.
type ModelProfile struct {
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	APIURL           string     `json:"api_url"`
	MaxTokens        int        `json:"max_tokens"`
	Temperature      float64    `json:"temperature"`
	TimeoutSeconds   int        `json:"timeout"`
	TaskTypes        []TaskType `json:"task_types"`
	PerformanceScore float64    `json:"performance_score"`
	SuccessCount     int        `json:"success_count"`
	FailureCount     int        `json:"failure_count"`
	AvgResponseTime  float64    `json:"avg_response_time"`
	Priority         int        `json:"priority"`
	Enabled          bool       `json:"enabled"`
}

// SupportsTask reports whether the profile declares the given task type.
func (m ModelProfile) SupportsTask(task TaskType) bool {
	for _, t := range m.TaskTypes {
		if t == task {
			return true
		}
	}
	return false
}

// TotalRequests is the number of recorded outcomes for the profile.
func (m ModelProfile) TotalRequests() int {
	return m.SuccessCount + m.FailureCount
}

// SuccessRate is the fraction of successful outcomes, 0 when unused.
func (m ModelProfile) SuccessRate() float64 {
	total := m.TotalRequests()
	if total == 0 {
		return 0
	}
	return float64(m.SuccessCount) / float64(total)
}
