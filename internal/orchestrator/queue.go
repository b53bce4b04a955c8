package orchestrator

import (
	"container/list"

	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/agents"
)

// AgentJob is the work of one agent at one dread level
type AgentJob struct {
	Spec     *agents.Spec
	Requests []GenerationRequest

	// BlockedBy names a failed dependency; the job's requests fail unrun
	BlockedBy string
}

// JobQueue accumulates the agent jobs of one dependency wave
type JobQueue struct {
	pending *list.List // *AgentJob
}

// NewJobQueue creates a new job queue
func NewJobQueue() *JobQueue {
	return &JobQueue{
		pending: list.New(),
	}
}

// Enqueue adds a job to the queue
func (jq *JobQueue) Enqueue(job *AgentJob) {
	jq.pending.PushBack(job)
}

// Drain pops all pending jobs and returns them
func (jq *JobQueue) Drain() []*AgentJob {
	var jobs []*AgentJob
	for elem := jq.pending.Front(); elem != nil; elem = elem.Next() {
		jobs = append(jobs, elem.Value.(*AgentJob))
	}
	jq.pending.Init()
	return jobs
}

// HasJobs returns true if there are pending jobs
func (jq *JobQueue) HasJobs() bool {
	return jq.pending.Len() > 0
}

// Count returns the number of pending jobs
func (jq *JobQueue) Count() int {
	return jq.pending.Len()
}

// HasCritical returns true if a pending job belongs to a critical agent
func (jq *JobQueue) HasCritical() bool {
	for elem := jq.pending.Front(); elem != nil; elem = elem.Next() {
		job := elem.Value.(*AgentJob)
		if IsCritical(job.Spec.Name()) {
			return true
		}
	}
	return false
}
