package domain

import (
	"encoding/json"
	"time"
)

// JobTopic names a queue. Each topic has its own worker pool.
type JobTopic string

const (
	TopicEmbedding      JobTopic = "embedding"
	TopicSentiment      JobTopic = "sentiment"
	TopicLanguage       JobTopic = "language-detection"
	TopicCrawling       JobTopic = "crawling"
	TopicReindex        JobTopic = "reindex"
	TopicBatchEmbedding JobTopic = "batch-embedding"
)

// AllTopics lists every known job topic.
var AllTopics = []JobTopic{
	TopicEmbedding,
	TopicSentiment,
	TopicLanguage,
	TopicCrawling,
	TopicReindex,
	TopicBatchEmbedding,
}

// ValidJobTopic reports whether t names a known topic.
func ValidJobTopic(t JobTopic) bool {
	for _, topic := range AllTopics {
		if t == topic {
			return true
		}
	}
	return false
}

// JobStatus is the state-machine state of a queued job.
// QUEUED -> ACTIVE -> {COMPLETED | QUEUED (retry after backoff) | DEAD}
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusDead      JobStatus = "dead"
)

// Job is one durable unit of background work.
type Job struct {
	ID          string
	Topic       JobTopic
	Name        string
	Payload     json.RawMessage
	Priority    int
	Status      JobStatus
	Attempts    int
	MaxAttempts int
	LastError   string
	RunAt       time.Time
	CreatedAt   time.Time
	FinishedAt  *time.Time
}

// Terminal reports whether the job will not run again.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusDead
}
