package worker

import "chatvault/internal/models"

type JobType string

const (
	Title JobType = "title"
	Stop  JobType = "stop"
)

// TitleTask asks for a chat title derived from its first user message.
type TitleTask struct {
	UserID  string
	ChatID  string
	Message models.Message
}

type Job struct {
	Type  JobType
	Title *TitleTask
}

func (job Job) userID() string {
	if job.Type == Title && job.Title != nil {
		return job.Title.UserID
	}
	return ""
}

// handler runs one job on a worker goroutine.
type handler interface {
	handle(job Job)
}

type Worker struct {
	pool       *jobChannelPool
	handler    handler
	jobChannel chan Job
}

func NewWorker(pool *jobChannelPool, h handler) *Worker {
	return &Worker{
		pool:       pool,
		handler:    h,
		jobChannel: make(chan Job),
	}
}

// Start parks the worker in the idle list and serves jobs until it receives
// Stop or the pool closes.
func (w *Worker) Start() {
	go func() {
		for {
			if !w.pool.Release(w.jobChannel) {
				w.pool.retire(w.jobChannel)
				return
			}
			job := <-w.jobChannel
			if job.Type == Stop {
				w.pool.retire(w.jobChannel)
				return
			}
			w.handler.handle(job)
		}
	}()
}
