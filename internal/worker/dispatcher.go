package worker

import (
	"container/list"
	"log"
	"sync"
	"time"
)

type userQueue struct {
	jobs     []Job
	enqueued bool
}

// Dispatcher fans jobs out to the worker pool, one job per user at a time in
// least-recently-served order, so a single busy user cannot starve others.
type Dispatcher struct {
	pool     *jobChannelPool
	JobQueue chan Job // interface for outer jobs get in the dispatcher

	mu        sync.Mutex
	queues    map[string]*userQueue // job queue for each user
	ready     *list.List            // LRU queue storing user IDs
	positions map[string]*list.Element

	quit chan struct{}
	once sync.Once
}

type DispatcherConfig struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
}

func newDispatcherQueues() *Dispatcher {
	return &Dispatcher{
		queues:    make(map[string]*userQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		quit:      make(chan struct{}),
	}
}

func NewDispatcher(cfg DispatcherConfig, h handler) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	d := newDispatcherQueues()
	d.pool = newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.IdleTimeout, h)
	d.JobQueue = make(chan Job, cfg.QueueSize)

	for i := 0; i < cfg.MinWorkers; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// Submit queues a job without blocking. A full queue drops the job.
func (d *Dispatcher) Submit(job Job) bool {
	select {
	case <-d.quit:
		return false
	default:
	}
	select {
	case d.JobQueue <- job:
		return true
	default:
		log.Printf("[dispatcher] queue full, dropping %s job for user %s", job.Type, job.userID())
		return false
	}
}

func (d *Dispatcher) run() {
	for {
		job, ok := d.next()
		if !ok {
			select {
			case job := <-d.JobQueue: // block until there is work
				d.enqueueJob(job)
			case <-d.quit:
				return
			}
			continue
		}

		workerChan := d.pool.acquire()
		if workerChan == nil {
			return
		}
		debugLog("[dispatcher] assign job %s for user %s to worker-%d", job.Type, job.userID(), d.pool.workerID(workerChan))
		workerChan <- job

		// pick up a new job without blocking so its user joins the rotation
		select {
		case job := <-d.JobQueue:
			d.enqueueJob(job)
		default:
		}
	}
}

// CancelUser drops every pending job of the user.
func (d *Dispatcher) CancelUser(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.queues, userID)
	if elem, ok := d.positions[userID]; ok {
		d.ready.Remove(elem)
		delete(d.positions, userID)
	}
}

// Close stops dispatching and shuts the worker pool down. Pending jobs are
// discarded.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.quit)
		if d.pool != nil {
			d.pool.close()
		}
	})
}

func (d *Dispatcher) enqueueJob(job Job) {
	userID := job.userID()

	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[userID]
	if q == nil {
		q = &userQueue{}
		d.queues[userID] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		return
	}
	q.enqueued = true
	d.positions[userID] = d.ready.PushBack(userID)
}

// next pops one job of the user at the front of the LRU list and moves that
// user to the back, or removes it when it has nothing left.
func (d *Dispatcher) next() (Job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	elem := d.ready.Front()
	if elem == nil {
		return Job{}, false
	}
	userID := elem.Value.(string)
	q := d.queues[userID]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		delete(d.queues, userID)
		d.ready.Remove(elem)
		delete(d.positions, userID)
	} else {
		d.ready.MoveToBack(elem)
	}
	return job, true
}
