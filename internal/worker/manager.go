package worker

import (
	"context"
	"log"
	"time"

	"chatvault/internal/redis"
	"chatvault/internal/store"
)

const defaultTitleTimeout = 15 * time.Second

// TitleStore is the part of the store the title workers write to.
type TitleStore interface {
	UpdateChatTitleByID(ctx context.Context, id, title string) store.BestEffort
}

// Manager schedules background title generation for new chats and applies
// the result as a best-effort update.
type Manager struct {
	store      TitleStore
	titler     Titler
	timeout    time.Duration
	dispatcher *Dispatcher
	pending    *pendingChats
	bus        *cancelBus
}

func NewManager(st TitleStore, titler Titler, cfg DispatcherConfig) *Manager {
	if titler == nil {
		titler = FirstTextTitler{}
	}
	m := &Manager{
		store:   st,
		titler:  titler,
		timeout: defaultTitleTimeout,
		pending: newPendingChats(),
	}
	m.dispatcher = NewDispatcher(cfg, m)
	return m
}

// UseRedis broadcasts user cancellations to every instance sharing client
// and applies the ones received from peers. A nil client is ignored.
func (m *Manager) UseRedis(client *redis.Client) {
	if !client.Enabled() {
		return
	}
	m.bus = newCancelBus(client)
	m.bus.listen(m.cancelLocal)
}

// ScheduleTitle queues a title job unless one is already pending for the
// chat. It never blocks; false means the job was not queued.
func (m *Manager) ScheduleTitle(task TitleTask) bool {
	if task.ChatID == "" {
		return false
	}
	if !m.pending.add(task.ChatID, task.UserID) {
		debugLog("[titles] chat %s already has a pending title job", task.ChatID)
		return false
	}
	t := task
	if !m.dispatcher.Submit(Job{Type: Title, Title: &t}) {
		m.pending.done(task.ChatID)
		return false
	}
	return true
}

// CancelUser drops the user's queued title jobs here and on peers.
func (m *Manager) CancelUser(userID string) {
	m.cancelLocal(userID)
	if m.bus != nil {
		m.bus.publish(userID)
	}
}

func (m *Manager) cancelLocal(userID string) {
	m.dispatcher.CancelUser(userID)
	m.pending.dropUser(userID)
}

// Close stops the workers. Queued jobs are discarded.
func (m *Manager) Close() {
	m.dispatcher.Close()
	if m.bus != nil {
		m.bus.close()
	}
}

func (m *Manager) handle(job Job) {
	if job.Type != Title || job.Title == nil {
		return
	}
	task := job.Title
	defer m.pending.done(task.ChatID)

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	title, err := m.titler.GenerateTitle(ctx, task.Message)
	if err != nil {
		log.Printf("[titles] failed to generate title for chat %s: %v", task.ChatID, err)
		return
	}
	if res := m.store.UpdateChatTitleByID(ctx, task.ChatID, title); !res.OK() {
		// already logged by the store
		return
	}
	debugLog("[titles] chat %s titled %q", task.ChatID, title)
}
