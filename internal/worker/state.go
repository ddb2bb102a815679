package worker

import "sync"

// pendingChats remembers which chats already have a title job queued or
// running, so repeated messages to a new chat schedule a single job.
type pendingChats struct {
	mu    sync.Mutex
	chats map[string]string // chat id -> user id
}

func newPendingChats() *pendingChats {
	return &pendingChats{chats: make(map[string]string)}
}

// add reports false when chatID is already pending.
func (p *pendingChats) add(chatID, userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.chats[chatID]; ok {
		return false
	}
	p.chats[chatID] = userID
	return true
}

func (p *pendingChats) done(chatID string) {
	p.mu.Lock()
	delete(p.chats, chatID)
	p.mu.Unlock()
}

func (p *pendingChats) isPending(chatID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.chats[chatID]
	return ok
}

func (p *pendingChats) dropUser(userID string) {
	p.mu.Lock()
	for chatID, owner := range p.chats {
		if owner == userID {
			delete(p.chats, chatID)
		}
	}
	p.mu.Unlock()
}
