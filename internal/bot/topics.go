package bot

import (
	"context"
	"errors"
	"sync"
	"unicode/utf8"

	"regbot/internal/model"
	"regbot/internal/repository"
)

// CancellationTopic collects registration and event cancellation alerts.
const CancellationTopic = "Registration Cancellations"

const maxTopicName = 128

// TopicStore persists forum topic threads so they survive restarts.
type TopicStore interface {
	GetForumTopic(ctx context.Context, chatID int64, name string) (*model.ForumTopic, error)
	SaveForumTopic(ctx context.Context, t model.ForumTopic) error
}

// Topics posts into named forum topics of the admin group, creating them on
// first use. When a topic cannot be created the message goes to the main
// thread instead.
type Topics struct {
	msgr  Messenger
	store TopicStore
	mu    sync.Mutex
}

// NewTopics constructs Topics.
func NewTopics(msgr Messenger, store TopicStore) *Topics {
	return &Topics{msgr: msgr, store: store}
}

func topicName(name string) string {
	if utf8.RuneCountInString(name) <= maxTopicName {
		return name
	}
	return string([]rune(name)[:maxTopicName])
}

// ThreadID returns the thread of the named topic, or 0 for the main thread.
func (t *Topics) ThreadID(ctx context.Context, chatID int64, name string) int {
	name = topicName(name)
	t.mu.Lock()
	defer t.mu.Unlock()

	topic, err := t.store.GetForumTopic(ctx, chatID, name)
	if err == nil {
		return topic.ThreadID
	}
	if !errors.Is(err, repository.ErrNotFound) {
		logf(ctx, "error loading topic %q: %v", name, err)
		return 0
	}

	threadID, err := t.msgr.CreateForumTopic(chatID, name)
	if err != nil {
		logf(ctx, "error creating topic %q in %d: %v", name, chatID, err)
		return 0
	}
	if err := t.store.SaveForumTopic(ctx, model.ForumTopic{ChatID: chatID, Name: name, ThreadID: threadID}); err != nil {
		logf(ctx, "error saving topic %q: %v", name, err)
	}
	return threadID
}

// Send posts text into the named topic.
func (t *Topics) Send(ctx context.Context, chatID int64, topic string, m Message) (int, error) {
	m.ThreadID = t.ThreadID(ctx, chatID, topic)
	return t.msgr.Send(chatID, m)
}

// SendPhoto posts a photo into the named topic.
func (t *Topics) SendPhoto(ctx context.Context, chatID int64, topic string, p Photo) (int, error) {
	p.ThreadID = t.ThreadID(ctx, chatID, topic)
	return t.msgr.SendPhoto(chatID, p)
}
