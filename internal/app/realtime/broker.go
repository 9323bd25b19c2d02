package realtime

import (
	"context"
	"log/slog"
	"sync"

	appchat "marketchat/internal/app/chat"
	domainchat "marketchat/internal/domain/chat"
)

const defaultBuffer = 256

// Source serves the snapshots subscriptions start from.
type Source interface {
	Conversation(ctx context.Context, id domainchat.ConversationID, viewer domainchat.UserID) (domainchat.Summary, error)
	Inbox(ctx context.Context, viewer domainchat.UserID) ([]domainchat.Summary, error)
	Messages(ctx context.Context, id domainchat.ConversationID, viewer domainchat.UserID, afterSeq int64, limit int) ([]domainchat.Message, error)
}

// Broker fans committed conversation and message mutations out to live subscribers.
// Every subscription registers before its snapshot is read, so a commit is either in
// the snapshot, delivered live, or both.
type Broker struct {
	source Source
	buffer int
	logger *slog.Logger

	mu      sync.Mutex
	inbox   topic[domainchat.UserID, domainchat.Summary]
	threads topic[domainchat.ConversationID, domainchat.Message]
}

func NewBroker(source Source, buffer int, logger *slog.Logger) *Broker {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		source:  source,
		buffer:  buffer,
		logger:  logger,
		inbox:   newTopic[domainchat.UserID, domainchat.Summary](),
		threads: newTopic[domainchat.ConversationID, domainchat.Message](),
	}
}

func (b *Broker) ConversationChanged(ctx context.Context, conv *domainchat.Conversation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range conv.Participants() {
		if n := b.inbox.publish(p, conv.SummaryFor(p)); n > 0 {
			b.logger.WarnContext(ctx, "dropped slow inbox subscribers", "user_id", p, "dropped", n)
		}
	}
}

func (b *Broker) MessageAppended(ctx context.Context, msg domainchat.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := b.threads.publish(msg.ConversationID, msg); n > 0 {
		b.logger.WarnContext(ctx, "dropped slow message subscribers", "conversation_id", msg.ConversationID, "dropped", n)
	}
}

// Subscribers reports how many live subscriptions the broker holds.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inbox.count() + b.threads.count()
}

// SubscribeConversations streams the viewer's inbox: the current summaries ordered by
// activity, then every change. A summary whose Version is not past the last one
// delivered for the same conversation is skipped.
func (b *Broker) SubscribeConversations(ctx context.Context, viewer domainchat.UserID) *Subscription[domainchat.Summary] {
	s, release := b.registerInbox(viewer)
	out := make(chan domainchat.Summary)
	latest := map[domainchat.ConversationID]int64{}
	f := func(batch []domainchat.Summary, emit func(domainchat.Summary) bool) bool {
		for _, sum := range batch {
			if !newer(latest, sum) {
				continue
			}
			if !emit(sum) {
				return false
			}
		}
		return true
	}
	snapshot := func(ctx context.Context) ([]domainchat.Summary, error) {
		return b.source.Inbox(ctx, viewer)
	}
	go pump[domainchat.Summary, domainchat.Summary](ctx, s, out, snapshot, f, release)
	return &Subscription[domainchat.Summary]{C: out, ctrl: s}
}

// SubscribeUnread streams the viewer's total unread count: once for the snapshot and
// again whenever the total changes.
func (b *Broker) SubscribeUnread(ctx context.Context, viewer domainchat.UserID) *Subscription[int] {
	s, release := b.registerInbox(viewer)
	out := make(chan int)
	counts := map[domainchat.ConversationID]int{}
	latest := map[domainchat.ConversationID]int64{}
	total, last := 0, -1
	f := func(batch []domainchat.Summary, emit func(int) bool) bool {
		for _, sum := range batch {
			if !newer(latest, sum) {
				continue
			}
			total += sum.Unread - counts[sum.ID]
			counts[sum.ID] = sum.Unread
		}
		if total == last {
			return true
		}
		last = total
		return emit(total)
	}
	snapshot := func(ctx context.Context) ([]domainchat.Summary, error) {
		return b.source.Inbox(ctx, viewer)
	}
	go pump[domainchat.Summary, int](ctx, s, out, snapshot, f, release)
	return &Subscription[int]{C: out, ctrl: s}
}

// SubscribeMessages streams one conversation's log after afterSeq: the stored messages
// in ascending order, then live appends, with no gaps or repeats. The viewer must be a
// participant. Seq commits in order, so a live message that skips ahead means the
// missing ones are already stored; they are read back before it is delivered.
func (b *Broker) SubscribeMessages(ctx context.Context, id domainchat.ConversationID, viewer domainchat.UserID, afterSeq int64) (*Subscription[domainchat.Message], error) {
	if _, err := b.source.Conversation(ctx, id, viewer); err != nil {
		return nil, err
	}
	s := newSink[domainchat.Message](b.buffer)
	b.mu.Lock()
	b.threads.add(id, s)
	b.mu.Unlock()
	release := func() {
		b.mu.Lock()
		b.threads.remove(id, s)
		b.mu.Unlock()
	}

	out := make(chan domainchat.Message)
	covered := afterSeq
	deliver := func(msg domainchat.Message, emit func(domainchat.Message) bool) bool {
		if msg.Seq > covered+1 {
			missing, err := b.source.Messages(ctx, id, viewer, covered, 0)
			if err != nil {
				s.halt(err)
				return false
			}
			for _, m := range missing {
				if m.Seq >= msg.Seq {
					break
				}
				covered = m.Seq
				if !emit(m) {
					return false
				}
			}
		}
		covered = msg.Seq
		return emit(msg)
	}
	f := func(batch []domainchat.Message, emit func(domainchat.Message) bool) bool {
		for _, msg := range batch {
			if msg.Seq <= covered {
				continue
			}
			if !deliver(msg, emit) {
				return false
			}
		}
		return true
	}
	snapshot := func(ctx context.Context) ([]domainchat.Message, error) {
		return b.source.Messages(ctx, id, viewer, afterSeq, 0)
	}
	go pump[domainchat.Message, domainchat.Message](ctx, s, out, snapshot, f, release)
	return &Subscription[domainchat.Message]{C: out, ctrl: s}, nil
}

// newer records sum as the latest for its conversation unless an equal or later
// version was already seen.
func newer(latest map[domainchat.ConversationID]int64, sum domainchat.Summary) bool {
	if v, ok := latest[sum.ID]; ok && sum.Version <= v {
		return false
	}
	latest[sum.ID] = sum.Version
	return true
}

func (b *Broker) registerInbox(viewer domainchat.UserID) (*sink[domainchat.Summary], func()) {
	s := newSink[domainchat.Summary](b.buffer)
	b.mu.Lock()
	b.inbox.add(viewer, s)
	b.mu.Unlock()
	return s, func() {
		b.mu.Lock()
		b.inbox.remove(viewer, s)
		b.mu.Unlock()
	}
}

var _ appchat.Publisher = (*Broker)(nil)
