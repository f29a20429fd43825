package chatclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tomharwin/kestrel/internal/wire"
)

const (
	// RoleUser is a support-seeking participant.
	RoleUser = "user"
	// RoleAdmin is a support agent.
	RoleAdmin = "admin"
)

// Session wires a Connection, a RESTClient and a Store into a working chat
// view for one authenticated participant. What it subscribes to and what it
// fetches up front depends on the participant's role.
//
// A Session shares its Connection: Close detaches the session's bus
// subscriptions but leaves the channel up for other sessions.
type Session struct {
	conn  *Connection
	rest  *RESTClient
	store *Store
	role  string
	logf  func(format string, args ...any)

	strategy roleStrategy

	openOnce sync.Once
	openErr  error

	mu     sync.Mutex
	subs   []Subscription
	admins []wire.UserInfo

	refreshMu  sync.Mutex
	refreshing bool
	dirty      bool
}

// NewSession builds a session for the given participant.
func NewSession(conn *Connection, rest *RESTClient, selfID, role string) *Session {
	s := &Session{
		conn:  conn,
		rest:  rest,
		store: NewStore(selfID),
		role:  role,
		logf:  log.Printf,
	}
	if role == RoleAdmin {
		s.strategy = adminStrategy{}
	} else {
		s.strategy = userStrategy{}
	}
	return s
}

// SetLogf overrides the logging function.
func (s *Session) SetLogf(logf func(format string, args ...any)) {
	s.logf = logf
}

// Store returns the session's chat state.
func (s *Session) Store() *Store {
	return s.store
}

// Role returns the participant's role.
func (s *Session) Role() string {
	return s.role
}

// Open subscribes to the events this role cares about, starts the channel
// with credential, and loads the initial data. Opening twice is a no-op
// returning the first call's result. A missing credential aborts before
// anything is wired.
func (s *Session) Open(ctx context.Context, credential string) error {
	s.openOnce.Do(func() {
		s.openErr = s.open(ctx, credential)
	})
	return s.openErr
}

func (s *Session) open(ctx context.Context, credential string) error {
	if credential == "" {
		return ErrNoCredential
	}

	s.subscribe()

	if err := s.conn.Start(ctx, credential); err != nil {
		s.unsubscribe()
		return err
	}

	// Initial data is best effort: a failed fetch leaves an empty view,
	// it does not tear the channel down.
	if err := s.strategy.loadInitialData(ctx, s); err != nil {
		s.logf("chatclient: initial data load failed: %v", err)
	}

	return nil
}

// Close detaches the session from the bus. The shared Connection stays up;
// stopping it is the owner's call.
func (s *Session) Close() {
	s.unsubscribe()
}

// subscribe installs the bus handlers for this role.
func (s *Session) subscribe() {
	bus := s.conn.Bus()

	var subs []Subscription
	on := func(kind EventKind, fn Handler) {
		subs = append(subs, bus.On(kind, fn))
	}

	for _, kind := range s.strategy.incomingKinds() {
		on(kind, s.onIncomingMessage)
	}
	for _, kind := range s.strategy.confirmationKinds() {
		on(kind, s.onOwnMessageConfirmed)
	}
	on(EventMessagesMarkedAsRead, s.onMarkedRead)
	on(EventUserStatusChanged, s.onStatusChanged)
	on(EventOnlineUsersList, s.onOnlineUsers)

	s.mu.Lock()
	s.subs = subs
	s.mu.Unlock()
}

func (s *Session) unsubscribe() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	bus := s.conn.Bus()
	for _, sub := range subs {
		bus.Off(sub)
	}
}

// SendMessage sends a message to an admin, starting the conversation if
// none exists. Blank content and a down channel are silent no-ops (nil,
// nothing sent); a remote rejection is returned to the caller.
func (s *Session) SendMessage(ctx context.Context, adminID, content string) error {
	return s.send(wire.TargetSendMessageToAdmin, content, func(corr string) error {
		return s.conn.InvokeWithID(ctx, corr, wire.TargetSendMessageToAdmin,
			wire.SendMessageToAdminArgs{AdminID: adminID, Content: content})
	})
}

// SendReply sends an admin reply into an existing conversation. Same
// guard and propagation contract as SendMessage.
func (s *Session) SendReply(ctx context.Context, conversationID, content string) error {
	return s.send(wire.TargetSendAdminReply, content, func(corr string) error {
		return s.conn.InvokeWithID(ctx, corr, wire.TargetSendAdminReply,
			wire.SendAdminReplyArgs{ConversationID: conversationID, Content: content})
	})
}

func (s *Session) send(target, content string, invoke func(string) error) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	if !s.conn.IsConnected() {
		s.logf("chatclient: %s dropped, not connected", target)
		return nil
	}

	// The pending entry goes in before the invocation so the confirmation
	// event, which can land before the completion frame, finds it.
	corr := newCorrelationID()
	s.store.AddPending(corr, content)

	if err := invoke(corr); err != nil {
		s.store.DropPending(corr)
		return fmt.Errorf("%s failed: %w", target, err)
	}
	return nil
}

// LoadMessages selects a conversation, fetches its history, and marks it
// read. Fetch failures leave the pane empty and are logged.
func (s *Session) LoadMessages(ctx context.Context, conversationID string) {
	s.store.Select(conversationID)

	messages, err := s.rest.ListMessages(ctx, conversationID)
	if err != nil {
		s.logf("chatclient: failed to load messages: %v", err)
		return
	}
	s.store.SetMessages(conversationID, messages)

	if s.conn.IsConnected() {
		err := s.conn.Invoke(ctx, wire.TargetMarkAsRead,
			wire.MarkAsReadArgs{ConversationID: conversationID})
		if err != nil && !errors.Is(err, ErrNotConnected) {
			s.logf("chatclient: mark as read failed: %v", err)
		}
	}
}

// Admins returns the cached admin roster (user role only).
func (s *Session) Admins() []wire.UserInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.UserInfo, len(s.admins))
	copy(out, s.admins)
	return out
}

func (s *Session) setAdmins(admins []wire.UserInfo) {
	s.mu.Lock()
	s.admins = admins
	s.mu.Unlock()
}

// Event handlers

func (s *Session) onIncomingMessage(ev Event) {
	if ev.Message == nil {
		return
	}
	s.store.Append(*ev.Message)
	// Unread badges and last-message previews moved; refresh the sidebar.
	s.requestConversationRefresh()
}

func (s *Session) onOwnMessageConfirmed(ev Event) {
	if ev.Message == nil {
		return
	}
	s.store.Append(*ev.Message)
	s.requestConversationRefresh()
}

func (s *Session) onMarkedRead(ev Event) {
	s.store.MarkRead(ev.ConversationID, ev.ReaderID)
}

func (s *Session) onStatusChanged(ev Event) {
	s.store.SetPresence(ev.UserID, ev.Online)
}

func (s *Session) onOnlineUsers(ev Event) {
	s.store.SetOnlineUsers(ev.UserIDs)
}

// requestConversationRefresh re-fetches the conversation list, coalescing
// concurrent requests: one fetch runs at a time, and requests arriving
// mid-fetch fold into a single follow-up fetch.
func (s *Session) requestConversationRefresh() {
	s.refreshMu.Lock()
	if s.refreshing {
		s.dirty = true
		s.refreshMu.Unlock()
		return
	}
	s.refreshing = true
	s.refreshMu.Unlock()

	go func() {
		for {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			conversations, err := s.rest.ListConversations(ctx)
			cancel()
			if err != nil {
				s.logf("chatclient: conversation refresh failed: %v", err)
			} else {
				s.store.SetConversations(conversations)
			}

			s.refreshMu.Lock()
			if !s.dirty {
				s.refreshing = false
				s.refreshMu.Unlock()
				return
			}
			s.dirty = false
			s.refreshMu.Unlock()
		}
	}()
}

func newCorrelationID() string {
	return uuid.NewString()
}

// roleStrategy is what differs between the two participant roles: which
// pushed events carry messages from the other side, which carry this side's
// confirmations, and what the initial fetch covers.
type roleStrategy interface {
	incomingKinds() []EventKind
	confirmationKinds() []EventKind
	loadInitialData(ctx context.Context, s *Session) error
}

// userStrategy: a user receives admin messages, gets messageSent
// confirmations, and needs both the admin roster and their conversations
// up front.
type userStrategy struct{}

func (userStrategy) incomingKinds() []EventKind {
	return []EventKind{EventNewAdminMessage}
}

func (userStrategy) confirmationKinds() []EventKind {
	return []EventKind{EventMessageSent}
}

func (userStrategy) loadInitialData(ctx context.Context, s *Session) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		admins, err := s.rest.ListAdmins(ctx)
		if err != nil {
			return err
		}
		s.setAdmins(admins)
		return nil
	})
	g.Go(func() error {
		conversations, err := s.rest.ListConversations(ctx)
		if err != nil {
			return err
		}
		s.store.SetConversations(conversations)
		return nil
	})
	return g.Wait()
}

// adminStrategy: an admin receives user messages, gets adminReplySent
// confirmations, and starts from their conversation queue.
type adminStrategy struct{}

func (adminStrategy) incomingKinds() []EventKind {
	return []EventKind{EventNewUserMessage}
}

func (adminStrategy) confirmationKinds() []EventKind {
	return []EventKind{EventAdminReplySent}
}

func (adminStrategy) loadInitialData(ctx context.Context, s *Session) error {
	conversations, err := s.rest.ListConversations(ctx)
	if err != nil {
		return err
	}
	s.store.SetConversations(conversations)
	return nil
}
