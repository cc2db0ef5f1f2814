package services

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/gophchat/internal/client/models"
	"github.com/dmitrijs2005/gophchat/internal/client/repositories/records"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
)

// Durable keys owned by the conversation engine.
const (
	MessagesKey = "chat_messages"
	GroupsKey   = "chat_groups"
)

// StaleEvent tells subscribers that the collection stored under Key was
// changed by another instance and derived views must be recomputed.
type StaleEvent struct {
	Key string
}

// ChatService holds the message ledger and the group registry of one
// instance and derives conversations and threads from them.
type ChatService struct {
	repo      records.Repository
	directory *Directory
	logger    logging.Logger
	now       func() time.Time

	mu       sync.RWMutex
	messages []models.Message
	groups   []models.Group
	current  string

	subMu   sync.Mutex
	subs    map[int]chan StaleEvent
	nextSub int
}

func NewChatService(repo records.Repository, directory *Directory, logger logging.Logger) *ChatService {
	return &ChatService{
		repo:      repo,
		directory: directory,
		logger:    logger,
		now:       time.Now,
		subs:      make(map[int]chan StaleEvent),
	}
}

// Load reads the ledger, the registry and the directory from the store.
func (s *ChatService) Load(ctx context.Context) error {
	messages, err := s.loadMessages(ctx)
	if err != nil {
		return err
	}
	groups, err := s.loadGroups(ctx)
	if err != nil {
		return err
	}
	if err := s.directory.Refresh(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.messages, s.groups = messages, groups
	s.mu.Unlock()
	return nil
}

// SetCurrentUser binds the engine to the logged-in account. An empty
// username unbinds it.
func (s *ChatService) SetCurrentUser(account models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = account.Username
}

func (s *ChatService) CurrentUser() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// ListConversations derives the conversation list of the current user:
// every other user and every group, each with its latest message, newest
// first. Ties keep seed order, so the result is deterministic.
func (s *ChatService) ListConversations(filter models.Filter, search string) ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	self := s.current
	if self == "" {
		return nil, common.ErrNoCurrentUser
	}

	var convs []models.Conversation
	index := make(map[string]int)

	for _, u := range s.directory.List() {
		if u.Username == self {
			continue
		}
		index[u.Username] = len(convs)
		convs = append(convs, models.Conversation{
			Kind:        models.ChannelUser,
			Name:        u.Username,
			DisplayName: u.DisplayName(),
			IsOnline:    u.IsOnline,
			LastSeen:    u.LastSeen,
		})
	}

	for _, g := range s.groups {
		conv := models.Conversation{
			Kind:        models.ChannelGroup,
			Name:        g.Name,
			DisplayName: g.Name,
			Time:        g.CreatedAt,
			Members:     slices.Clone(g.Members),
		}
		if i, ok := index[g.Name]; ok {
			convs[i] = conv
			continue
		}
		index[g.Name] = len(convs)
		convs = append(convs, conv)
	}

	for i := range s.messages {
		m := &s.messages[i]

		if m.Sender == self || m.Receiver == self {
			contact := m.Sender
			if m.Sender == self {
				contact = m.Receiver
			}
			if j, ok := index[contact]; ok && convs[j].Kind == models.ChannelUser {
				convs[j].LastMessage = m
				convs[j].Time = m.CreatedAt
			}
		}

		if j, ok := index[m.Receiver]; ok && convs[j].Kind == models.ChannelGroup {
			convs[j].LastMessage = m
			convs[j].Time = m.CreatedAt
		}
	}

	slices.SortStableFunc(convs, func(a, b models.Conversation) int {
		return cmp.Compare(b.SortKey(), a.SortKey())
	})

	query := strings.ToLower(strings.TrimSpace(search))
	out := make([]models.Conversation, 0, len(convs))
	for _, c := range convs {
		if !filter.Match(c.Kind) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(c.DisplayName), query) {
			continue
		}
		if c.LastMessage != nil {
			msg := *c.LastMessage
			c.LastMessage = &msg
		}
		out = append(out, c)
	}
	return out, nil
}

// Resolve tells whether channel names a group or a user. Groups win when
// both exist.
func (s *ChatService) Resolve(channel string) models.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolve(channel)
}

func (s *ChatService) resolve(channel string) models.Channel {
	if s.findGroup(channel) >= 0 {
		return models.Channel{Kind: models.ChannelGroup, Name: channel}
	}
	return models.Channel{Kind: models.ChannelUser, Name: channel}
}

// findGroup returns the index of the group called name, or -1. s.mu must be
// held.
func (s *ChatService) findGroup(name string) int {
	return slices.IndexFunc(s.groups, func(g models.Group) bool {
		return g.Name == name
	})
}

// CheckName fails with ErrNameTaken when a group is called name. The
// registry is read from the store, so groups created by other instances
// count too.
func (s *ChatService) CheckName(ctx context.Context, name string) error {
	groups, err := s.loadGroups(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.groups = groups
	taken := s.findGroup(name) >= 0
	s.mu.Unlock()

	if taken {
		return common.ErrNameTaken
	}
	return nil
}

// Thread returns the messages of one channel in ledger order.
func (s *ChatService) Thread(channel string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	self := s.current
	if self == "" {
		return nil, common.ErrNoCurrentUser
	}

	isGroup := s.resolve(channel).Kind == models.ChannelGroup

	var out []models.Message
	for _, m := range s.messages {
		if isGroup {
			if m.Receiver == channel {
				out = append(out, m)
			}
			continue
		}
		if m.IsBetween(self, channel) {
			out = append(out, m)
		}
	}
	return out, nil
}

// Send appends a message from the current user to channel. Whitespace-only
// text is ignored and yields (nil, nil).
func (s *ChatService) Send(ctx context.Context, channel, text string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == "" {
		return nil, common.ErrNoCurrentUser
	}

	text = strings.TrimSpace(text)
	if text == "" || strings.TrimSpace(channel) == "" {
		return nil, nil
	}

	messages, err := s.loadMessages(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	id := now.UnixMilli()
	if n := len(messages); n > 0 && id <= messages[n-1].ID {
		id = messages[n-1].ID + 1
	}

	msg := models.Message{
		ID:        id,
		Text:      text,
		CreatedAt: now,
		Sender:    s.current,
		Receiver:  channel,
	}
	messages = append(messages, msg)

	if err := s.store(ctx, s.repo, MessagesKey, messages); err != nil {
		return nil, err
	}
	s.messages = messages
	return &msg, nil
}

// CreateGroup registers a group administered by the current user, who is
// appended to members. An empty name or member list yields (nil, nil).
func (s *ChatService) CreateGroup(ctx context.Context, name string, members []string) (*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == "" {
		return nil, common.ErrNoCurrentUser
	}

	name = strings.TrimSpace(name)
	if name == "" || len(members) == 0 {
		return nil, nil
	}

	groups, err := s.loadGroups(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.directory.Refresh(ctx); err != nil {
		return nil, err
	}

	for _, g := range groups {
		if g.Name == name {
			return nil, common.ErrNameTaken
		}
	}
	if _, ok := s.directory.Find(name); ok {
		return nil, common.ErrNameTaken
	}

	group := models.Group{
		ID:        uuid.NewString(),
		Name:      name,
		Members:   append(slices.Clone(members), s.current),
		Admin:     s.current,
		CreatedAt: s.now(),
	}
	groups = append(groups, group)

	if err := s.store(ctx, s.repo, GroupsKey, groups); err != nil {
		return nil, err
	}
	s.groups = groups

	s.logger.Info(ctx, "group created", "group", name, "admin", s.current, "members", len(group.Members))
	return &group, nil
}

// RenameUser rewrites every reference to oldName in the registry and the
// ledger. Both collections are written in one batch, and only when they
// actually changed.
func (s *ChatService) RenameUser(ctx context.Context, oldName, newName string) error {
	if newName == "" {
		return common.ErrEmptyUsername
	}
	if oldName == newName {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	groups, err := s.loadGroups(ctx)
	if err != nil {
		return err
	}
	messages, err := s.loadMessages(ctx)
	if err != nil {
		return err
	}

	groupsChanged := false
	for i := range groups {
		g := &groups[i]
		for j, m := range g.Members {
			if m == oldName {
				g.Members[j] = newName
				groupsChanged = true
			}
		}
		if g.Admin == oldName {
			g.Admin = newName
			groupsChanged = true
		}
	}

	messagesChanged := false
	for i := range messages {
		m := &messages[i]
		if m.Sender == oldName {
			m.Sender = newName
			messagesChanged = true
		}
		if m.Receiver == oldName {
			m.Receiver = newName
			messagesChanged = true
		}
	}

	if groupsChanged || messagesChanged {
		err := s.repo.Batch(ctx, func(ctx context.Context, w records.Writer) error {
			if groupsChanged {
				if err := s.store(ctx, w, GroupsKey, groups); err != nil {
					return err
				}
			}
			if messagesChanged {
				return s.store(ctx, w, MessagesKey, messages)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	s.groups, s.messages = groups, messages
	if s.current == oldName {
		s.current = newName
	}
	return nil
}

// UserStatus reports the presence of username as last loaded.
func (s *ChatService) UserStatus(username string) (online bool, lastSeen time.Time, ok bool) {
	account, ok := s.directory.Find(username)
	if !ok {
		return false, time.Time{}, false
	}
	return account.IsOnline, account.LastSeen, true
}

// Groups returns the group registry as last loaded.
func (s *ChatService) Groups() []models.Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.groups)
}

// Sync applies the keys changed by other instances: each affected collection
// is reloaded and subscribers are told it went stale.
func (s *ChatService) Sync(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		switch key {
		case MessagesKey:
			messages, err := s.loadMessages(ctx)
			if err != nil {
				return err
			}
			s.mu.Lock()
			s.messages = messages
			s.mu.Unlock()
		case GroupsKey:
			groups, err := s.loadGroups(ctx)
			if err != nil {
				return err
			}
			s.mu.Lock()
			s.groups = groups
			s.mu.Unlock()
		case UsersKey:
			if err := s.directory.Refresh(ctx); err != nil {
				return err
			}
		default:
			continue
		}
		s.logger.Debug(ctx, "applied remote change", "key", key)
		s.publish(StaleEvent{Key: key})
	}
	return nil
}

// Watch feeds the watcher's change batches into Sync until ctx is done.
func (s *ChatService) Watch(ctx context.Context, w *records.Watcher) error {
	return w.Run(ctx, func(ctx context.Context, changes []records.Change) {
		if err := s.Sync(ctx, records.Keys(changes)...); err != nil {
			s.logger.Warn(ctx, "failed to apply remote changes", "error", err)
		}
	})
}

// Subscribe returns a channel of stale events and a function that cancels
// the subscription. Events are dropped for subscribers that fall behind.
func (s *ChatService) Subscribe() (<-chan StaleEvent, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan StaleEvent, 16)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

func (s *ChatService) publish(ev StaleEvent) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *ChatService) loadMessages(ctx context.Context) ([]models.Message, error) {
	var messages []models.Message
	if err := s.load(ctx, MessagesKey, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *ChatService) loadGroups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	if err := s.load(ctx, GroupsKey, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (s *ChatService) load(ctx context.Context, key string, v any) error {
	raw, err := s.repo.Get(ctx, key)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %s: %v", common.ErrCorruptDocument, key, err)
	}
	return nil
}

func (s *ChatService) store(ctx context.Context, w records.Writer, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return w.Set(ctx, key, raw)
}
