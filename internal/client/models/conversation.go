package models

import (
	"fmt"
	"strings"
	"time"
)

// ChannelKind tells direct conversations from group conversations.
type ChannelKind string

const (
	ChannelUser  ChannelKind = "user"
	ChannelGroup ChannelKind = "group"
)

// Channel is a resolved conversation target.
type Channel struct {
	Kind ChannelKind
	Name string
}

func (c Channel) String() string {
	if c.Kind == ChannelGroup {
		return "#" + c.Name
	}
	return "@" + c.Name
}

// Filter restricts a conversation listing by kind.
type Filter string

const (
	FilterAll    Filter = "all"
	FilterUsers  Filter = "users"
	FilterGroups Filter = "groups"
)

func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FilterAll:
		return FilterAll, nil
	case FilterUsers, FilterGroups:
		return f, nil
	default:
		return "", fmt.Errorf("unknown filter %q (want all, users or groups)", s)
	}
}

// Match reports whether a conversation of kind k passes the filter.
func (f Filter) Match(k ChannelKind) bool {
	switch f {
	case FilterUsers:
		return k == ChannelUser
	case FilterGroups:
		return k == ChannelGroup
	default:
		return true
	}
}

// Conversation is a derived view over the directory, the group registry and
// the message ledger. It is never persisted.
type Conversation struct {
	Kind        ChannelKind
	Name        string
	DisplayName string
	LastMessage *Message
	// Time is the latest message time, else the group creation time.
	Time time.Time

	// user conversations
	IsOnline bool
	LastSeen time.Time

	// group conversations
	Members []string
}

func (c Conversation) Channel() Channel {
	return Channel{Kind: c.Kind, Name: c.Name}
}

// SortKey orders conversations newest first: the last message id when there
// is one, else Time in milliseconds, else zero.
func (c Conversation) SortKey() int64 {
	if c.LastMessage != nil {
		return c.LastMessage.ID
	}
	if !c.Time.IsZero() {
		return c.Time.UnixMilli()
	}
	return 0
}
