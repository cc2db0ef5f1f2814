package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/dmitrijs2005/gophchat/internal/client/models"
	"github.com/dmitrijs2005/gophchat/internal/client/services"
)

const (
	clockLayout = "15:04"
	dateLayout  = "Jan 2 15:04"
	previewLen  = 40
)

var (
	onlineColor = color.New(color.FgGreen)
	groupColor  = color.New(color.FgCyan)
	selfColor   = color.New(color.FgYellow)
	dimColor    = color.New(color.FgHiBlack)
)

// formatStamp prints the clock for today's messages and a short date otherwise.
func formatStamp(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.Local()
	y1, m1, d1 := t.Date()
	y2, m2, d2 := now.Local().Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return t.Format(clockLayout)
	}
	return t.Format(dateLayout)
}

func formatLastSeen(online bool, lastSeen, now time.Time) string {
	switch {
	case online:
		return "online"
	case lastSeen.IsZero():
		return "offline"
	default:
		return "last seen " + humanize.RelTime(lastSeen, now, "ago", "from now")
	}
}

func presence(online bool) string {
	if online {
		return onlineColor.Sprint("●")
	}
	return dimColor.Sprint("○")
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > previewLen {
		return string(r[:previewLen-1]) + "…"
	}
	return text
}

func formatConversation(c models.Conversation, self string, now time.Time) string {
	var b strings.Builder

	if c.Kind == models.ChannelGroup {
		fmt.Fprintf(&b, "%s [%s] %s (%d members)", groupColor.Sprint("#"), models.Initials(c.DisplayName), c.Name, len(c.Members))
	} else {
		fmt.Fprintf(&b, "%s [%s] %s (@%s, %s)", presence(c.IsOnline), models.Initials(c.DisplayName),
			c.DisplayName, c.Name, formatLastSeen(c.IsOnline, c.LastSeen, now))
	}

	if m := c.LastMessage; m != nil {
		sender := m.Sender
		if sender == self {
			sender = "you"
		}
		fmt.Fprintf(&b, "  %s %s: %s", dimColor.Sprint(formatStamp(m.CreatedAt, now)), sender, preview(m.Text))
	}
	return b.String()
}

func formatMessage(m models.Message, self string, now time.Time) string {
	sender := m.Sender
	if sender == self {
		sender = selfColor.Sprint("you")
	}
	return fmt.Sprintf("[%s] %s: %s", formatStamp(m.CreatedAt, now), sender, m.Text)
}

func formatThread(thread []models.Message, self string, now time.Time) string {
	lines := make([]string, 0, len(thread))
	for _, m := range thread {
		lines = append(lines, formatMessage(m, self, now))
	}
	return strings.Join(lines, "\n")
}

func formatAccount(a models.Account, now time.Time) string {
	return fmt.Sprintf("%s [%s] %s (@%s, %s)", presence(a.IsOnline), a.Initials(),
		a.DisplayName(), a.Username, formatLastSeen(a.IsOnline, a.LastSeen, now))
}

func formatProfile(a models.Account) string {
	lines := []string{
		"Username: " + a.Username,
		"Name:     " + a.DisplayName(),
	}
	if a.HasSecurityQuestion() {
		lines = append(lines, "Recovery: "+a.SecurityQuestion)
	}
	return strings.Join(lines, "\n")
}

// describeKey names a shared record in user terms.
func describeKey(key string) string {
	switch key {
	case services.MessagesKey:
		return "messages"
	case services.GroupsKey:
		return "groups"
	case services.UsersKey:
		return "users"
	default:
		return key
	}
}
