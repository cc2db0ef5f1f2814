package services

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophchat/internal/client/models"
	"github.com/dmitrijs2005/gophchat/internal/common"
)

func loginAs(t *testing.T, inst *instance, username, password string) models.Account {
	t.Helper()
	acc, err := inst.auth.Login(context.Background(), username, password)
	require.NoError(t, err)
	inst.chat.SetCurrentUser(acc)
	return acc
}

func TestChat_QueriesRequireCurrentUser(t *testing.T) {
	inst := newTestInstance(t)
	ctx := context.Background()

	_, err := inst.chat.ListConversations(models.FilterAll, "")
	assert.ErrorIs(t, err, common.ErrNoCurrentUser)
	_, err = inst.chat.Thread("bob")
	assert.ErrorIs(t, err, common.ErrNoCurrentUser)
	_, err = inst.chat.Send(ctx, "bob", "hi")
	assert.ErrorIs(t, err, common.ErrNoCurrentUser)
	_, err = inst.chat.CreateGroup(ctx, "team", []string{"bob"})
	assert.ErrorIs(t, err, common.ErrNoCurrentUser)
}

func TestChat_AliceSendsBobHello(t *testing.T) {
	inst := newTestInstance(t)
	ctx := context.Background()
	mustRegister(t, inst, "alice", "secret1")
	mustRegister(t, inst, "bob", "secret2")

	loginAs(t, inst, "alice", "secret1")
	sent, err := inst.chat.Send(ctx, "bob", "hello")
	require.NoError(t, err)
	require.NotNil(t, sent)

	convs, err := inst.chat.ListConversations(models.FilterAll, "")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, models.ChannelUser, convs[0].Kind)
	assert.Equal(t, "bob", convs[0].Name)
	require.NotNil(t, convs[0].LastMessage)
	assert.Equal(t, "hello", convs[0].LastMessage.Text)

	aliceThread, err := inst.chat.Thread("bob")
	require.NoError(t, err)
	require.Len(t, aliceThread, 1)

	bob, ok := inst.directory.Find("bob")
	require.True(t, ok)
	inst.chat.SetCurrentUser(bob)

	bobThread, err := inst.chat.Thread("alice")
	require.NoError(t, err)
	require.Len(t, bobThread, 1)
	assert.Equal(t, aliceThread[0], bobThread[0])
	assert.Equal(t, "alice", bobThread[0].Sender)
}

func TestChat_SendAssignsStrictlyIncreasingIDs(t *testing.T) {
	inst := newTestInstance(t)
	ctx := context.Background()
	mustRegister(t, inst, "alice", "secret1")
	loginAs(t, inst, "alice", "secret1")

	clock := &fixedClock{t: time.UnixMilli(1_700_000_000_000)}
	inst.chat.now = clock.now

	var last int64
	for i := 0; i < 5; i++ {
		msg, err := inst.chat.Send(ctx, "bob", "ping")
		require.NoError(t, err)
		assert.Greater(t, msg.ID, last)
		last = msg.ID
	}
	assert.Equal(t, int64(1_700_000_000_004), last)

	clock.advance(time.Minute)
	msg, err := inst.chat.Send(ctx, "bob", "  hi  ")
	require.NoError(t, err)
	assert.Equal(t, clock.t.UnixMilli(), msg.ID)
	assert.Equal(t, "hi", msg.Text)
	assert.Equal(t, "alice", msg.Sender)

	thread, err := inst.chat.Thread("bob")
	require.NoError(t, err)
	assert.Equal(t, "hi", thread[len(thread)-1].Text)
}

func TestChat_SendIgnoresBlankText(t *testing.T) {
	inst := newTestInstance(t)
	ctx := context.Background()
	mustRegister(t, inst, "alice", "secret1")
	loginAs(t, inst, "alice", "secret1")

	msg, err := inst.chat.Send(ctx, "bob", " \t\n ")
	require.NoError(t, err)
	assert.Nil(t, msg)

	raw, err := inst.stores.Records.Get(ctx, MessagesKey)
	require.NoError(t, err)
	assert.Nil(t, raw, "blank text must not touch the ledger")
}

func TestChat_CreateGroup(t *testing.T) {
	inst := newTestInstance(t)
	ctx := context.Background()
	mustRegister(t, inst, "alice", "secret1")
	mustRegister(t, inst, "bob", "secret2")
	loginAs(t, inst, "alice", "secret1")

	g, err := inst.chat.CreateGroup(ctx, "", []string{"bob"})
	require.NoError(t, err)
	assert.Nil(t, g)
	g, err = inst.chat.CreateGroup(ctx, "team", nil)
	require.NoError(t, err)
	assert.Nil(t, g)

	g, err = inst.chat.CreateGroup(ctx, "team", []string{"bob", "alice"})
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, []string{"bob", "alice", "alice"}, g.Members)
	assert.Equal(t, "alice", g.Admin)
	assert.NotEmpty(t, g.ID)

	_, err = inst.chat.CreateGroup(ctx, "team", []string{"bob"})
	assert.ErrorIs(t, err, common.ErrNameTaken)
	_, err = inst.chat.CreateGroup(ctx, "bob", []string{"bob"})
	assert.ErrorIs(t, err, common.ErrNameTaken)

	assert.Len(t, inst.chat.Groups(), 1)
}

func TestChat_GroupThreadIgnoresMembership(t *testing.T) {
	inst := newTestInstance(t)
	ctx := context.Background()
	mustRegister(t, inst, "alice", "secret1")
	mustRegister(t, inst, "bob", "secret2")
	mustRegister(t, inst, "carol", "secret3")

	loginAs(t, inst, "alice", "secret1")
	_, err := inst.chat.CreateGroup(ctx, "team", []string{"bob"})
	require.NoError(t, err)
	_, err = inst.chat.Send(ctx, "team", "hi team")
	require.NoError(t, err)

	loginAs(t, inst, "carol", "secret3")
	thread, err := inst.chat.Thread("team")
	require.NoError(t, err)
	require.Len(t, thread, 1)
	assert.Equal(t, "alice", thread[0].Sender)

	assert.Equal(t, models.ChannelGroup, inst.chat.Resolve("team").Kind)
	assert.Equal(t, models.ChannelUser, inst.chat.Resolve("bob").Kind)
}

func TestUsernamesCannotTakeGroupNames(t *testing.T) {
	inst := newTestInstance(t)
	ctx := context.Background()
	mustRegister(t, inst, "alice", "secret1")
	mustRegister(t, inst, "bob", "secret2")
	mustRegister(t, inst, "carol", "secret3")

	loginAs(t, inst, "alice", "secret1")
	_, err := inst.chat.CreateGroup(ctx, "team", []string{"bob"})
	require.NoError(t, err)

	_, err = inst.auth.RenameAccount(ctx, "bob", "team")
	require.ErrorIs(t, err, common.ErrNameTaken)
	_, ok := inst.directory.Find("bob")
	assert.True(t, ok, "the old username stays registered")

	_, err = inst.auth.Register(ctx, registerReq("team", "secret4"))
	require.ErrorIs(t, err, common.ErrNameTaken)

	convs, err := inst.chat.ListConversations(models.FilterUsers, "")
	require.NoError(t, err)
	names := make([]string, 0, len(convs))
	for _, c := range convs {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"bob", "carol"}, names)
	assert.Equal(t, models.ChannelUser, inst.chat.Resolve("bob").Kind)
}

func TestUsernamesCannotTakeGroupNamesFromOtherInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	a := newInstance(t, path)
	b := newInstance(t, path)
	ctx := context.Background()

	mustRegister(t, a, "alice", "secret1")
	mustRegister(t, a, "bob", "secret2")
	loginAs(t, a, "alice", "secret1")
	_, err := a.chat.CreateGroup(ctx, "team", []string{"bob"})
	require.NoError(t, err)

	// b has not synced the registry yet
	assert.Empty(t, b.chat.Groups())
	_, err = b.auth.RenameAccount(ctx, "bob", "team")
	require.ErrorIs(t, err, common.ErrNameTaken)
	assert.Len(t, b.chat.Groups(), 1)
}

func TestChat_ListConversationsOrderingAndFilters(t *testing.T) {
	inst := newTestInstance(t)
	ctx := context.Background()
	mustRegister(t, inst, "alice", "secret1")
	mustRegister(t, inst, "bob", "secret2")
	mustRegister(t, inst, "carol", "secret3")
	mustRegister(t, inst, "dave", "secret4")

	_, _, err := inst.directory.Update(ctx, "carol", models.AccountPatch{
		FirstName: models.Ptr("Carol"), LastName: models.Ptr("King"),
	})
	require.NoError(t, err)

	loginAs(t, inst, "alice", "secret1")
	clock := &fixedClock{t: time.UnixMilli(1_000_000)}
	inst.chat.now = clock.now

	_, err = inst.chat.Send(ctx, "bob", "old")
	require.NoError(t, err)
	clock.advance(time.Second)
	_, err = inst.chat.CreateGroup(ctx, "team", []string{"bob"})
	require.NoError(t, err)
	clock.advance(time.Second)
	_, err = inst.chat.Send(ctx, "carol", "newest")
	require.NoError(t, err)

	convs, err := inst.chat.ListConversations(models.FilterAll, "")
	require.NoError(t, err)

	var names []string
	for _, c := range convs {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"carol", "team", "bob", "dave"}, names)
	assert.Equal(t, "Carol King", convs[0].DisplayName)
	assert.Nil(t, convs[3].LastMessage)

	again, err := inst.chat.ListConversations(models.FilterAll, "")
	require.NoError(t, err)
	assert.Equal(t, convs, again, "derivation must be deterministic")

	groups, err := inst.chat.ListConversations(models.FilterGroups, "")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "team", groups[0].Name)

	users, err := inst.chat.ListConversations(models.FilterUsers, "")
	require.NoError(t, err)
	assert.Len(t, users, 3)

	found, err := inst.chat.ListConversations(models.FilterAll, "  KING ")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "carol", found[0].Name)
}

func TestChat_ListConversationsTieKeepsDirectoryOrder(t *testing.T) {
	inst := newTestInstance(t)
	mustRegister(t, inst, "alice", "secret1")
	for _, name := range []string{"zed", "amy", "kim"} {
		mustRegister(t, inst, name, "secret1")
	}
	loginAs(t, inst, "alice", "secret1")

	for i := 0; i < 3; i++ {
		convs, err := inst.chat.ListConversations(models.FilterAll, "")
		require.NoError(t, err)
		require.Len(t, convs, 3)
		assert.Equal(t, "zed", convs[0].Name)
		assert.Equal(t, "amy", convs[1].Name)
		assert.Equal(t, "kim", convs[2].Name)
	}
}

func countRefs(groups []models.Group, messages []models.Message, name string) int {
	n := 0
	for _, g := range groups {
		for _, m := range g.Members {
			if m == name {
				n++
			}
		}
		if g.Admin == name {
			n++
		}
	}
	for _, m := range messages {
		if m.Sender == name {
			n++
		}
		if m.Receiver == name {
			n++
		}
	}
	return n
}

func readCollections(t *testing.T, inst *instance) ([]models.Group, []models.Message) {
	t.Helper()
	ctx := context.Background()

	var groups []models.Group
	raw, err := inst.stores.Records.Get(ctx, GroupsKey)
	require.NoError(t, err)
	if raw != nil {
		require.NoError(t, json.Unmarshal(raw, &groups))
	}

	var messages []models.Message
	raw, err = inst.stores.Records.Get(ctx, MessagesKey)
	require.NoError(t, err)
	if raw != nil {
		require.NoError(t, json.Unmarshal(raw, &messages))
	}
	return groups, messages
}

func TestChat_RenameUserRewritesEveryReference(t *testing.T) {
	inst := newTestInstance(t)
	ctx := context.Background()
	mustRegister(t, inst, "alice", "secret1")
	mustRegister(t, inst, "bob", "secret2")

	loginAs(t, inst, "alice", "secret1")
	_, err := inst.chat.CreateGroup(ctx, "team", []string{"bob", "alice"})
	require.NoError(t, err)
	_, err = inst.chat.Send(ctx, "bob", "hi bob")
	require.NoError(t, err)
	_, err = inst.chat.Send(ctx, "team", "hi team")
	require.NoError(t, err)

	loginAs(t, inst, "bob", "secret2")
	_, err = inst.chat.Send(ctx, "alice", "hi alice")
	require.NoError(t, err)

	groups, messages := readCollections(t, inst)
	before := countRefs(groups, messages, "alice")
	require.Equal(t, 6, before)

	inst.chat.SetCurrentUser(models.Account{Username: "alice"})
	require.NoError(t, inst.chat.RenameUser(ctx, "alice", "alicia"))

	groups, messages = readCollections(t, inst)
	assert.Zero(t, countRefs(groups, messages, "alice"))
	assert.Equal(t, before, countRefs(groups, messages, "alicia"))
	assert.Equal(t, "alicia", inst.chat.CurrentUser())

	thread, err := inst.chat.Thread("bob")
	require.NoError(t, err)
	assert.Len(t, thread, 2)
}

func TestChat_RenameUserWritesOnlyChangedKeysInOneBatch(t *testing.T) {
	inst := newTestInstance(t)
	ctx := context.Background()
	mustRegister(t, inst, "alice", "secret1")
	mustRegister(t, inst, "bob", "secret2")
	loginAs(t, inst, "alice", "secret1")

	_, err := inst.chat.Send(ctx, "bob", "hi")
	require.NoError(t, err)
	_, err = inst.chat.CreateGroup(ctx, "team", []string{"carol"})
	require.NoError(t, err)

	var before int
	require.NoError(t, inst.stores.Durable.QueryRow(`SELECT COUNT(*) FROM changes`).Scan(&before))

	require.NoError(t, inst.chat.RenameUser(ctx, "bob", "robert"))

	rows, err := inst.stores.Durable.Query(`SELECT key FROM changes ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		require.NoError(t, rows.Scan(&k))
		keys = append(keys, k)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{MessagesKey}, keys[before:], "groups did not mention bob")

	require.NoError(t, inst.chat.RenameUser(ctx, "nobody", "someone"))
	var after int
	require.NoError(t, inst.stores.Durable.QueryRow(`SELECT COUNT(*) FROM changes`).Scan(&after))
	assert.Equal(t, len(keys), after, "rename without references must not write")
}

func TestChat_UserStatus(t *testing.T) {
	inst := newTestInstance(t)
	mustRegister(t, inst, "alice", "secret1")
	loginAs(t, inst, "alice", "secret1")

	online, seen, ok := inst.chat.UserStatus("alice")
	assert.True(t, ok)
	assert.True(t, online)
	assert.False(t, seen.IsZero())

	_, _, ok = inst.chat.UserStatus("ghost")
	assert.False(t, ok)
}

func TestSync_TwoInstancesOnOneDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	a := newInstance(t, path)
	b := newInstance(t, path)
	ctx := context.Background()

	mustRegister(t, a, "alice", "secret1")
	mustRegister(t, a, "bob", "secret2")
	loginAs(t, a, "alice", "secret1")

	events, cancel := b.chat.Subscribe()
	defer cancel()

	changes, err := b.stores.Watcher.Poll(ctx)
	require.NoError(t, err)
	require.NoError(t, b.chat.Sync(ctx, keysOf(changes)...))
	assert.Equal(t, StaleEvent{Key: UsersKey}, <-events)

	loginAs(t, b, "bob", "secret2")
	_, err = a.chat.Send(ctx, "bob", "hello from a")
	require.NoError(t, err)

	changes, err = b.stores.Watcher.Poll(ctx)
	require.NoError(t, err)
	require.NoError(t, b.chat.Sync(ctx, keysOf(changes)...))

	thread, err := b.chat.Thread("alice")
	require.NoError(t, err)
	require.Len(t, thread, 1)
	assert.Equal(t, "hello from a", thread[0].Text)

	own, err := a.stores.Watcher.Poll(ctx)
	require.NoError(t, err)
	for _, c := range own {
		assert.NotEqual(t, a.stores.Origin, c.Origin)
	}
}

func TestWatch_PropagatesAndSignalsStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	a := newInstance(t, path)
	b := newInstance(t, path)

	mustRegister(t, a, "alice", "secret1")
	mustRegister(t, a, "bob", "secret2")
	loginAs(t, a, "alice", "secret1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, unsubscribe := b.chat.Subscribe()
	defer unsubscribe()

	done := make(chan error, 1)
	go func() { done <- b.chat.Watch(ctx, b.stores.Watcher) }()

	_, err := a.chat.CreateGroup(context.Background(), "team", []string{"bob"})
	require.NoError(t, err)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Key != GroupsKey {
				continue
			}
			groups := b.chat.Groups()
			require.Len(t, groups, 1)
			assert.Equal(t, "team", groups[0].Name)

			cancel()
			assert.ErrorIs(t, <-done, context.Canceled)
			return
		case <-deadline:
			t.Fatal("no stale event for chat_groups")
		}
	}
}

func TestSubscribe_CancelClosesChannel(t *testing.T) {
	inst := newTestInstance(t)

	events, cancel := inst.chat.Subscribe()
	cancel()
	cancel()

	_, open := <-events
	assert.False(t, open)

	require.NoError(t, inst.chat.Sync(context.Background(), MessagesKey, "unrelated"))
}
