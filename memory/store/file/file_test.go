package file_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory/store/file"
)

func newStore(t *testing.T, cache bool) (*file.Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := file.New(&file.Config{Dir: dir, CacheEnabled: cache, CacheMaxBytes: 1 << 20})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, dir
}

func TestLoad_MissingReturnsDefault(t *testing.T) {
	s, _ := newStore(t, false)

	state, err := s.Load(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "u1", state.UserID)
	assert.Equal(t, "c1", state.ConversationID)
	assert.Empty(t, state.Identity)
	assert.NotNil(t, state.Facts)
	assert.Nil(t, state.ActiveTask)
	assert.Equal(t, core.StateVersion, state.Version)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	for _, cache := range []bool{false, true} {
		t.Run(fmt.Sprintf("cache=%v", cache), func(t *testing.T) {
			s, dir := newStore(t, cache)
			ctx := context.Background()

			state := core.NewConversationState("u1", "c1")
			state.Identity["name"] = "parv gaur"
			state.Preferences["favorite_food"] = "sushi"
			state.MessageCount = 3
			state.ActiveTask = &core.TaskState{
				TaskID: "t1",
				Type:   "ticket_booking",
				State:  map[string]string{"from": "delhi", "to": ""},
				Status: core.TaskInProgress,
			}
			require.NoError(t, s.Save(ctx, "u1", "c1", state))
			assert.FileExists(t, filepath.Join(dir, "u1", "c1.state.json"))

			got, err := s.Load(ctx, "u1", "c1")
			require.NoError(t, err)
			assert.Equal(t, "parv gaur", got.Identity["name"])
			assert.Equal(t, "sushi", got.Preferences["favorite_food"])
			assert.Equal(t, 3, got.MessageCount)
			require.NotNil(t, got.ActiveTask)
			assert.Equal(t, "delhi", got.ActiveTask.State["from"])

			// Loads are independent copies.
			got.Identity["name"] = "changed"
			again, err := s.Load(ctx, "u1", "c1")
			require.NoError(t, err)
			assert.Equal(t, "parv gaur", again.Identity["name"])

			// Overwrite is visible through the cache.
			state.Identity["name"] = "arjun"
			require.NoError(t, s.Save(ctx, "u1", "c1", state))
			again, err = s.Load(ctx, "u1", "c1")
			require.NoError(t, err)
			assert.Equal(t, "arjun", again.Identity["name"])
		})
	}
}

func TestLoad_CorruptReturnsDefault(t *testing.T) {
	s, dir := newStore(t, true)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "u1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "u1", "c1.state.json"), []byte(`{"identity": [`), 0o644))

	state, err := s.Load(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.Empty(t, state.Identity)
	assert.Equal(t, "c1", state.ConversationID)
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	s, dir := newStore(t, false)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		state := core.NewConversationState("u1", "c1")
		state.MessageCount = i
		require.NoError(t, s.Save(ctx, "u1", "c1", state))
	}

	entries, err := os.ReadDir(filepath.Join(dir, "u1"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "c1.state.json", entries[0].Name())
}

func TestDelete(t *testing.T) {
	s, _ := newStore(t, true)
	ctx := context.Background()

	state := core.NewConversationState("u1", "c1")
	state.Facts["project"] = "nim"
	require.NoError(t, s.Save(ctx, "u1", "c1", state))
	require.NoError(t, s.Delete(ctx, "u1", "c1"))

	got, err := s.Load(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Empty(t, got.Facts)

	// Deleting again is fine.
	require.NoError(t, s.Delete(ctx, "u1", "c1"))
}

func TestInvalidIDs(t *testing.T) {
	s, _ := newStore(t, false)
	ctx := context.Background()

	for _, id := range []string{"", ".", ".."} {
		_, err := s.Load(ctx, id, "c1")
		require.ErrorIs(t, err, core.ErrInvalidID, "user %q", id)
		err = s.Save(ctx, "u1", id, core.NewConversationState("u1", id))
		require.ErrorIs(t, err, core.ErrInvalidID, "conversation %q", id)
	}
}

func TestSafeComponent_StaysInsideDir(t *testing.T) {
	s, dir := newStore(t, false)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "../escape", "a/b", core.NewConversationState("../escape", "a/b")))

	var found []string
	require.NoError(t, filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			found = append(found, path)
		}
		return err
	}))
	require.Len(t, found, 1)
	assert.True(t, strings.HasPrefix(found[0], dir))

	got, err := file.SafeComponent("../escape")
	require.NoError(t, err)
	assert.NotContains(t, got, "/")
}

func TestConcurrentSaves(t *testing.T) {
	s, _ := newStore(t, true)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv := fmt.Sprintf("c%d", i%3)
			state := core.NewConversationState("u1", conv)
			state.MessageCount = i
			state.LastUpdated = time.Now()
			assert.NoError(t, s.Save(ctx, "u1", conv, state))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 3; i++ {
		got, err := s.Load(ctx, "u1", fmt.Sprintf("c%d", i))
		require.NoError(t, err)
		assert.Equal(t, i, got.MessageCount%3)
	}
}

func TestCancelledContext(t *testing.T) {
	s, _ := newStore(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Load(ctx, "u1", "c1")
	require.ErrorIs(t, err, context.Canceled)
}

func TestSafeComponent_Injective(t *testing.T) {
	seen := map[string]string{}
	for _, id := range []string{"alice/x", "alice_x", "alice%2Fx", "alice x", "alice:x", "Alice_x"} {
		got, err := file.SafeComponent(id)
		require.NoError(t, err, id)
		assert.NotContains(t, got, "/")
		if prev, ok := seen[got]; ok {
			t.Fatalf("%q and %q both map to %q", prev, id, got)
		}
		seen[got] = id
	}

	for _, id := range []string{"", ".", ".."} {
		_, err := file.SafeComponent(id)
		assert.ErrorIs(t, err, core.ErrInvalidID, id)
	}
}

func TestUsersDoNotShareDocuments(t *testing.T) {
	s, _ := newStore(t, true)
	ctx := context.Background()

	state := core.NewConversationState("alice/x", "c1")
	state.Identity["name"] = "alice"
	require.NoError(t, s.Save(ctx, "alice/x", "c1", state))

	got, err := s.Load(ctx, "alice_x", "c1")
	require.NoError(t, err)
	assert.Empty(t, got.Identity)

	got, err = s.Load(ctx, "alice/x", "c1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Identity["name"])
}
