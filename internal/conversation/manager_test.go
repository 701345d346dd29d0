package conversation

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *BoltStore) {
	t.Helper()
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "keet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewManager(store), store
}

func TestAppend_UserAdvancesTurn(t *testing.T) {
	m, store := newTestManager(t)

	require.NoError(t, m.Append("u1", UserMessage("hi")))

	st, err := store.GetState("u1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Turn)
	require.Len(t, st.Messages, 1)
	assert.Equal(t, 1, st.Messages[0].Turn)

	// Assistant replies inherit the current turn without advancing it.
	require.NoError(t, m.Append("u1", Message{Role: RoleAssistant, Content: "hello"}))

	st, err = store.GetState("u1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Turn)
	require.Len(t, st.Messages, 2)
	assert.Equal(t, 1, st.Messages[1].Turn)
}

func TestAppend_TurnMonotonicityConcurrent(t *testing.T) {
	m, store := newTestManager(t)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Append("u1", UserMessage(fmt.Sprintf("msg %d", i))))
		}()
	}
	wg.Wait()

	st, err := store.GetState("u1")
	require.NoError(t, err)
	assert.Equal(t, n, st.Turn)

	// Retention keeps only the last three turns, but the tags that survive
	// must be distinct and within 1..n.
	seen := make(map[int]bool)
	for _, msg := range st.Messages {
		assert.False(t, seen[msg.Turn], "duplicate turn tag %d", msg.Turn)
		seen[msg.Turn] = true
		assert.GreaterOrEqual(t, msg.Turn, n-2)
		assert.LessOrEqual(t, msg.Turn, n)
	}
	assert.Len(t, seen, 3)
}

func TestAppend_RetentionKeepsSystemAndRecentTurns(t *testing.T) {
	m, store := newTestManager(t)

	require.NoError(t, m.Append("u1", SystemMessage("be helpful")))

	for i := 1; i <= 7; i++ {
		require.NoError(t, m.Append("u1", UserMessage(fmt.Sprintf("question %d", i))))
		require.NoError(t, m.Append("u1", Message{Role: RoleAssistant, Content: fmt.Sprintf("answer %d", i)}))
	}

	st, err := store.GetState("u1")
	require.NoError(t, err)
	assert.Equal(t, 7, st.Turn)

	var systems int
	for _, msg := range st.Messages {
		if msg.Role == RoleSystem {
			systems++
			continue
		}
		assert.GreaterOrEqual(t, msg.Turn, 5, "non-system message from turn %d survived", msg.Turn)
	}
	assert.Equal(t, 1, systems)
	// System message plus user/assistant pairs for turns 5, 6, 7.
	assert.Len(t, st.Messages, 7)
}

func TestHistory_StripsTurnTags(t *testing.T) {
	m, _ := newTestManager(t)

	require.NoError(t, m.Append("u1", UserMessage("hi")))
	require.NoError(t, m.Append("u1", Message{Role: RoleAssistant, Content: "hello"}))

	history, err := m.History("u1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, msg := range history {
		assert.Zero(t, msg.Turn)
	}
}

func TestHistory_ReadsAreIdempotent(t *testing.T) {
	m, _ := newTestManager(t)

	require.NoError(t, m.Append("u1", UserMessage("hi")))

	first, err := m.History("u1")
	require.NoError(t, err)
	second, err := m.History("u1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestHistory_LazyStateIsEmpty(t *testing.T) {
	m, _ := newTestManager(t)

	history, err := m.History("never-seen")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestFetchHistoryAndAppendUser_ReturnsPreAppendSnapshot(t *testing.T) {
	m, store := newTestManager(t)

	require.NoError(t, m.Append("u1", UserMessage("first")))

	history, err := m.FetchHistoryAndAppendUser("u1", "second")
	require.NoError(t, err)

	// The snapshot excludes the message just appended.
	require.Len(t, history, 1)
	assert.Equal(t, "first", history[0].Content)

	st, err := store.GetState("u1")
	require.NoError(t, err)
	assert.Equal(t, 2, st.Turn)
	require.Len(t, st.Messages, 2)
	assert.Equal(t, "second", st.Messages[1].Content)
}

func TestAppend_UsersAreIndependent(t *testing.T) {
	m, store := newTestManager(t)

	require.NoError(t, m.Append("u1", UserMessage("hi")))
	require.NoError(t, m.Append("u2", UserMessage("oi")))
	require.NoError(t, m.Append("u1", UserMessage("bye")))

	st1, err := store.GetState("u1")
	require.NoError(t, err)
	st2, err := store.GetState("u2")
	require.NoError(t, err)
	assert.Equal(t, 2, st1.Turn)
	assert.Equal(t, 1, st2.Turn)
}

func TestScenario_AlternatingTurnsWithPruning(t *testing.T) {
	m, store := newTestManager(t)

	require.NoError(t, m.Append("u1", UserMessage("hi")))
	st, _ := store.GetState("u1")
	assert.Equal(t, 1, st.Turn)
	require.Len(t, st.Messages, 1)

	require.NoError(t, m.Append("u1", Message{Role: RoleAssistant, Content: "hello"}))
	st, _ = store.GetState("u1")
	assert.Equal(t, 1, st.Turn)
	require.Len(t, st.Messages, 2)

	require.NoError(t, m.Append("u1", UserMessage("bye")))
	st, _ = store.GetState("u1")
	assert.Equal(t, 2, st.Turn)
	require.Len(t, st.Messages, 3)

	// Drive the counter to 7; everything tagged <= 4 must be gone.
	for i := 3; i <= 7; i++ {
		require.NoError(t, m.Append("u1", UserMessage(fmt.Sprintf("turn %d", i))))
		require.NoError(t, m.Append("u1", Message{Role: RoleAssistant, Content: "ok"}))
	}
	st, _ = store.GetState("u1")
	assert.Equal(t, 7, st.Turn)
	for _, msg := range st.Messages {
		assert.GreaterOrEqual(t, msg.Turn, 5)
	}
}

func TestClearHistory(t *testing.T) {
	m, _ := newTestManager(t)

	require.NoError(t, m.Append("u1", UserMessage("hi")))
	require.NoError(t, m.ClearHistory("u1"))

	history, err := m.History("u1")
	require.NoError(t, err)
	assert.Empty(t, history)
}
