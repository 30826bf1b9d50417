package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"kisanbot/internal/domain"
)

func newTestStore(t *testing.T, maxExchanges int) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(StoreConfig{
		DBPath:       filepath.Join(t.TempDir(), "test.db"),
		MaxExchanges: maxExchanges,
		Logger:       slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendAndHistory(t *testing.T) {
	store := newTestStore(t, 10)
	ctx := context.Background()

	if err := store.Append(ctx, "u1", "how to treat blight", "use a copper fungicide"); err != nil {
		t.Fatal(err)
	}
	if err := store.Append(ctx, "u1", "how often", "every 7 to 10 days"); err != nil {
		t.Fatal(err)
	}

	history, err := store.History(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(history))
	}
	if history[0].Role != domain.RoleUser || history[0].Content != "how to treat blight" {
		t.Errorf("history not oldest-first: %+v", history[0])
	}
	if history[3].Role != domain.RoleAssistant || history[3].Content != "every 7 to 10 days" {
		t.Errorf("unexpected last entry: %+v", history[3])
	}
}

func TestHistory_UnseenUserEmpty(t *testing.T) {
	store := newTestStore(t, 10)

	history, err := store.History(context.Background(), "stranger")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Errorf("expected empty history, got %d entries", len(history))
	}
}

func TestBoundedEviction(t *testing.T) {
	store := newTestStore(t, 3)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		q := fmt.Sprintf("question %d", i)
		a := fmt.Sprintf("answer %d", i)
		if err := store.Append(ctx, "u1", q, a); err != nil {
			t.Fatal(err)
		}
	}

	history, err := store.History(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 6 {
		t.Fatalf("expected 6 entries (3 pairs), got %d", len(history))
	}
	if history[0].Content != "question 3" {
		t.Errorf("oldest pairs should be evicted first, got %q", history[0].Content)
	}
	if history[5].Content != "answer 5" {
		t.Errorf("newest pair must survive, got %q", history[5].Content)
	}
}

func TestEviction_PerUser(t *testing.T) {
	store := newTestStore(t, 2)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		if err := store.Append(ctx, "u1", fmt.Sprintf("q%d", i), "a"); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Append(ctx, "u2", "other user question", "other answer"); err != nil {
		t.Fatal(err)
	}

	h2, err := store.History(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if len(h2) != 2 {
		t.Errorf("u2 history must be unaffected by u1 eviction, got %d entries", len(h2))
	}
}

func TestConcurrentAppends(t *testing.T) {
	store := newTestStore(t, 50)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				q := fmt.Sprintf("g%d question %d", g, i)
				a := fmt.Sprintf("g%d answer %d", g, i)
				if err := store.Append(ctx, "u1", q, a); err != nil {
					t.Error(err)
				}
			}
		}(g)
	}
	wg.Wait()

	history, err := store.History(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 40 {
		t.Fatalf("expected 40 entries, got %d", len(history))
	}
	// Pairs must never interleave: roles strictly alternate in total order.
	for i, e := range history {
		want := domain.RoleUser
		if i%2 == 1 {
			want = domain.RoleAssistant
		}
		if e.Role != want {
			t.Fatalf("entry %d: expected role %s, got %s", i, want, e.Role)
		}
	}
}

func TestSeenMarkSeen(t *testing.T) {
	store := newTestStore(t, 10)
	ctx := context.Background()

	seen, err := store.Seen(ctx, "wamid.A1")
	if err != nil {
		t.Fatal(err)
	}
	if seen {
		t.Error("unknown message id should not be seen")
	}

	if err := store.MarkSeen(ctx, "wamid.A1"); err != nil {
		t.Fatal(err)
	}
	// Redelivery marks again without error.
	if err := store.MarkSeen(ctx, "wamid.A1"); err != nil {
		t.Fatal(err)
	}

	seen, err = store.Seen(ctx, "wamid.A1")
	if err != nil {
		t.Fatal(err)
	}
	if !seen {
		t.Error("marked message id should be seen")
	}
}

func TestClear(t *testing.T) {
	store := newTestStore(t, 10)
	ctx := context.Background()

	if err := store.Append(ctx, "u1", "q", "a"); err != nil {
		t.Fatal(err)
	}
	if err := store.Clear(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	history, err := store.History(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Errorf("expected empty history after clear, got %d", len(history))
	}
}

func TestPrune(t *testing.T) {
	store := newTestStore(t, 10)
	ctx := context.Background()

	if err := store.Append(ctx, "u1", "old question", "old answer"); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkSeen(ctx, "wamid.OLD"); err != nil {
		t.Fatal(err)
	}

	// A negative retention puts the cutoff in the future, expiring everything.
	if err := store.Prune(ctx, -time.Hour); err != nil {
		t.Fatal(err)
	}

	history, err := store.History(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Errorf("expected pruned history, got %d entries", len(history))
	}
	seen, err := store.Seen(ctx, "wamid.OLD")
	if err != nil {
		t.Fatal(err)
	}
	if seen {
		t.Error("seen record should be pruned")
	}
}
