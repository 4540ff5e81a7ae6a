package chatstore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
)

func BenchmarkSQLiteTurnStore_ListByConversation(b *testing.B) {
	dir := b.TempDir()
	dsn, err := SQLiteTurnDSNForFile(filepath.Join(dir, "turns.db"))
	if err != nil {
		b.Fatal(err)
	}
	store, err := NewSQLiteTurnStore(dsn)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	for i := 0; i < 2000; i++ {
		rec := TurnRecord{
			ConvID:      "conv-bench",
			TurnID:      fmt.Sprintf("turn-%d", i),
			Phase:       PhaseFinal,
			CreatedAtMs: int64(1_000 + i),
			Kind:        "status",
			UserMessage: fmt.Sprintf("text-%d", i),
			Messages: []MessageRecord{
				{ID: fmt.Sprintf("m-%d-u", i), Role: "user", Content: fmt.Sprintf("need towels %d", i), CreatedAtMs: int64(1_000 + i)},
				{ID: fmt.Sprintf("m-%d-a", i), Role: "assistant", Content: fmt.Sprintf("text-%d", i), CreatedAtMs: int64(1_000 + i)},
			},
		}
		if err := store.Save(ctx, rec); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := store.List(ctx, TurnQuery{ConvID: "conv-bench", Limit: 200})
		if err != nil {
			b.Fatal(err)
		}
	}
}
