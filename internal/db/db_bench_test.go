package db

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
)

func BenchmarkConcurrentRecordAndRead(b *testing.B) {
	dbPath := "test_bench.db"
	os.Remove(dbPath)
	os.Remove(dbPath + "-wal")
	os.Remove(dbPath + "-shm")

	db, err := InitDB(dbPath)
	if err != nil {
		b.Fatalf("failed to init db: %v", err)
	}
	defer func() {
		db.Close()
		os.Remove(dbPath)
		os.Remove(dbPath + "-wal")
		os.Remove(dbPath + "-shm")
	}()

	ctx := context.Background()
	var writeErrors int64
	var readErrors int64
	var firstErr error
	var once sync.Once

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if i%5 == 0 {
				err := db.RecordExchange(ctx, Exchange{
					RequestID: fmt.Sprintf("req-%d-%p", i, pb),
					ChatID:    1,
					Question:  "question",
					AnswerLen: 100,
					Chunks:    1,
				})
				if err != nil {
					atomic.AddInt64(&writeErrors, 1)
					once.Do(func() {
						firstErr = err
					})
				}
			} else {
				if _, err := db.RecentExchanges(ctx, 10); err != nil {
					atomic.AddInt64(&readErrors, 1)
					once.Do(func() {
						firstErr = err
					})
				}
			}
			i++
		}
	})
	b.StopTimer()

	if writeErrors > 0 || readErrors > 0 {
		b.Logf("Write errors: %d, Read errors: %d, First error: %v", writeErrors, readErrors, firstErr)
	}
}
