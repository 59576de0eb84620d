package jobstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/liqtrade/offer-extractor/constants"
	"github.com/liqtrade/offer-extractor/internal/entity"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Create(ctx, "j1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	job, ok, _ := store.Get(ctx, "j1")
	if !ok || job.Status != constants.JobStatusQueued {
		t.Fatalf("after create: %+v ok=%v", job, ok)
	}

	if err := store.MarkProcessing(ctx, "j1"); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	result := &entity.JobResult{Products: []entity.ProductRecord{{ProductName: "Baileys"}}}
	if err := store.Complete(ctx, "j1", result); err != nil {
		t.Fatalf("complete: %v", err)
	}

	job, _, _ = store.Get(ctx, "j1")
	if job.Status != constants.JobStatusDone || len(job.Result.Products) != 1 {
		t.Fatalf("after complete: %+v", job)
	}
}

func TestMemoryStoreTerminalExclusivity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.Create(ctx, "j1")
	_ = store.MarkProcessing(ctx, "j1")
	_ = store.Complete(ctx, "j1", &entity.JobResult{})

	if err := store.Fail(ctx, "j1", "late failure"); !errors.Is(err, ErrTerminal) {
		t.Fatalf("fail after done = %v, want ErrTerminal", err)
	}
	if err := store.MarkProcessing(ctx, "j1"); !errors.Is(err, ErrTerminal) {
		t.Fatalf("reprocess after done = %v, want ErrTerminal", err)
	}

	job, _, _ := store.Get(ctx, "j1")
	if job.Status != constants.JobStatusDone || job.Error != "" {
		t.Fatalf("terminal state mutated: %+v", job)
	}
}

func TestMemoryStoreUnknownJob(t *testing.T) {
	store := NewMemoryStore()
	if _, ok, _ := store.Get(context.Background(), "missing"); ok {
		t.Fatal("unknown job reported as present")
	}
}

func TestMemoryStoreConcurrentReads(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.Create(ctx, "j1")
	_ = store.MarkProcessing(ctx, "j1")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				store.Get(ctx, "j1")
			}
		}()
	}
	_ = store.Complete(ctx, "j1", &entity.JobResult{})
	wg.Wait()

	job, _, _ := store.Get(ctx, "j1")
	if !job.Status.IsTerminal() {
		t.Fatalf("status = %s", job.Status)
	}
}
