package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/examhall/examhall-backend/internal/config"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func TestExamCacheByID(t *testing.T) {
	exam := sampleExam("A", "B")
	loader := newLoader(exam)
	cache, mr := newCache(t, loader)
	ctx := context.Background()

	got, err := cache.ByID(ctx, exam.ID)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if got.ExamName != exam.ExamName || len(got.Questions) != 2 {
		t.Fatalf("got %+v", got)
	}
	if got.Questions[1].CorrectAnswer != "B" {
		t.Error("answer key lost in cache round trip")
	}

	if _, err := cache.ByID(ctx, exam.ID); err != nil {
		t.Fatalf("ByID (cached): %v", err)
	}
	if n := loader.loads.Load(); n != 1 {
		t.Errorf("loads = %d, want 1", n)
	}

	ttl := mr.TTL(config.CacheKey.ExamDefinitionKey(exam.ID))
	if ttl < time.Minute || ttl > time.Minute+6*time.Second+time.Second {
		t.Errorf("ttl = %v, want one minute plus jitter", ttl)
	}
}

func TestExamCacheDeduplicatesMisses(t *testing.T) {
	exam := sampleExam("A")
	loader := newLoader(exam)
	loader.delay = 50 * time.Millisecond
	cache, _ := newCache(t, loader)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.ByID(context.Background(), exam.ID); err != nil {
				t.Errorf("ByID: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := loader.loads.Load(); n != 1 {
		t.Errorf("loads = %d, want 1", n)
	}
}

func TestExamCacheReturnsIndependentCopies(t *testing.T) {
	exam := sampleExam("A")
	cache, _ := newCache(t, newLoader(exam))
	ctx := context.Background()

	first, err := cache.ByID(ctx, exam.ID)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	first.Questions[0].CorrectAnswer = "D"

	second, err := cache.ByID(ctx, exam.ID)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if second.Questions[0].CorrectAnswer != "A" {
		t.Error("caller mutation leaked into cache")
	}
}

func TestExamCacheByCodeAndInvalidate(t *testing.T) {
	exam := sampleExam("C")
	loader := newLoader(exam)
	cache, mr := newCache(t, loader)
	ctx := context.Background()

	got, err := cache.ByCode(ctx, exam.ExamCode)
	if err != nil {
		t.Fatalf("ByCode: %v", err)
	}
	if got.ID != exam.ID {
		t.Fatalf("id = %s, want %s", got.ID, exam.ID)
	}
	if v, _ := mr.Get(config.CacheKey.ExamCodeKey(exam.ExamCode)); v != exam.ID.String() {
		t.Errorf("code mapping = %q", v)
	}

	if err := cache.Invalidate(ctx, exam.ID, exam.ExamCode); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if mr.Exists(config.CacheKey.ExamDefinitionKey(exam.ID)) || mr.Exists(config.CacheKey.ExamCodeKey(exam.ExamCode)) {
		t.Error("keys survived invalidation")
	}

	if _, err := cache.ByID(ctx, exam.ID); err != nil {
		t.Fatalf("ByID after invalidate: %v", err)
	}
	if n := loader.loads.Load(); n != 2 {
		t.Errorf("loads = %d, want 2", n)
	}
}

func TestExamCacheMissing(t *testing.T) {
	cache, _ := newCache(t, newLoader())
	ctx := context.Background()

	if _, err := cache.ByID(ctx, uuid.New()); !errors.Is(err, pgx.ErrNoRows) {
		t.Errorf("ByID err = %v, want pgx.ErrNoRows", err)
	}
	if _, err := cache.ByCode(ctx, "ZZZZ-ZZZZ"); !errors.Is(err, pgx.ErrNoRows) {
		t.Errorf("ByCode err = %v, want pgx.ErrNoRows", err)
	}
	if !errors.Is(notFound(pgx.ErrNoRows), ErrNotFound) {
		t.Error("notFound does not map pgx.ErrNoRows")
	}
}
