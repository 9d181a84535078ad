package util

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMailboxOrder(t *testing.T) {
	m := NewMailbox[int]()
	for i := range 100 {
		m.Push(i)
	}

	ctx := context.Background()
	for want := range 100 {
		got, ok := m.Pop(ctx)
		if !ok || got != want {
			t.Fatalf("Pop: got %d/%v, want %d", got, ok, want)
		}
	}
}

func TestMailboxConcurrentProducers(t *testing.T) {
	m := NewMailbox[int]()
	var wg sync.WaitGroup
	for p := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 250 {
				m.Push(p*1000 + i)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	last := map[int]int{0: -1, 1: -1, 2: -1, 3: -1}
	for range 1000 {
		v, ok := m.Pop(ctx)
		if !ok {
			t.Fatal("Pop returned early")
		}
		p, i := v/1000, v%1000
		if i <= last[p] {
			t.Fatalf("producer %d out of order: %d after %d", p, i, last[p])
		}
		last[p] = i
	}
	wg.Wait()
}

func TestMailboxClose(t *testing.T) {
	m := NewMailbox[string]()
	done := make(chan bool)
	go func() {
		_, ok := m.Pop(context.Background())
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	m.Close()
	m.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Pop after Close should report false")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Pop did not wake on Close")
	}

	if m.Push("late") {
		t.Error("Push after Close should report false")
	}
}

func TestMailboxContextCancel(t *testing.T) {
	m := NewMailbox[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := m.Pop(ctx); ok {
		t.Error("Pop with cancelled context should report false")
	}
}
