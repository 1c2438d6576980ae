package main

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestComponentDispatchSinglePress(t *testing.T) {
	key := "1:create_ticket"
	if !beginComponentDispatch(key) {
		t.Fatal("first press should dispatch")
	}
	if beginComponentDispatch(key) {
		t.Error("second press while in flight should be dropped")
	}
	endComponentDispatch(key)
	if !beginComponentDispatch(key) {
		t.Error("press after the first finished should dispatch")
	}
	endComponentDispatch(key)
}

func TestComponentDispatchDistinctControls(t *testing.T) {
	if !beginComponentDispatch("1:create_ticket") {
		t.Fatal("first control should dispatch")
	}
	defer endComponentDispatch("1:create_ticket")

	// A different user on the same control and the same user on a
	// different control are both independent.
	if !beginComponentDispatch("2:create_ticket") {
		t.Error("other user should dispatch")
	}
	endComponentDispatch("2:create_ticket")
	if !beginComponentDispatch("1:close_ticket") {
		t.Error("other control should dispatch")
	}
	endComponentDispatch("1:close_ticket")
}

func TestComponentDispatchConcurrentPresses(t *testing.T) {
	key := "1:reaction_role:🔥"
	var dispatched atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if beginComponentDispatch(key) {
				dispatched.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := dispatched.Load(); got != 1 {
		t.Fatalf("expected exactly one press to dispatch, got %d", got)
	}
	endComponentDispatch(key)
}
