package main

import (
	"context"
	"testing"
)

// TestKVStateMachineApplySetGetDelete covers the three kvOp kinds Apply
// answers: a "get" right after a "set" must see the written value, and a
// "get" after "delete" must report Found=false.
func TestKVStateMachineApplySetGetDelete(t *testing.T) {
	ctx := context.Background()
	sm := newKVStateMachine()

	if _, err := sm.Apply(ctx, 1, kvOp{Kind: "set", Key: "k", Value: "v1"}); err != nil {
		t.Fatalf("Apply(set): %v", err)
	}

	result, err := sm.Apply(ctx, 2, kvOp{Kind: "get", Key: "k"})
	if err != nil {
		t.Fatalf("Apply(get): %v", err)
	}
	got, ok := result.(kvGetResult)
	if !ok {
		t.Fatalf("Apply(get) result type = %T, want kvGetResult", result)
	}
	if !got.Found || got.Value != "v1" {
		t.Fatalf("Apply(get) = %+v, want {Value:v1 Found:true}", got)
	}

	if _, err := sm.Apply(ctx, 3, kvOp{Kind: "delete", Key: "k"}); err != nil {
		t.Fatalf("Apply(delete): %v", err)
	}

	result, err = sm.Apply(ctx, 4, kvOp{Kind: "get", Key: "k"})
	if err != nil {
		t.Fatalf("Apply(get) after delete: %v", err)
	}
	got = result.(kvGetResult)
	if got.Found {
		t.Fatalf("Apply(get) after delete = %+v, want Found=false", got)
	}
}

// TestKVStateMachineApplyRejectsUnknownOperationType covers the defensive
// type assertion every Apply call starts with.
func TestKVStateMachineApplyRejectsUnknownOperationType(t *testing.T) {
	ctx := context.Background()
	sm := newKVStateMachine()

	if _, err := sm.Apply(ctx, 1, "not-a-kvop"); err == nil {
		t.Fatalf("Apply with wrong operation type: want error, got nil")
	}
}
