//go:build integration

package snapshot

import (
	"context"
	"testing"

	"github.com/Sternrassler/content-traverser/internal/testutil"
	"github.com/Sternrassler/content-traverser/pkg/traversal"
)

func TestIntegration_RedisStore(t *testing.T) {
	client := testutil.StartRedisContainer(t)
	runStoreContract(t, NewRedisStore(client))
}

func TestIntegration_RedisStoreResume(t *testing.T) {
	client := testutil.StartRedisContainer(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	tree := testutil.NewTree().
		AddFolder("/", "/a.jpg", "/b.jpg").
		AddAsset("/a.jpg").
		AddAsset("/b.jpg")

	state := traversal.State[string]{TraversalQueue: []string{"/"}}
	if err := Save(ctx, store, "resume", state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	restored, err := Load[string](ctx, store, "resume")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	tr, err := traversal.New[string](tree, traversal.DefaultConfig[string](), restored)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	res, err := tr.TraverseTree(ctx)
	if err != nil {
		t.Fatalf("TraverseTree() error = %v", err)
	}
	if res.Processed != 2 || res.Traversed != 3 {
		t.Errorf("processed=%d traversed=%d, want 2/3", res.Processed, res.Traversed)
	}
}
