package traversal

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/content-traverser/internal/testutil"
)

// testConfig returns a quiet configuration with a short polling interval.
func testConfig[N any]() Config[N] {
	cfg := DefaultConfig[N]()
	cfg.WaitDuration = 5 * time.Millisecond
	nop := zerolog.Nop()
	cfg.Logger = &nop
	return cfg
}

func noOpSource() SourceFuncs[string] {
	return SourceFuncs[string]{
		HasChildrenFn:   func(context.Context, string) (bool, error) { return false, nil },
		GetChildrenFn:   func(context.Context, string) ([]string, error) { return nil, nil },
		ShouldProcessFn: func(context.Context, string) (bool, error) { return false, nil },
		ProcessFn:       func(context.Context, string) error { return nil },
	}
}

func mustNew[N any](t *testing.T, source Source[N], cfg Config[N], state *State[N]) *Traverser[N] {
	t.Helper()
	tr, err := New(source, cfg, state)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return tr
}

func traverse[N any](t *testing.T, tr *Traverser[N], roots ...N) Result[N] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := tr.TraverseTree(ctx, roots...)
	if err != nil {
		t.Fatalf("TraverseTree() error = %v", err)
	}
	if res.Stopped {
		t.Fatal("TraverseTree() stopped before the tree was exhausted")
	}
	return res
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		source      Source[string]
		wantErr     bool
		wantMissing []string
	}{
		{
			name:        "empty funcs",
			source:      SourceFuncs[string]{},
			wantErr:     true,
			wantMissing: []string{"GetChildrenFn", "HasChildrenFn", "ProcessFn", "ShouldProcessFn"},
		},
		{
			name: "missing process",
			source: SourceFuncs[string]{
				HasChildrenFn:   noOpSource().HasChildrenFn,
				GetChildrenFn:   noOpSource().GetChildrenFn,
				ShouldProcessFn: noOpSource().ShouldProcessFn,
			},
			wantErr:     true,
			wantMissing: []string{"ProcessFn"},
		},
		{
			name:    "nil source",
			source:  nil,
			wantErr: true,
		},
		{
			name:   "complete funcs",
			source: noOpSource(),
		},
		{
			name:   "interface implementation",
			source: testutil.NewTree(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := New(tt.source, testConfig[string](), nil)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("New() error = %v", err)
				}
				if tr.Status() != StatusIdle {
					t.Errorf("Status() = %s, want %s", tr.Status(), StatusIdle)
				}
				return
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("New() error = %v, want ErrInvalidConfig", err)
			}
			for _, field := range tt.wantMissing {
				if !strings.Contains(err.Error(), field) {
					t.Errorf("error %q does not name %s", err, field)
				}
			}
		})
	}
}

func TestNew_ReloadState(t *testing.T) {
	state := State[string]{
		Errors:          []ErrorEntry[string]{{Phase: PhaseProcess, Node: "file1", Error: "bad"}},
		Processed:       1,
		Traversed:       1,
		TraversalQueue:  []string{"folder3"},
		ProcessingQueue: []string{"file3"},
		TraversalBatch:  []string{"folder2"},
		ProcessingBatch: []string{"file2"},
	}

	tr := mustNew(t, Source[string](noOpSource()), testConfig[string](), &state)

	got := tr.GetState()
	if !reflect.DeepEqual(got, state) {
		t.Errorf("GetState() = %+v, want %+v", got, state)
	}
	if tr.Status() != StatusIdle {
		t.Errorf("Status() = %s, want %s", tr.Status(), StatusIdle)
	}
}

func TestGetState_ReturnsCopies(t *testing.T) {
	state := State[string]{
		TraversalQueue:  []string{"a"},
		ProcessingQueue: []string{"b"},
	}
	tr := mustNew(t, Source[string](noOpSource()), testConfig[string](), &state)

	snap := tr.GetState()
	snap.TraversalQueue[0] = "mutated"
	snap.ProcessingQueue[0] = "mutated"
	state.TraversalQueue[0] = "mutated"

	again := tr.GetState()
	if again.TraversalQueue[0] != "a" || again.ProcessingQueue[0] != "b" {
		t.Errorf("GetState() exposed internal slices: %+v", again)
	}
}

func TestTraverseTree_Terminates(t *testing.T) {
	tr := mustNew(t, Source[string](noOpSource()), testConfig[string](), nil)

	res := traverse(t, tr, "")

	if res.Traversed != 1 {
		t.Errorf("Traversed = %d, want 1", res.Traversed)
	}
	if res.Processed != 0 {
		t.Errorf("Processed = %d, want 0", res.Processed)
	}
	if len(res.Errors) != 0 {
		t.Errorf("Errors = %v, want none", res.Errors)
	}
	if tr.Status() != StatusTerminated {
		t.Errorf("Status() = %s, want %s", tr.Status(), StatusTerminated)
	}

	tr.mu.Lock()
	running, moreNodes := tr.running, tr.moreNodes
	tr.mu.Unlock()
	if running || moreNodes {
		t.Errorf("flags after run: running=%v moreNodes=%v, want both false", running, moreNodes)
	}
}

func TestTraverseTree_AlreadyStarted(t *testing.T) {
	tr := mustNew(t, Source[string](noOpSource()), testConfig[string](), nil)
	traverse(t, tr, "")

	_, err := tr.TraverseTree(context.Background(), "")
	if !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second TraverseTree() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestTraverseTree_ProcessesRemainingQueue(t *testing.T) {
	source := noOpSource()
	source.ProcessFn = func(context.Context, string) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	}
	state := State[string]{
		Processed:       2,
		Traversed:       2,
		ProcessingQueue: []string{"file3"},
	}
	tr := mustNew(t, Source[string](source), testConfig[string](), &state)

	res := traverse(t, tr, "")

	if res.Processed != 3 {
		t.Errorf("Processed = %d, want 3", res.Processed)
	}
	if got := tr.GetState().ProcessingQueue; len(got) != 0 {
		t.Errorf("ProcessingQueue = %v, want empty", got)
	}
}

func TestTraverseTree_ProcessorErrors(t *testing.T) {
	source := noOpSource()
	source.ProcessFn = func(context.Context, string) error { return errors.New("bad") }
	state := State[string]{
		Processed:       2,
		Traversed:       2,
		ProcessingQueue: []string{"file3"},
	}
	tr := mustNew(t, Source[string](source), testConfig[string](), &state)

	res := traverse(t, tr, "")

	if res.Processed != 2 {
		t.Errorf("Processed = %d, want 2", res.Processed)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("Errors = %v, want 1 entry", res.Errors)
	}
	entry := res.Errors[0]
	if entry.Node != "file3" || entry.Phase != PhaseProcess || entry.Error != "bad" {
		t.Errorf("Errors[0] = %+v, want process failure for file3", entry)
	}
	if got := tr.GetState().ProcessingQueue; len(got) != 0 {
		t.Errorf("ProcessingQueue = %v, want empty", got)
	}
}

func TestTraverseTree_ProcessErrorsDoNotBlockSiblings(t *testing.T) {
	tree := testutil.NewTree().
		AddFolder("root", "a", "b", "c").
		AddAsset("a").AddAsset("b").AddAsset("c").
		FailProcessing("b")
	tr := mustNew(t, Source[string](tree), testConfig[string](), nil)

	res := traverse(t, tr, "root")

	if res.Processed != 2 {
		t.Errorf("Processed = %d, want 2", res.Processed)
	}
	if len(res.Errors) != 1 || res.Errors[0].Phase != PhaseProcess || res.Errors[0].Node != "b" {
		t.Errorf("Errors = %+v, want exactly one process failure for b", res.Errors)
	}
	if !errors.Is(res.Errors[0].Cause(), testutil.ErrInjected) {
		t.Errorf("Cause() = %v, want ErrInjected", res.Errors[0].Cause())
	}
	if got := tree.Processed(); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Errorf("processed nodes = %v, want [a c]", got)
	}
}

// familyNode is either a name leaf or a member with children.
type familyNode struct {
	Name     string       `json:"name,omitempty"`
	Children []familyNode `json:"children,omitempty"`
}

func member(name string, kids ...familyNode) familyNode {
	return familyNode{Children: append([]familyNode{{Name: name}}, kids...)}
}

func TestTraverseTree_FamilyTree(t *testing.T) {
	familyTree := member("Sue",
		member("Dan", member("Sarah"), member("Will")),
		member("Megan", member("Charles"), member("Clara")),
		member("Mara"),
	)

	var mu sync.Mutex
	names := make(map[string]bool)
	source := SourceFuncs[familyNode]{
		HasChildrenFn: func(_ context.Context, n familyNode) (bool, error) {
			return n.Name == "", nil
		},
		GetChildrenFn: func(_ context.Context, n familyNode) ([]familyNode, error) {
			time.Sleep(time.Millisecond)
			return n.Children, nil
		},
		ShouldProcessFn: func(_ context.Context, n familyNode) (bool, error) {
			return n.Name != "", nil
		},
		ProcessFn: func(_ context.Context, n familyNode) error {
			time.Sleep(time.Millisecond)
			mu.Lock()
			names[n.Name] = true
			mu.Unlock()
			return nil
		},
	}

	cfg := testConfig[familyNode]()
	cfg.FormatForLog = func(n familyNode) any { return n.Name }
	tr := mustNew(t, Source[familyNode](source), cfg, nil)

	res := traverse(t, tr, familyTree)

	if res.Processed != 8 {
		t.Errorf("Processed = %d, want 8", res.Processed)
	}
	if res.Traversed != 16 {
		t.Errorf("Traversed = %d, want 16", res.Traversed)
	}
	if len(res.Errors) != 0 {
		t.Errorf("Errors = %v, want none", res.Errors)
	}
	if len(names) != 8 {
		t.Errorf("processed names = %v, want 8 distinct", names)
	}

	state := tr.GetState()
	if len(state.TraversalQueue) != 0 || len(state.ProcessingQueue) != 0 {
		t.Errorf("queues not drained: %+v", state)
	}
}

func TestTraverseTree_Concurrent(t *testing.T) {
	tree := testutil.NewTree()
	var assets []string
	var folders []string
	for f := 0; f < 5; f++ {
		folder := "folder" + string(rune('a'+f))
		folders = append(folders, folder)
		var kids []string
		for a := 0; a < 10; a++ {
			asset := folder + "/asset" + string(rune('0'+a))
			kids = append(kids, asset)
			assets = append(assets, asset)
			tree.AddAsset(asset)
		}
		tree.AddFolder(folder, kids...)
	}
	tree.AddFolder("root", folders...)
	tree.Delay = time.Millisecond

	var inFlight, peak int32
	source := SourceFuncs[string]{
		HasChildrenFn:   tree.HasChildren,
		GetChildrenFn:   tree.GetChildren,
		ShouldProcessFn: tree.ShouldProcess,
		ProcessFn: func(ctx context.Context, node string) error {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			defer atomic.AddInt32(&inFlight, -1)
			return tree.Process(ctx, node)
		},
	}

	cfg := testConfig[string]()
	cfg.ProcessConcurrency = 4
	cfg.TraversalConcurrency = 3
	tr := mustNew(t, Source[string](source), cfg, nil)

	res := traverse(t, tr, "root")

	if res.Traversed != 1+len(folders)+len(assets) {
		t.Errorf("Traversed = %d, want %d", res.Traversed, 1+len(folders)+len(assets))
	}
	if res.Processed != len(assets) {
		t.Errorf("Processed = %d, want %d", res.Processed, len(assets))
	}
	sort.Strings(assets)
	if got := tree.Processed(); !reflect.DeepEqual(got, assets) {
		t.Errorf("processed nodes = %v, want %v", got, assets)
	}
	if p := atomic.LoadInt32(&peak); p > 4 {
		t.Errorf("peak concurrent Process calls = %d, want <= 4", p)
	}
}

type retryNode struct {
	ID     int `json:"id"`
	failAt int
}

func TestTraverseTree_RetriesOnce(t *testing.T) {
	var mu sync.Mutex
	calls := make(map[int]int)
	source := SourceFuncs[retryNode]{
		HasChildrenFn: func(_ context.Context, n retryNode) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			calls[n.ID]++
			if calls[n.ID] <= n.failAt {
				return false, errors.New("sad")
			}
			return false, nil
		},
		GetChildrenFn:   func(context.Context, retryNode) ([]retryNode, error) { return nil, nil },
		ShouldProcessFn: func(context.Context, retryNode) (bool, error) { return false, nil },
		ProcessFn:       func(context.Context, retryNode) error { return nil },
	}
	state := State[retryNode]{
		TraversalQueue: []retryNode{
			{ID: 1, failAt: 0},
			{ID: 2, failAt: 1},
			{ID: 3, failAt: 2},
		},
	}
	tr := mustNew(t, Source[retryNode](source), testConfig[retryNode](), &state)

	res := traverse(t, tr, retryNode{ID: 0})

	if res.Traversed != 3 {
		t.Errorf("Traversed = %d, want 3", res.Traversed)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("Errors = %+v, want 1 entry", res.Errors)
	}
	if res.Errors[0].Phase != PhaseTraverse || res.Errors[0].Node.ID != 3 {
		t.Errorf("Errors[0] = %+v, want traverse failure for node 3", res.Errors[0])
	}
	if got := tr.GetState().TraversalQueue; len(got) != 0 {
		t.Errorf("TraversalQueue = %v, want empty", got)
	}

	mu.Lock()
	defer mu.Unlock()
	want := map[int]int{0: 1, 1: 1, 2: 2, 3: 2}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("HasChildren calls = %v, want %v", calls, want)
	}
}

func TestTraverseTree_TraversedExcludesFailedNodes(t *testing.T) {
	tree := testutil.NewTree().
		AddFolder("/", "/a", "/broken", "/c.jpg").
		AddFolder("/a", "/a/x.jpg").
		AddFolder("/broken", "/broken/lost.jpg").
		AddAsset("/c.jpg").
		AddAsset("/a/x.jpg").
		AddAsset("/broken/lost.jpg").
		FailExpansion("/broken", 2)
	tr := mustNew(t, Source[string](tree), testConfig[string](), nil)

	res := traverse(t, tr, "/")

	if res.Traversed != 4 {
		t.Errorf("Traversed = %d, want 4 (/, /a, /a/x.jpg, /c.jpg)", res.Traversed)
	}
	if res.Processed != 2 {
		t.Errorf("Processed = %d, want 2", res.Processed)
	}
	if len(res.Errors) != 1 || res.Errors[0].Node != "/broken" || res.Errors[0].Phase != PhaseTraverse {
		t.Errorf("Errors = %+v, want one traverse failure for /broken", res.Errors)
	}
}

func TestTraverseTree_RetriedMarkerSurvivesSnapshot(t *testing.T) {
	tree := testutil.NewTree().FailExpansion("flaky", 1)
	state := State[string]{
		TraversalQueue:   []string{"flaky"},
		TraversalRetried: []int{0},
	}
	tr := mustNew(t, Source[string](tree), testConfig[string](), &state)

	res := traverse(t, tr)

	if res.Traversed != 0 {
		t.Errorf("Traversed = %d, want 0", res.Traversed)
	}
	if len(res.Errors) != 1 || res.Errors[0].Phase != PhaseTraverse {
		t.Errorf("Errors = %+v, want one traverse failure", res.Errors)
	}
	if calls := tree.ExpansionCalls("flaky"); calls != 1 {
		t.Errorf("expansion calls = %d, want 1", calls)
	}
}

func TestTraverseTree_RecoversPanics(t *testing.T) {
	source := noOpSource()
	source.ShouldProcessFn = func(context.Context, string) (bool, error) { return true, nil }
	source.ProcessFn = func(_ context.Context, node string) error {
		if node == "boom" {
			panic("kaboom")
		}
		return nil
	}
	state := State[string]{TraversalQueue: []string{"ok"}}
	tr := mustNew(t, Source[string](source), testConfig[string](), &state)

	res := traverse(t, tr, "boom")

	if res.Processed != 1 {
		t.Errorf("Processed = %d, want 1", res.Processed)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("Errors = %+v, want 1 entry", res.Errors)
	}
	var panicErr *PanicError
	if !errors.As(res.Errors[0].Cause(), &panicErr) {
		t.Fatalf("Cause() = %v, want *PanicError", res.Errors[0].Cause())
	}
	if panicErr.Value != "kaboom" {
		t.Errorf("PanicError.Value = %v, want kaboom", panicErr.Value)
	}
}

func TestTraverseTree_ResumeAddsSeededAsset(t *testing.T) {
	tree := testutil.NewTree().
		AddFolder("/", "/folder").
		AddFolder("/folder", "/folder/asset2.jpg").
		AddAsset("/asset1.jpg").
		AddAsset("/folder/asset2.jpg")
	state := State[string]{
		Processed:       4,
		Traversed:       7,
		TraversalQueue:  []string{"/asset1.jpg"},
		ProcessingQueue: []string{},
	}
	tr := mustNew(t, Source[string](tree), testConfig[string](), &state)

	res := traverse(t, tr)

	if res.Traversed != 8 {
		t.Errorf("Traversed = %d, want 8", res.Traversed)
	}
	if res.Processed != 5 {
		t.Errorf("Processed = %d, want 5", res.Processed)
	}
	if got := tree.Processed(); !reflect.DeepEqual(got, []string{"/asset1.jpg"}) {
		t.Errorf("processed nodes = %v, want [/asset1.jpg]", got)
	}
}

func buildWideTree() (*testutil.Tree, int, int) {
	tree := testutil.NewTree()
	var folders []string
	assets := 0
	for f := 0; f < 4; f++ {
		folder := "/f" + string(rune('0'+f))
		folders = append(folders, folder)
		var kids []string
		for a := 0; a < 5; a++ {
			asset := folder + "/a" + string(rune('0'+a))
			kids = append(kids, asset)
			tree.AddAsset(asset)
			assets++
		}
		tree.AddFolder(folder, kids...)
	}
	tree.AddFolder("/", folders...)
	return tree, 1 + len(folders) + assets, assets
}

func TestTraverseTree_CancelLeavesResumableState(t *testing.T) {
	tree, nodes, assets := buildWideTree()
	tree.Delay = 2 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	first := mustNew(t, Source[string](tree), testConfig[string](), nil)
	res, err := first.TraverseTree(ctx, "/")
	if err != nil {
		t.Fatalf("TraverseTree() error = %v", err)
	}
	if !res.Stopped {
		t.Fatal("Stopped = false, want true after cancellation")
	}
	if first.Status() != StatusTerminated {
		t.Errorf("Status() = %s, want %s", first.Status(), StatusTerminated)
	}

	state := first.GetState()
	if len(state.TraversalBatch) != 0 || len(state.ProcessingBatch) != 0 {
		t.Errorf("in-flight batches left after stop: %+v", state)
	}

	second := mustNew(t, Source[string](tree), testConfig[string](), &state)
	final := traverse(t, second)

	if final.Traversed != nodes {
		t.Errorf("Traversed = %d, want %d", final.Traversed, nodes)
	}
	if final.Processed != assets {
		t.Errorf("Processed = %d, want %d", final.Processed, assets)
	}
	if got := tree.Processed(); len(got) != assets {
		t.Errorf("processed nodes = %d, want %d with no duplicates", len(got), assets)
	}
}

func TestTraverseTree_StopMidRun(t *testing.T) {
	tree, nodes, assets := buildWideTree()

	var tr *Traverser[string]
	var once sync.Once
	tree.OnProcess = func(string) {
		once.Do(func() { tr.Stop() })
	}
	tr = mustNew(t, Source[string](tree), testConfig[string](), nil)

	res, err := tr.TraverseTree(context.Background(), "/")
	if err != nil {
		t.Fatalf("TraverseTree() error = %v", err)
	}
	if !res.Stopped {
		t.Fatal("Stopped = false, want true")
	}

	state := tr.GetState()
	resumed := mustNew(t, Source[string](tree), testConfig[string](), &state)
	final := traverse(t, resumed)

	if final.Traversed != nodes || final.Processed != assets {
		t.Errorf("after resume traversed=%d processed=%d, want %d/%d", final.Traversed, final.Processed, nodes, assets)
	}
	if len(final.Errors) != 0 {
		t.Errorf("Errors = %v, want none", final.Errors)
	}
}

func TestStop_BeforeStartIsNoop(t *testing.T) {
	tr := mustNew(t, Source[string](noOpSource()), testConfig[string](), nil)
	tr.Stop()

	res := traverse(t, tr, "")
	if res.Traversed != 1 {
		t.Errorf("Traversed = %d, want 1", res.Traversed)
	}
}

func TestStatus_Transitions(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	source := noOpSource()
	source.ShouldProcessFn = func(context.Context, string) (bool, error) { return true, nil }
	source.ProcessFn = func(context.Context, string) error {
		once.Do(func() { close(entered) })
		<-release
		return nil
	}
	tr := mustNew(t, Source[string](source), testConfig[string](), nil)

	if tr.Status() != StatusIdle {
		t.Fatalf("Status() = %s, want %s", tr.Status(), StatusIdle)
	}

	done := make(chan Result[string], 1)
	go func() {
		res, _ := tr.TraverseTree(context.Background(), "only")
		done <- res
	}()

	<-entered
	if s := tr.Status(); s != StatusRunning && s != StatusDraining {
		t.Errorf("Status() during run = %s, want running or draining", s)
	}
	close(release)

	select {
	case res := <-done:
		if res.Processed != 1 {
			t.Errorf("Processed = %d, want 1", res.Processed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("TraverseTree() did not return")
	}
	if tr.Status() != StatusTerminated {
		t.Errorf("Status() = %s, want %s", tr.Status(), StatusTerminated)
	}
}
