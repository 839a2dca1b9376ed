// Package traversal provides a resumable tree traversal and batch processing engine.
//
// A Traverser walks a tree described by a Source, decides which nodes need
// processing and processes them with bounded concurrency. Two drains run side
// by side: the traversal drain expands nodes (child discovery) and the
// processing drain executes the side effect for qualifying nodes.
//
// Example usage:
//
//	t, err := traversal.New[string](source, traversal.DefaultConfig[string](), nil)
//	if err != nil {
//		return err
//	}
//	result, err := t.TraverseTree(ctx, "/")
//
// The traverser:
//   - Swaps out the whole queue at the start of every drain iteration (batch)
//   - Retries a failed expansion exactly once, at the back of the queue
//   - Never retries a failed process call
//   - Records every permanent failure in the error log instead of aborting
//   - Can be stopped cooperatively and snapshotted with GetState
//
// A State returned by GetState is JSON encodable and can be passed to New to
// resume the walk in another process.
package traversal
