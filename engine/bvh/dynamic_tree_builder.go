package bvh

// DefaultRebuildRatio is the fraction of the payload count that incremental edits may reach before a full rebuild.
const DefaultRebuildRatio = 0.5

type dynamicTreeOptions struct {
	rebuildRatio float64
}

// DynamicTreeBuilderOption is a functional option for configuring a DynamicTree.
type DynamicTreeBuilderOption func(*dynamicTreeOptions)

// WithRebuildRatio sets how many incremental edits, as a fraction of the payload count, trigger a full rebuild.
// A negative ratio disables automatic rebuilds; zero rebuilds after every edit.
//
// Parameters:
//   - ratio: the edit ratio
//
// Returns:
//   - DynamicTreeBuilderOption: a function that applies the ratio
func WithRebuildRatio(ratio float64) DynamicTreeBuilderOption {
	return func(o *dynamicTreeOptions) {
		o.rebuildRatio = ratio
	}
}
