package pipeline

import (
	"slices"

	"github.com/Carmen-Shannon/oxy-vk/engine/renderer/shader"
	"github.com/cockroachdb/errors"
)

// MergeBindings unions the descriptor bindings of every stage of a pipeline. Bindings that share an index have
// their stage masks ORed together; bindings unique to one stage are kept as they are. The result is sorted by
// binding index.
//
// Two stages declaring different descriptor types at the same index is a programming error and panics.
//
// Parameters:
//   - shaders: the pipeline's shaders, in any order
//
// Returns:
//   - []shader.Binding: the merged bindings, sorted by binding
func MergeBindings(shaders ...shader.Shader) []shader.Binding {
	merged := make(map[uint32]shader.Binding)
	for _, s := range shaders {
		if s == nil {
			continue
		}
		for _, b := range s.Bindings() {
			existing, ok := merged[b.Binding]
			if !ok {
				merged[b.Binding] = b
				continue
			}
			if existing.Type != b.Type {
				panic(errors.AssertionFailedf("binding %d is %v in one stage and %v in %s", b.Binding, existing.Type, b.Type, s.Key()))
			}
			existing.Stages |= b.Stages
			if existing.Name == "" {
				existing.Name = b.Name
			}
			merged[b.Binding] = existing
		}
	}

	out := make([]shader.Binding, 0, len(merged))
	for _, b := range merged {
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b shader.Binding) int {
		return int(a.Binding) - int(b.Binding)
	})
	return out
}

// MergePushConstants unions the push-constant ranges of a pipeline's shaders. Every stage that declares push
// constants must declare the same offset and size; a mismatch panics.
//
// Parameters:
//   - shaders: the pipeline's shaders, in any order
//
// Returns:
//   - *shader.PushConstantRange: the merged range with every declaring stage, or nil when no stage declares one
func MergePushConstants(shaders ...shader.Shader) *shader.PushConstantRange {
	var merged *shader.PushConstantRange
	for _, s := range shaders {
		if s == nil || s.PushConstants() == nil {
			continue
		}
		pc := *s.PushConstants()
		if merged == nil {
			merged = &pc
			continue
		}
		if merged.Offset != pc.Offset || merged.Size != pc.Size {
			panic(errors.AssertionFailedf("push constants of %s are [%d, +%d), other stages declare [%d, +%d)",
				s.Key(), pc.Offset, pc.Size, merged.Offset, merged.Size))
		}
		merged.Stages |= pc.Stages
	}
	return merged
}
