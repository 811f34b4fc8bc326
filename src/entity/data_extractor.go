package entity

import (
	"context"
	"strings"
)

// DefaultDepth expands the relations of the extracted entity but not theirs.
const DefaultDepth = 1

// MaxDepth bounds relation expansion. Cyclic relations grow the output
// exponentially with every level.
const MaxDepth = 5

// fieldTree is a parsed field spec. A nil subtree marks a bare field.
type fieldTree map[string]fieldTree

var allFields = fieldTree{"*": nil}

// parseFields reads specs such as "title,author.name,tags.*". An empty spec selects all fields.
func parseFields(spec string) fieldTree {
	tree := fieldTree{}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		node := tree
		segments := strings.Split(part, ".")
		segments = segments[:min(len(segments), MaxDepth+1)]
		for i, segment := range segments {
			if i == len(segments)-1 {
				if _, exists := node[segment]; !exists {
					node[segment] = nil
				}
				break
			}

			child := node[segment]
			if child == nil {
				child = fieldTree{}
				node[segment] = child
			}
			node = child
		}
	}

	if len(tree) == 0 {
		return allFields
	}
	return tree
}

// DataExtractor flattens entities into maps for API responses. Relations selected by
// "*" or by their bare name are expanded while the nesting level is below the depth
// and rendered as ids beyond it. Relations with explicit sub-fields always expand.
type DataExtractor struct {
	depth int
}

// FieldsDepth returns how many relation levels a field spec reaches.
func FieldsDepth(spec string) int {
	depth := 0
	for _, part := range strings.Split(spec, ",") {
		depth = max(depth, strings.Count(strings.TrimSpace(part), "."))
	}
	return depth
}

// NewDataExtractor clamps depth to [0, MaxDepth].
func NewDataExtractor(depth int) *DataExtractor {
	return &DataExtractor{depth: min(max(depth, 0), MaxDepth)}
}

func (x *DataExtractor) Extract(ctx context.Context, e *Entity, fields string) (map[string]any, error) {
	return x.extract(ctx, e, parseFields(fields), 0)
}

func (x *DataExtractor) ExtractCollection(ctx context.Context, c *Collection, fields string) ([]map[string]any, error) {
	return x.extractCollection(ctx, c, parseFields(fields), 0)
}

func (x *DataExtractor) extractCollection(ctx context.Context, c *Collection, tree fieldTree, level int) ([]map[string]any, error) {
	entities, err := c.All(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		data, err := x.extract(ctx, e, tree, level)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

func (x *DataExtractor) extract(ctx context.Context, e *Entity, tree fieldTree, level int) (map[string]any, error) {
	data := map[string]any{"id": e.ID()}
	_, all := tree["*"]

	for _, name := range e.order {
		subtree, selected := tree[name]
		if !selected && !all {
			continue
		}

		value, err := x.value(ctx, e.attributes[name], subtree, level)
		if err != nil {
			return nil, err
		}
		data[name] = value
	}
	return data, nil
}

func (x *DataExtractor) value(ctx context.Context, attribute Attribute, subtree fieldTree, level int) (any, error) {
	expand := subtree != nil || level < x.depth
	if subtree == nil {
		subtree = allFields
	}

	switch a := attribute.(type) {
	case *Many2OneAttribute:
		if !expand {
			return a.ToArray(), nil
		}
		target, err := a.Load(ctx)
		if err != nil || target == nil {
			return nil, err
		}
		return x.extract(ctx, target, subtree, level+1)
	case *One2ManyAttribute:
		return x.collection(ctx, a.Collection(), subtree, expand, level)
	case *Many2ManyAttribute:
		return x.collection(ctx, a.Collection(), subtree, expand, level)
	case *DynamicAttribute:
		switch v := a.Value().(type) {
		case *Entity:
			if !expand {
				return v.ID(), nil
			}
			return x.extract(ctx, v, subtree, level+1)
		case *Collection:
			return x.collection(ctx, v, subtree, expand, level)
		}
	}
	return attribute.ToArray(), nil
}

func (x *DataExtractor) collection(ctx context.Context, c *Collection, subtree fieldTree, expand bool, level int) (any, error) {
	if !expand {
		return c.IDs(ctx)
	}
	return x.extractCollection(ctx, c, subtree, level+1)
}
