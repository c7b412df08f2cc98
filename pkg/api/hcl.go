package api

import (
	"fmt"
	"maps"
	"math/big"
	"slices"

	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

const metaBlock = "meta"

// decodeHCL reads the HCL layout of a parameter file:
//
//	parameters {
//	  class     = "builtin.Template"
//	  threshold = 5
//	  steps {
//	    flat { threshold = 2 }
//	  }
//	}
//
// Blocks become nested maps; block labels add one nesting level each.
func decodeHCL(data []byte, filename string) (document, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return document{}, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return document{}, fmt.Errorf("unexpected HCL body type %T", file.Body)
	}

	root, err := bodyToMap(body)
	if err != nil {
		return document{}, err
	}

	var doc document
	for key, v := range root {
		section, isMap := v.(map[string]any)
		switch {
		case key == ParametersKey && isMap:
			doc.Parameters = section
		case key == metaBlock && isMap:
			meta, err := metaFromMap(section)
			if err != nil {
				return document{}, err
			}
			doc.Meta = meta
		default:
			return document{}, fmt.Errorf("unexpected top-level %q in %s", key, filename)
		}
	}
	return doc, nil
}

func bodyToMap(body *hclsyntax.Body) (map[string]any, error) {
	out := make(map[string]any, len(body.Attributes)+len(body.Blocks))
	for name, attr := range body.Attributes {
		v, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("attribute %q: %w", name, diags)
		}
		native, err := ctyToNative(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		out[name] = native
	}

	for _, block := range body.Blocks {
		inner, err := bodyToMap(block.Body)
		if err != nil {
			return nil, fmt.Errorf("block %q: %w", block.Type, err)
		}
		target, key := out, block.Type
		for _, label := range block.Labels {
			next, isMap := target[key].(map[string]any)
			if !isMap {
				if _, exists := target[key]; exists {
					return nil, fmt.Errorf("block %q conflicts with an attribute", key)
				}
				next = make(map[string]any)
				target[key] = next
			}
			target, key = next, label
		}
		if _, exists := target[key]; exists {
			return nil, fmt.Errorf("duplicate block or attribute %q", key)
		}
		target[key] = inner
	}
	return out, nil
}

// ctyToNative converts a cty.Value to its most natural Go counterpart.
// Integral numbers become int so they round-trip through int parameters.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()

	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return int(i), nil
			}
		}
		f, _ := bf.Float64()
		return f, nil

	case ty == cty.Bool:
		var b bool
		if err := gocty.FromCtyValue(v, &b); err != nil {
			return nil, fmt.Errorf("converting cty.Bool: %w", err)
		}
		return b, nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		slice := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, val := it.Element()
			nativeVal, err := ctyToNative(val)
			if err != nil {
				return nil, err
			}
			slice = append(slice, nativeVal)
		}
		return slice, nil

	case ty.IsObjectType() || ty.IsMapType():
		goMap := make(map[string]any)
		it := v.ElementIterator()
		for it.Next() {
			key, val := it.Element()
			keyStr := key.AsString()
			nativeVal, err := ctyToNative(val)
			if err != nil {
				return nil, fmt.Errorf("in attribute '%s': %w", keyStr, err)
			}
			goMap[keyStr] = nativeVal
		}
		return goMap, nil

	default:
		return nil, fmt.Errorf("unsupported cty type %s", ty.FriendlyName())
	}
}

// nativeToCty is the inverse of ctyToNative for the value shapes parameters
// take.
func nativeToCty(v any) (cty.Value, error) {
	switch t := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case string:
		return cty.StringVal(t), nil
	case bool:
		return cty.BoolVal(t), nil
	case int:
		return cty.NumberIntVal(int64(t)), nil
	case int64:
		return cty.NumberIntVal(t), nil
	case float64:
		return cty.NumberFloatVal(t), nil
	case []string:
		elems := make([]any, len(t))
		for i, s := range t {
			elems[i] = s
		}
		return nativeToCty(elems)
	case []any:
		if len(t) == 0 {
			return cty.EmptyTupleVal, nil
		}
		vals := make([]cty.Value, len(t))
		for i, e := range t {
			cv, err := nativeToCty(e)
			if err != nil {
				return cty.NilVal, fmt.Errorf("element %d: %w", i, err)
			}
			vals[i] = cv
		}
		return cty.TupleVal(vals), nil
	case map[string]any:
		if len(t) == 0 {
			return cty.EmptyObjectVal, nil
		}
		vals := make(map[string]cty.Value, len(t))
		for k, e := range t {
			cv, err := nativeToCty(e)
			if err != nil {
				return cty.NilVal, fmt.Errorf("key %q: %w", k, err)
			}
			vals[k] = cv
		}
		return cty.ObjectVal(vals), nil
	default:
		ty, err := gocty.ImpliedType(v)
		if err != nil {
			return cty.NilVal, fmt.Errorf("unable to infer cty.Type: %w", err)
		}
		return gocty.ToCtyValue(v, ty)
	}
}

func encodeHCL(doc document) ([]byte, error) {
	f := hclwrite.NewEmptyFile()
	root := f.Body()

	if err := writeBody(root.AppendNewBlock(ParametersKey, nil).Body(), doc.Parameters); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", ParametersKey, err)
	}

	if doc.Meta != nil {
		root.AppendNewline()
		if err := writeBody(root.AppendNewBlock(metaBlock, nil).Body(), metaToMap(doc.Meta)); err != nil {
			return nil, fmt.Errorf("encoding %s: %w", metaBlock, err)
		}
	}
	return f.Bytes(), nil
}

// writeBody writes scalar and list values as attributes and nested maps as
// blocks, in sorted key order.
func writeBody(body *hclwrite.Body, values map[string]any) error {
	keys := slices.Sorted(maps.Keys(values))
	var blocks []string
	for _, k := range keys {
		if _, isMap := values[k].(map[string]any); isMap {
			blocks = append(blocks, k)
			continue
		}
		cv, err := nativeToCty(values[k])
		if err != nil {
			return fmt.Errorf("attribute %q: %w", k, err)
		}
		body.SetAttributeValue(k, cv)
	}
	for _, k := range blocks {
		if err := writeBody(body.AppendNewBlock(k, nil).Body(), values[k].(map[string]any)); err != nil {
			return fmt.Errorf("block %q: %w", k, err)
		}
	}
	return nil
}

func metaFromMap(m map[string]any) (*Meta, error) {
	meta := &Meta{}
	fields := map[string]*string{
		"reftype":     &meta.Reftype,
		"date":        &meta.Date,
		"description": &meta.Description,
		"author":      &meta.Author,
	}
	for k, v := range m {
		if k == "context" {
			ctx, isMap := v.(map[string]any)
			if !isMap {
				return nil, fmt.Errorf("meta.context must be a block, got %T", v)
			}
			meta.Context = ctx
			continue
		}
		dst, known := fields[k]
		if !known {
			return nil, fmt.Errorf("unknown meta field %q", k)
		}
		s, isString := v.(string)
		if !isString {
			return nil, fmt.Errorf("meta.%s must be a string, got %T", k, v)
		}
		*dst = s
	}
	return meta, nil
}

func metaToMap(meta *Meta) map[string]any {
	m := make(map[string]any)
	for k, v := range map[string]string{
		"reftype":     meta.Reftype,
		"date":        meta.Date,
		"description": meta.Description,
		"author":      meta.Author,
	} {
		if v != "" {
			m[k] = v
		}
	}
	if len(meta.Context) > 0 {
		m["context"] = meta.Context
	}
	return m
}
