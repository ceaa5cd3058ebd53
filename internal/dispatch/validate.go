package dispatch

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/cloudwego/eino/schema"
)

func validateParams(spec *Spec, params Params) error {
	unknown := make([]string, 0)
	for name := range params {
		if _, ok := spec.Params[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return invalidParams(spec.Name, unknown[0], "unknown parameter %q", unknown[0])
	}

	names := make([]string, 0, len(spec.Params))
	for name := range spec.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		info := spec.Params[name]
		if info == nil {
			continue
		}
		value, present := params[name]
		if !present || value == nil {
			if info.Required {
				return invalidParams(spec.Name, name, "missing required parameter %q", name)
			}
			continue
		}
		if err := checkValue(name, info, value); err != nil {
			return invalidParams(spec.Name, name, "%v", err)
		}
	}
	return nil
}

func checkValue(name string, info *schema.ParameterInfo, value any) error {
	switch info.Type {
	case schema.String:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("parameter %q must be a string", name)
		}
		if info.Required && strings.TrimSpace(s) == "" {
			return fmt.Errorf("parameter %q must not be empty", name)
		}
		if len(info.Enum) > 0 && !slices.Contains(info.Enum, s) {
			return fmt.Errorf("parameter %q must be one of %s", name, strings.Join(info.Enum, ", "))
		}
	case schema.Number:
		if _, ok := toFloat(value); !ok {
			return fmt.Errorf("parameter %q must be a number", name)
		}
	case schema.Integer:
		f, ok := toFloat(value)
		if !ok || f != math.Trunc(f) {
			return fmt.Errorf("parameter %q must be an integer", name)
		}
	case schema.Boolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("parameter %q must be a boolean", name)
		}
	case schema.Object:
		obj, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("parameter %q must be an object", name)
		}
		for sub, subInfo := range info.SubParams {
			v, present := obj[sub]
			if !present || v == nil {
				if subInfo.Required {
					return fmt.Errorf("parameter %q is missing field %q", name, sub)
				}
				continue
			}
			if err := checkValue(name+"."+sub, subInfo, v); err != nil {
				return err
			}
		}
	case schema.Array:
		items, ok := value.([]any)
		if !ok {
			return fmt.Errorf("parameter %q must be an array", name)
		}
		if info.ElemInfo != nil {
			for i, item := range items {
				if err := checkValue(fmt.Sprintf("%s[%d]", name, i), info.ElemInfo, item); err != nil {
					return err
				}
			}
		}
	case "":
		// untyped: any JSON value is accepted
	default:
		return fmt.Errorf("parameter %q has unsupported schema type %q", name, info.Type)
	}
	return nil
}
