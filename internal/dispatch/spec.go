package dispatch

import (
	"context"
	"sort"

	"github.com/MEKXH/taskgate/internal/policy"
	"github.com/cloudwego/eino/schema"
)

// PerformFunc is the effect of an action. It runs only after every declared
// path has passed the gate.
type PerformFunc func(ctx context.Context, call *Call) (any, error)

// PathParam declares one path an action touches and the intent it needs.
// When Fixed is set the path is not taken from the request; Fixed is resolved
// relative to the sandbox root and exposed to the effect under Param.
type PathParam struct {
	Param  string
	Intent policy.Intent
	Fixed  string
}

// Spec is the static description of an action.
type Spec struct {
	Name   string
	Desc   string
	Params map[string]*schema.ParameterInfo
	Paths  []PathParam

	// Validate runs after schema validation and before any path check. It is
	// where boundary decisions such as engine or format selection are made;
	// a non-nil error becomes invalid_parameters.
	Validate func(Params) error

	Perform PerformFunc
}

// ToolInfo describes the action as an eino tool so chat models can call it.
func (s *Spec) ToolInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name:        s.Name,
		Desc:        s.Desc,
		ParamsOneOf: schema.NewParamsOneOfByParams(s.Params),
	}
}

// ParamInfo is the serializable form of one parameter.
type ParamInfo struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
}

// PathInfo is the serializable form of a PathParam.
type PathInfo struct {
	Param  string `json:"param"`
	Intent string `json:"intent"`
	Fixed  string `json:"fixed,omitempty"`
}

// Info is the serializable description of an action.
type Info struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Params      []ParamInfo `json:"params"`
	Paths       []PathInfo  `json:"paths"`
}

// Describe returns the action's parameters sorted by name.
func (s *Spec) Describe() Info {
	info := Info{
		Name:        s.Name,
		Description: s.Desc,
		Params:      make([]ParamInfo, 0, len(s.Params)),
		Paths:       make([]PathInfo, 0, len(s.Paths)),
	}
	for name, p := range s.Params {
		if p == nil {
			continue
		}
		info.Params = append(info.Params, ParamInfo{
			Name:        name,
			Type:        string(p.Type),
			Description: p.Desc,
			Required:    p.Required,
			Enum:        p.Enum,
		})
	}
	sort.Slice(info.Params, func(i, j int) bool { return info.Params[i].Name < info.Params[j].Name })
	for _, pp := range s.Paths {
		info.Paths = append(info.Paths, PathInfo{Param: pp.Param, Intent: string(pp.Intent), Fixed: pp.Fixed})
	}
	return info
}
