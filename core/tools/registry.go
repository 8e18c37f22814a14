package tools

import (
	"fmt"
	"strings"
	"sync"

	"github.com/koscakluka/ema-sonic/core/protocol"
)

// Registry holds the tools declared to the model in promptStart. Lookups
// ignore case, since models do not reliably preserve it in toolUse events.
type Registry struct {
	mu     sync.RWMutex
	tools  []Tool
	byName map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{byName: map[string]Tool{}}
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			logger.Warn("skipping tool", "error", err)
		}
	}
	return r
}

func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("cannot register nil tool")
	}
	key := strings.ToLower(tool.Name())

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[key]; ok {
		return fmt.Errorf("tool %q already registered", tool.Name())
	}
	r.byName[key] = tool
	r.tools = append(r.tools, tool)
	return nil
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.byName[strings.ToLower(name)]
	return tool, ok
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Specs returns the tool declarations in registration order.
func (r *Registry) Specs() []protocol.ToolSpec {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]protocol.ToolSpec, 0, len(r.tools))
	for _, tool := range r.tools {
		specs = append(specs, protocol.ToolSpec{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: protocol.InputSchema{JSON: tool.InputSchema()},
		})
	}
	return specs
}
