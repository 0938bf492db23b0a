// Package prompts holds the prompt templates a host advertises
package prompts

import (
	"context"
	"fmt"
	"sync"

	customErrors "github.com/YongpengFu/mcp-server/internal/common/errors"
)

// Argument describes one prompt argument
type Argument struct {
	Name        string
	Description string
	Required    bool
}

// Message is one rendered message
type Message struct {
	Role string
	Text string
}

// Handler renders a prompt from its arguments
type Handler func(ctx context.Context, args map[string]string) ([]Message, error)

// Prompt is a registered prompt
type Prompt struct {
	Name        string
	Description string
	Arguments   []Argument

	handler Handler
}

// Registry holds prompts in registration order
type Registry struct {
	mu      sync.RWMutex
	prompts []*Prompt
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a prompt; names must be unique
func (r *Registry) Register(name, description string, args []Argument, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.prompts {
		if p.Name == name {
			return customErrors.NewResourceErrorf(customErrors.KindInvalidArguments, "prompt %s already registered", name)
		}
	}
	r.prompts = append(r.prompts, &Prompt{Name: name, Description: description, Arguments: args, handler: handler})
	return nil
}

// List returns the prompts in registration order
func (r *Registry) List() []*Prompt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Prompt(nil), r.prompts...)
}

// Render checks required arguments and renders the named prompt
func (r *Registry) Render(ctx context.Context, name string, args map[string]string) ([]Message, error) {
	r.mu.RLock()
	var prompt *Prompt
	for _, p := range r.prompts {
		if p.Name == name {
			prompt = p
			break
		}
	}
	r.mu.RUnlock()

	if prompt == nil {
		return nil, customErrors.NewResourceErrorf(customErrors.KindNotFound, "unknown prompt %s", name)
	}
	for _, arg := range prompt.Arguments {
		if _, ok := args[arg.Name]; arg.Required && !ok {
			return nil, customErrors.NewResourceErrorf(customErrors.KindInvalidArguments,
				"prompt %s requires argument %q", name, arg.Name)
		}
	}
	return prompt.handler(ctx, args)
}

// RegisterResearch adds get_research_prompt
func RegisterResearch(r *Registry) error {
	return r.Register("get_research_prompt", "Get a research prompt for a given query.",
		[]Argument{{Name: "query", Required: true}},
		func(_ context.Context, args map[string]string) ([]Message, error) {
			return []Message{{Role: "user", Text: fmt.Sprintf("Hello, world! %s", args["query"])}}, nil
		})
}
