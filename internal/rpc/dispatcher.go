package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Procedure handles one named call. params holds the caller's JSON encoded
// parameters; the returned value is JSON encoded before it reaches the caller.
type Procedure func(ctx context.Context, params json.RawMessage) (any, error)

// Dispatcher runs registered procedures in-process. Parameters and results
// cross a JSON boundary so callers decode them exactly as they would a
// remote response.
type Dispatcher struct {
	mu         sync.RWMutex
	procedures map[string]Procedure
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{procedures: make(map[string]Procedure)}
}

// Register adds a procedure. Registering the same name twice panics.
func (d *Dispatcher) Register(name string, p Procedure) {
	name = strings.TrimSpace(name)
	if name == "" || p == nil {
		panic("rpc: invalid procedure registration")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.procedures[name]; exists {
		panic(fmt.Sprintf("rpc: procedure %q already registered", name))
	}
	d.procedures[name] = p
}

// Procedures lists registered names in sorted order.
func (d *Dispatcher) Procedures() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.procedures))
	for name := range d.procedures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs a procedure with already encoded params and returns the encoded
// result.
func (d *Dispatcher) Invoke(ctx context.Context, procedure string, params json.RawMessage) (json.RawMessage, error) {
	d.mu.RLock()
	p, ok := d.procedures[procedure]
	d.mu.RUnlock()
	if !ok {
		return nil, Errorf(CodeNotFound, "procedure %s not found", procedure)
	}

	result, err := p(ctx, params)
	if err != nil {
		if rpcErr, ok := AsError(err); ok {
			return nil, rpcErr
		}
		log.Ctx(ctx).Error().Err(err).Str("procedure", procedure).Msg("Procedure failed")
		return nil, &Error{Code: CodeInternal, Message: "internal error while running " + procedure}
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", procedure, err)
	}
	return encoded, nil
}

// Call implements Client.
func (d *Dispatcher) Call(ctx context.Context, procedure string, params any, out any) error {
	encodedParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode %s params: %w", procedure, err)
	}

	result, err := d.Invoke(ctx, procedure, encodedParams)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", procedure, err)
	}
	return nil
}
