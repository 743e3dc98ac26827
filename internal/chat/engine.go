package chat

import "log/slog"

// Engine wires a Registry, Directory and Router that share one set of limits.
// Unregistering a session evicts it from every room it joined.
type Engine struct {
	Registry  *Registry
	Directory *Directory
	Router    *Router
}

// NewEngine creates an Engine with empty state.
func NewEngine(limits Limits, log *slog.Logger, opts ...RouterOption) *Engine {
	registry := NewRegistry(limits, log)
	directory := NewDirectory(registry, limits, log)
	registry.OnUnregister(func(s *Session) {
		directory.Evict(s)
	})
	return &Engine{
		Registry:  registry,
		Directory: directory,
		Router:    NewRouter(directory, registry, limits, log, opts...),
	}
}
