package simplemolecule

import (
	"context"
	"fmt"
	"log/slog"
)

// Hook system allows extending the store and resolver without modifying core code.
// Hooks run synchronously on the caller's goroutine, always after the store lock
// has been released. Errors returned by After* hooks are logged and never change
// the outcome of the operation that triggered them. A panicking hook is
// recovered and treated as a failed hook.

// Hooks defines all available lifecycle hooks
type Hooks struct {
	BeforeStore []BeforeStoreHook
	AfterStore  []AfterStoreHook
	AfterEdit   []AfterEditHook
	AfterClear  []AfterClearHook

	OnResolve []ResolveHook

	OnError []ErrorHook
}

// HookContext carries information through the hook chain
type HookContext struct {
	Context   context.Context
	Metadata  map[string]interface{}
	StopChain bool // Set to true to stop processing remaining hooks
}

// NewHookContext creates a new hook context
func NewHookContext(ctx context.Context) *HookContext {
	return &HookContext{
		Context:  ctx,
		Metadata: make(map[string]interface{}),
	}
}

// BeforeStoreHook is called before a record is written. Returning an error rejects the write.
type BeforeStoreHook func(hctx *HookContext, req *StoreRequest) error

// AfterStoreHook is called after a record is written
type AfterStoreHook func(hctx *HookContext, record *Record) error

// AfterEditHook is called after an edit changed a record
type AfterEditHook func(hctx *HookContext, record *Record, entry EditEntry) error

// AfterClearHook is called once per removed identifier
type AfterClearHook func(hctx *HookContext, identifier string) error

// ResolveHook is called with the final metadata of every resolution
type ResolveHook func(hctx *HookContext, content string, metadata *Metadata) error

// ErrorHook is called when an operation fails
type ErrorHook func(hctx *HookContext, operation string, err error)

// Merge returns a new Hooks holding the hooks of h followed by those of others.
func (h *Hooks) Merge(others ...*Hooks) *Hooks {
	out := &Hooks{}
	for _, src := range append([]*Hooks{h}, others...) {
		if src == nil {
			continue
		}
		out.BeforeStore = append(out.BeforeStore, src.BeforeStore...)
		out.AfterStore = append(out.AfterStore, src.AfterStore...)
		out.AfterEdit = append(out.AfterEdit, src.AfterEdit...)
		out.AfterClear = append(out.AfterClear, src.AfterClear...)
		out.OnResolve = append(out.OnResolve, src.OnResolve...)
		out.OnError = append(out.OnError, src.OnError...)
	}
	return out
}

// executeBeforeStore runs all BeforeStore hooks
func (h *Hooks) executeBeforeStore(ctx context.Context, req *StoreRequest) error {
	if h == nil || len(h.BeforeStore) == 0 {
		return nil
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.BeforeStore {
		if err := safeCall(func() error { return hook(hctx, req) }); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

// executeAfterStore runs all AfterStore hooks
func (h *Hooks) executeAfterStore(ctx context.Context, logger *slog.Logger, record *Record) {
	if h == nil || len(h.AfterStore) == 0 {
		return
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.AfterStore {
		if err := safeCall(func() error { return hook(hctx, record) }); err != nil {
			logger.Warn("after-store hook failed", "identifier", record.Identifier, "error", err)
		}
		if hctx.StopChain {
			break
		}
	}
}

// executeAfterEdit runs all AfterEdit hooks
func (h *Hooks) executeAfterEdit(ctx context.Context, logger *slog.Logger, record *Record, entry EditEntry) {
	if h == nil || len(h.AfterEdit) == 0 {
		return
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.AfterEdit {
		if err := safeCall(func() error { return hook(hctx, record, entry) }); err != nil {
			logger.Warn("after-edit hook failed", "identifier", record.Identifier, "error", err)
		}
		if hctx.StopChain {
			break
		}
	}
}

// executeAfterClear runs all AfterClear hooks
func (h *Hooks) executeAfterClear(ctx context.Context, logger *slog.Logger, identifier string) {
	if h == nil || len(h.AfterClear) == 0 {
		return
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.AfterClear {
		if err := safeCall(func() error { return hook(hctx, identifier) }); err != nil {
			logger.Warn("after-clear hook failed", "identifier", identifier, "error", err)
		}
		if hctx.StopChain {
			break
		}
	}
}

// executeOnResolve runs all OnResolve hooks
func (h *Hooks) executeOnResolve(ctx context.Context, logger *slog.Logger, content string, metadata *Metadata) {
	if h == nil || len(h.OnResolve) == 0 {
		return
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.OnResolve {
		if err := safeCall(func() error { return hook(hctx, content, metadata) }); err != nil {
			logger.Warn("resolve hook failed", "identifier", metadata.Identifier, "error", err)
		}
		if hctx.StopChain {
			break
		}
	}
}

// executeOnError runs all OnError hooks
func (h *Hooks) executeOnError(ctx context.Context, logger *slog.Logger, operation string, err error) {
	if h == nil || len(h.OnError) == 0 {
		return
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.OnError {
		if herr := safeCall(func() error { hook(hctx, operation, err); return nil }); herr != nil {
			logger.Warn("error hook failed", "operation", operation, "error", herr)
		}
		if hctx.StopChain {
			break
		}
	}
}

// safeCall runs one hook, turning a panic into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("hook panic: %v", p)
		}
	}()
	return fn()
}

// LoggingHook logs store changes, resolutions and errors
func LoggingHook(logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{
		AfterStore: []AfterStoreHook{
			func(hctx *HookContext, record *Record) error {
				logger.Info("molecule stored",
					"identifier", record.Identifier,
					"filename", record.Filename,
					"format", record.Format,
					"atoms", record.Stats.Atoms,
					"origin", record.Origin)
				return nil
			},
		},
		AfterEdit: []AfterEditHook{
			func(hctx *HookContext, record *Record, entry EditEntry) error {
				logger.Info("molecule edited", "identifier", record.Identifier, "edit_type", entry.Type, "atoms", record.Stats.Atoms)
				return nil
			},
		},
		AfterClear: []AfterClearHook{
			func(hctx *HookContext, identifier string) error {
				logger.Info("molecule cleared", "identifier", identifier)
				return nil
			},
		},
		OnResolve: []ResolveHook{
			func(hctx *HookContext, content string, md *Metadata) error {
				logger.Debug("molecule resolved", "identifier", md.Identifier, "source", md.Source, "success", md.Success)
				return nil
			},
		},
		OnError: []ErrorHook{
			func(hctx *HookContext, operation string, err error) {
				logger.Error("operation failed", "operation", operation, "error", err)
			},
		},
	}
}
