package simplemolecule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultFallbackTimeout bounds a single fallback read.
const DefaultFallbackTimeout = 5 * time.Second

// Tier names the data source that produced a resolution.
type Tier string

const (
	TierDirect       Tier = "direct"
	TierCacheExact   Tier = "cache-exact"
	TierCrossSession Tier = "cache-cross-session"
	TierFilesystem   Tier = "filesystem"
	TierNone         Tier = "none"
)

// FailureMessage is the Metadata.Error of a resolution that found nothing.
const FailureMessage = "no data source yielded content"

// ResolveRequest is the input of Resolve.
type ResolveRequest struct {
	// Input is either a filename or literal molecular text.
	Input string
	// Identifier is the requesting node's cache key. Optional; without it only
	// the filename scan and the fallback are tried and nothing is written back.
	Identifier string
	// Folder overrides the resolver's fallback folder.
	Folder       string
	SkipFallback bool
}

// Metadata describes how a resolution was obtained.
type Metadata struct {
	Success          bool      `json:"success"`
	Source           Tier      `json:"source"`
	Identifier       string    `json:"identifier,omitempty"`
	InputKind        InputKind `json:"input_kind"`
	Filename         string    `json:"filename,omitempty"`
	Format           Format    `json:"format,omitempty"`
	FormatName       string    `json:"format_name,omitempty"`
	Atoms            *int      `json:"atoms,omitempty"`
	Sequences        *int      `json:"sequences,omitempty"`
	TotalLines       int       `json:"total_lines"`
	ContentLength    int       `json:"content_length"`
	SourceIdentifier string    `json:"source_identifier,omitempty"`
	SourcePath       string    `json:"source_path,omitempty"`
	Attempted        []Tier    `json:"attempted,omitempty"`
	FallbackError    string    `json:"fallback_error,omitempty"`
	Error            string    `json:"error,omitempty"`
}

// Resolution is the result of Resolve. On failure Content is the original input.
type Resolution struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Resolver turns a filename or literal text into molecular content using the
// cache first and a fallback source last.
type Resolver struct {
	store           *ContentStore
	fallback        FallbackSource
	fallbackTimeout time.Duration
	writeBack       bool
	folder          string
	hooks           *Hooks
	logger          *slog.Logger
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithFallbackSource sets the lowest-priority tier
func WithFallbackSource(src FallbackSource) ResolverOption {
	return func(r *Resolver) {
		r.fallback = src
	}
}

// WithFallbackTimeout bounds each fallback read
func WithFallbackTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.fallbackTimeout = d
		}
	}
}

// WithFallbackWriteBack controls whether fallback hits are stored under the requesting identifier
func WithFallbackWriteBack(enabled bool) ResolverOption {
	return func(r *Resolver) {
		r.writeBack = enabled
	}
}

// WithFallbackFolder sets the folder searched by the fallback tier
func WithFallbackFolder(folder string) ResolverOption {
	return func(r *Resolver) {
		if folder != "" {
			r.folder = folder
		}
	}
}

// WithResolverHooks sets hooks receiving OnResolve and OnError
func WithResolverHooks(h *Hooks) ResolverOption {
	return func(r *Resolver) {
		r.hooks = h
	}
}

// WithResolverLogger sets the logger
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a resolver over store.
func NewResolver(store *ContentStore, opts ...ResolverOption) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("content store is required")
	}
	r := &Resolver{
		store:           store,
		fallbackTimeout: DefaultFallbackTimeout,
		writeBack:       true,
		folder:          DefaultFolder,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve never returns an error and never panics: a miss on every tier is
// reported through Metadata.Success and Metadata.Error.
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) *Resolution {
	res := r.resolve(ctx, req)
	r.hooks.executeOnResolve(ctx, r.logger, res.Content, &res.Metadata)
	return res
}

func (r *Resolver) resolve(ctx context.Context, req ResolveRequest) *Resolution {
	kind := Classify(req.Input)
	if kind == InputLiteral {
		analysis := AnalyzeContent(req.Input)
		md := metadataFor(analysis.Format, analysis.Stats)
		md.Success = true
		md.Source = TierDirect
		md.Identifier = req.Identifier
		md.InputKind = kind
		return &Resolution{Content: req.Input, Metadata: md}
	}

	filename := strings.TrimSpace(req.Input)
	var attempted []Tier
	var fallbackErr error

	if req.Identifier != "" {
		attempted = append(attempted, TierCacheExact)
		if res := r.guard(ctx, req.Identifier, TierCacheExact, func() *Resolution {
			return r.exact(ctx, req.Identifier)
		}); res != nil {
			return r.finish(res, req, kind, filename)
		}
	}

	attempted = append(attempted, TierCrossSession)
	if res := r.guard(ctx, req.Identifier, TierCrossSession, func() *Resolution {
		return r.crossSession(ctx, req.Identifier, filename)
	}); res != nil {
		return r.finish(res, req, kind, filename)
	}

	if !req.SkipFallback && r.fallback != nil {
		attempted = append(attempted, TierFilesystem)
		if res := r.guard(ctx, req.Identifier, TierFilesystem, func() *Resolution {
			res, err := r.fromFallback(ctx, req, filename)
			fallbackErr = err
			return res
		}); res != nil {
			return r.finish(res, req, kind, filename)
		}
	}

	zero := 0
	md := Metadata{
		Success:    false,
		Source:     TierNone,
		Identifier: req.Identifier,
		InputKind:  kind,
		Filename:   filename,
		Format:     FormatUnknown,
		FormatName: FormatUnknown.Name(),
		Atoms:      &zero,
		Attempted:  attempted,
		Error:      FailureMessage,
	}
	if fallbackErr != nil && !errors.Is(fallbackErr, ErrSourceNotFound) {
		md.FallbackError = fallbackErr.Error()
	}
	r.logger.Debug("resolution failed", "identifier", req.Identifier, "filename", filename, "attempted", attempted)
	return &Resolution{Content: req.Input, Metadata: md}
}

func (r *Resolver) finish(res *Resolution, req ResolveRequest, kind InputKind, filename string) *Resolution {
	res.Metadata.Success = true
	res.Metadata.Identifier = req.Identifier
	res.Metadata.InputKind = kind
	res.Metadata.Filename = filename
	return res
}

// guard runs one tier and turns a panic into a miss.
func (r *Resolver) guard(ctx context.Context, identifier string, tier Tier, fn func() *Resolution) (res *Resolution) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("resolution tier panicked", "identifier", identifier, "tier", tier, "panic", p)
			r.hooks.executeOnError(ctx, r.logger, "resolve", fmt.Errorf("tier %s panicked: %v", tier, p))
			res = nil
		}
	}()
	return fn()
}

func (r *Resolver) exact(ctx context.Context, identifier string) *Resolution {
	rec, err := r.store.Get(ctx, identifier)
	if err != nil || rec.Content == "" {
		return nil
	}
	md := metadataFor(rec.Format, rec.Stats)
	md.Source = TierCacheExact
	return &Resolution{Content: rec.Content, Metadata: md}
}

// crossSession looks for the same filename under another identifier and
// copies it to the requester. Two resolvers racing on the same identifier
// both copy; the last write wins with identical content.
func (r *Resolver) crossSession(ctx context.Context, identifier, filename string) *Resolution {
	candidates := r.store.FindByFilename(filename)
	if len(candidates) == 0 {
		return nil
	}

	var own Identifier
	if identifier != "" {
		own, _ = ParseIdentifier(identifier)
	}
	ordered := make([]RecordSummary, 0, len(candidates))
	var others []RecordSummary
	for _, c := range candidates {
		if c.Identifier == identifier {
			continue
		}
		if own.SessionID != "" && c.SessionID == own.SessionID {
			ordered = append(ordered, c)
		} else {
			others = append(others, c)
		}
	}
	ordered = append(ordered, others...)

	for _, c := range ordered {
		src, err := r.store.Get(ctx, c.Identifier)
		if err != nil || src.Content == "" {
			continue
		}

		if identifier != "" {
			if _, err := r.store.Store(ctx, StoreRequest{
				Identifier: identifier,
				Filename:   filename,
				Folder:     src.Folder,
				Content:    src.Content,
				Origin:     OriginCrossSession,
			}); err != nil {
				r.logger.Warn("cross-session copy failed", "identifier", identifier, "source_identifier", src.Identifier, "error", err)
			} else {
				r.logger.Info("recovered content from another node", "identifier", identifier, "source_identifier", src.Identifier, "filename", filename)
			}
		}

		md := metadataFor(src.Format, src.Stats)
		md.Source = TierCrossSession
		md.SourceIdentifier = src.Identifier
		return &Resolution{Content: src.Content, Metadata: md}
	}
	return nil
}

func (r *Resolver) fromFallback(ctx context.Context, req ResolveRequest, filename string) (*Resolution, error) {
	folder := req.Folder
	if folder == "" {
		folder = r.folder
	}

	obj, err := r.readFallback(ctx, folder, filename, req.Identifier)
	if err != nil {
		if !errors.Is(err, ErrSourceNotFound) {
			r.logger.Warn("fallback read failed", "identifier", req.Identifier, "filename", filename, "tier", TierFilesystem, "error", err)
			r.hooks.executeOnError(ctx, r.logger, "fallback_read", err)
		}
		return nil, err
	}
	if strings.TrimSpace(obj.Content) == "" {
		return nil, nil
	}

	format := DetectFormat(filename)
	var stats Stats
	if format == FormatUnknown {
		analysis := AnalyzeContent(obj.Content)
		format, stats = analysis.Format, analysis.Stats
	} else {
		stats = ComputeStats(obj.Content, format)
	}

	if r.writeBack && req.Identifier != "" {
		if _, err := r.store.Store(ctx, StoreRequest{
			Identifier: req.Identifier,
			Filename:   filename,
			Folder:     folder,
			Content:    obj.Content,
			Origin:     OriginFilesystem,
		}); err != nil {
			r.logger.Warn("fallback write-back failed", "identifier", req.Identifier, "filename", filename, "error", err)
		}
	}

	md := metadataFor(format, stats)
	md.Source = TierFilesystem
	md.SourcePath = obj.Path
	return &Resolution{Content: obj.Content, Metadata: md}, nil
}

// readFallback runs the read on its own goroutine so a stalled source cannot
// hold the caller past the fallback timeout.
func (r *Resolver) readFallback(ctx context.Context, folder, filename, identifier string) (*SourceObject, error) {
	ctx, cancel := context.WithTimeout(ctx, r.fallbackTimeout)
	defer cancel()

	type result struct {
		obj *SourceObject
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("fallback source panic: %v", p)}
			}
		}()
		obj, err := r.fallback.Read(ctx, folder, filename, identifier)
		done <- result{obj: obj, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil && res.obj == nil {
			return nil, &FallbackError{Source: r.fallback.Name(), Key: folder + "/" + filename, Op: "read", Err: ErrSourceNotFound}
		}
		return res.obj, res.err
	case <-ctx.Done():
		return nil, &FallbackError{
			Source: r.fallback.Name(),
			Key:    folder + "/" + filename,
			Op:     "read",
			Err:    fmt.Errorf("%w: %v", ErrFallbackTimeout, ctx.Err()),
		}
	}
}

func metadataFor(format Format, stats Stats) Metadata {
	md := Metadata{
		Format:        format,
		FormatName:    format.Name(),
		TotalLines:    stats.Lines,
		ContentLength: stats.Chars,
	}
	if format == FormatFASTA {
		n := stats.Sequences
		md.Sequences = &n
	} else {
		n := stats.Atoms
		md.Atoms = &n
	}
	return md
}
