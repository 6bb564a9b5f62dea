package simplemolecule

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// DefaultFolder is used when a record is stored without a folder.
const DefaultFolder = "molecules"

// ContentStore is the process-wide molecular content cache. It is safe for
// concurrent use. Records never expire; memory grows with the number of
// distinct identifiers until Clear or ClearAll is called.
type ContentStore struct {
	mu      sync.Mutex
	records map[string]*Record
	editors map[EditType]Editor

	notifier      Notifier
	hooks         *Hooks
	history       HistoryPolicy
	defaultFolder string
	logger        *slog.Logger
	now           func() time.Time
}

// StoreOption configures a ContentStore
type StoreOption func(*ContentStore)

// WithNotifier sets the change notifier
func WithNotifier(n Notifier) StoreOption {
	return func(s *ContentStore) {
		s.notifier = n
	}
}

// WithHooks sets the lifecycle hooks
func WithHooks(h *Hooks) StoreOption {
	return func(s *ContentStore) {
		s.hooks = h
	}
}

// WithHistoryPolicy selects what Store does with the history of an overwritten record
func WithHistoryPolicy(p HistoryPolicy) StoreOption {
	return func(s *ContentStore) {
		s.history = p
	}
}

// WithDefaultFolder sets the folder used when a request carries none
func WithDefaultFolder(folder string) StoreOption {
	return func(s *ContentStore) {
		if folder != "" {
			s.defaultFolder = folder
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *ContentStore) {
		s.logger = logger
	}
}

// WithClock overrides time.Now, mostly for tests
func WithClock(now func() time.Time) StoreOption {
	return func(s *ContentStore) {
		s.now = now
	}
}

// NewContentStore creates an empty store.
func NewContentStore(opts ...StoreOption) *ContentStore {
	s := &ContentStore{
		records:       make(map[string]*Record),
		editors:       builtinEditors(),
		notifier:      NoopNotifier{},
		history:       HistoryPreserve,
		defaultFolder: DefaultFolder,
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StoreRequest is the input of Store.
type StoreRequest struct {
	Identifier string
	Filename   string
	Folder     string
	Content    string
	Origin     Origin
}

// RegisterEditor adds or replaces the editor for an edit type.
func (s *ContentStore) RegisterEditor(t EditType, e Editor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editors[t] = e
}

// Store writes content under req.Identifier, replacing any existing record.
func (s *ContentStore) Store(ctx context.Context, req StoreRequest) (*Record, error) {
	if err := validateStoreRequest(req); err != nil {
		err = &RecordError{Identifier: req.Identifier, Op: "store", Err: err}
		s.hooks.executeOnError(ctx, s.logger, "store", err)
		return nil, err
	}
	s.applyStoreDefaults(&req)
	if err := s.hooks.executeBeforeStore(ctx, &req); err != nil {
		err = &RecordError{Identifier: req.Identifier, Op: "store", Err: err}
		s.hooks.executeOnError(ctx, s.logger, "store", err)
		return nil, err
	}
	// hooks may rewrite the request
	s.applyStoreDefaults(&req)
	if err := validateStoreRequest(req); err != nil {
		err = &RecordError{Identifier: req.Identifier, Op: "store", Err: err}
		s.hooks.executeOnError(ctx, s.logger, "store", err)
		return nil, err
	}

	id, err := ParseIdentifier(req.Identifier)
	if err != nil {
		s.logger.Warn("storing record under identifier without session",
			"identifier", req.Identifier, "error", err)
	}
	format := DetectFormat(req.Filename)
	stats := ComputeStats(req.Content, format)

	s.mu.Lock()
	now := s.now()
	rec := &Record{
		Identifier:     req.Identifier,
		SessionID:      id.SessionID,
		NodeID:         id.NodeID,
		Filename:       req.Filename,
		Folder:         req.Folder,
		Format:         format,
		FormatName:     format.Name(),
		Content:        req.Content,
		Stats:          stats,
		Origin:         req.Origin,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastAccessedAt: now,
		EditHistory:    []EditEntry{},
	}
	if prev, ok := s.records[req.Identifier]; ok && s.history == HistoryPreserve {
		rec.CreatedAt = prev.CreatedAt
		rec.EditHistory = append(rec.EditHistory, prev.EditHistory...)
	}
	s.records[req.Identifier] = rec
	out := rec.clone()
	s.mu.Unlock()

	s.logger.Debug("record stored", "identifier", out.Identifier, "filename", out.Filename, "origin", out.Origin)
	s.hooks.executeAfterStore(ctx, s.logger, out)
	s.emit(ctx, ChangeUpdated, out.Identifier, out)
	return out, nil
}

// Get returns a copy of the record and records the access.
func (s *ContentStore) Get(ctx context.Context, identifier string) (*Record, error) {
	s.mu.Lock()
	rec, ok := s.records[identifier]
	if !ok {
		s.mu.Unlock()
		return nil, &RecordError{Identifier: identifier, Op: "get", Err: ErrRecordNotFound}
	}
	rec.AccessCount++
	rec.LastAccessedAt = s.now()
	out := rec.clone()
	s.mu.Unlock()
	return out, nil
}

// Peek returns a copy of the record without touching access bookkeeping.
func (s *ContentStore) Peek(ctx context.Context, identifier string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[identifier]
	if !ok {
		return nil, &RecordError{Identifier: identifier, Op: "peek", Err: ErrRecordNotFound}
	}
	return rec.clone(), nil
}

// Len returns the number of records.
func (s *ContentStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Status summarises all records, most accessed first.
func (s *ContentStore) Status() StatusReport {
	s.mu.Lock()
	report := StatusReport{Records: make([]RecordSummary, 0, len(s.records))}
	for _, rec := range s.records {
		report.Records = append(report.Records, rec.summary())
		report.TotalContentBytes += rec.Stats.Bytes
	}
	s.mu.Unlock()

	sortByAccess(report.Records)
	report.TotalRecords = len(report.Records)
	report.State = "active"
	if report.TotalRecords == 0 {
		report.State = "empty"
	}
	return report
}

// FindByFilename returns the summaries of records holding filename, in Status order.
func (s *ContentStore) FindByFilename(filename string) []RecordSummary {
	s.mu.Lock()
	var out []RecordSummary
	for _, rec := range s.records {
		if rec.Filename == filename {
			out = append(out, rec.summary())
		}
	}
	s.mu.Unlock()

	sortByAccess(out)
	return out
}

// Search matches query case-insensitively against filename, format name and
// identifier. Results are ordered by most recent access.
func (s *ContentStore) Search(query string) []RecordSummary {
	q := strings.ToLower(strings.TrimSpace(query))

	s.mu.Lock()
	out := []RecordSummary{}
	for _, rec := range s.records {
		if q == "" ||
			strings.Contains(strings.ToLower(rec.Filename), q) ||
			strings.Contains(strings.ToLower(rec.FormatName), q) ||
			strings.Contains(strings.ToLower(rec.Identifier), q) {
			out = append(out, rec.summary())
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastAccessedAt.Equal(out[j].LastAccessedAt) {
			return out[i].LastAccessedAt.After(out[j].LastAccessedAt)
		}
		return out[i].Identifier < out[j].Identifier
	})
	return out
}

// Sessions lists the distinct sessions present in the store, newest activity first.
func (s *ContentStore) Sessions() []SessionObservation {
	s.mu.Lock()
	bySession := make(map[string]*SessionObservation)
	for _, rec := range s.records {
		if rec.SessionID == "" {
			continue
		}
		seen := rec.UpdatedAt
		if rec.LastAccessedAt.After(seen) {
			seen = rec.LastAccessedAt
		}
		obs, ok := bySession[rec.SessionID]
		if !ok {
			obs = &SessionObservation{SessionID: rec.SessionID}
			bySession[rec.SessionID] = obs
		}
		obs.Records++
		if seen.After(obs.LastSeen) {
			obs.LastSeen = seen
		}
	}
	s.mu.Unlock()

	out := make([]SessionObservation, 0, len(bySession))
	for _, obs := range bySession {
		out = append(out, *obs)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

// Clear removes one record and reports whether it existed.
func (s *ContentStore) Clear(ctx context.Context, identifier string) bool {
	s.mu.Lock()
	_, ok := s.records[identifier]
	delete(s.records, identifier)
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.hooks.executeAfterClear(ctx, s.logger, identifier)
	s.emit(ctx, ChangeDeleted, identifier, nil)
	return true
}

// ClearAll removes every record and returns how many were removed.
func (s *ContentStore) ClearAll(ctx context.Context) int {
	s.mu.Lock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	s.records = make(map[string]*Record)
	s.mu.Unlock()

	sort.Strings(ids)
	for _, id := range ids {
		s.hooks.executeAfterClear(ctx, s.logger, id)
		s.emit(ctx, ChangeCleared, id, nil)
	}
	s.logger.Info("store cleared", "records", len(ids))
	return len(ids)
}

// Edit applies a registered editor to the record's content and appends one
// history entry. The record is left untouched when the editor fails.
func (s *ContentStore) Edit(ctx context.Context, identifier string, req EditRequest) (*Record, error) {
	out, entry, err := s.edit(identifier, req)
	if err != nil {
		err = &RecordError{Identifier: identifier, Op: "edit", Err: err}
		s.hooks.executeOnError(ctx, s.logger, "edit", err)
		return nil, err
	}

	s.hooks.executeAfterEdit(ctx, s.logger, out, entry)
	s.emit(ctx, ChangeEdited, out.Identifier, out)
	return out, nil
}

func (s *ContentStore) edit(identifier string, req EditRequest) (out *Record, entry EditEntry, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identifier]
	if !ok {
		return nil, entry, ErrRecordNotFound
	}
	editor, ok := s.editors[req.Type]
	if !ok || editor == nil {
		return nil, entry, fmt.Errorf("%w: %q", ErrUnsupportedEdit, req.Type)
	}

	content, description, err := runEditor(editor, rec.Content, rec.Format, req.Params)
	if err != nil {
		return nil, entry, err
	}
	if content == rec.Content {
		return nil, entry, ErrEditNoChange
	}
	if strings.TrimSpace(content) == "" {
		return nil, entry, fmt.Errorf("%w: edit would leave the record empty", ErrValidation)
	}

	now := s.now()
	entry = EditEntry{Type: req.Type, Timestamp: now, Description: description}
	rec.Content = content
	rec.Stats = ComputeStats(content, rec.Format)
	rec.Origin = OriginEdit
	rec.UpdatedAt = now
	rec.EditHistory = append(rec.EditHistory, entry)
	return rec.clone(), entry, nil
}

func runEditor(editor Editor, content string, format Format, params map[string]any) (edited, description string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("editor panic: %v", p)
		}
	}()
	return editor(content, format, params)
}

func (s *ContentStore) emit(ctx context.Context, change ChangeType, identifier string, rec *Record) {
	if s.notifier == nil {
		return
	}
	event := Event{
		Identifier: identifier,
		ChangeType: change,
		Timestamp:  s.now(),
	}
	if rec != nil {
		event.Origin = rec.Origin
		event.Record = rec.clone()
	}
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("notifier panic", "identifier", identifier, "change_type", change, "panic", p)
		}
	}()
	s.notifier.Notify(ctx, event)
}

func (s *ContentStore) applyStoreDefaults(req *StoreRequest) {
	if req.Folder == "" {
		req.Folder = s.defaultFolder
	}
	if req.Origin == "" {
		req.Origin = OriginUpload
	}
}

func validateStoreRequest(req StoreRequest) error {
	switch {
	case strings.TrimSpace(req.Identifier) == "":
		return fmt.Errorf("%w: identifier is required", ErrValidation)
	case strings.TrimSpace(req.Filename) == "":
		return fmt.Errorf("%w: filename is required", ErrValidation)
	case strings.TrimSpace(req.Content) == "":
		return fmt.Errorf("%w: content is required", ErrValidation)
	case strings.ContainsRune(req.Content, 0) || !utf8.ValidString(req.Content):
		return fmt.Errorf("%w: content must be text", ErrValidation)
	}
	return nil
}

func sortByAccess(records []RecordSummary) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].AccessCount != records[j].AccessCount {
			return records[i].AccessCount > records[j].AccessCount
		}
		return records[i].Identifier < records[j].Identifier
	})
}
