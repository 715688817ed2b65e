package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	dErrors "github.com/ONDC-Official/automation-form-service/pkg/domain-errors"
)

// Service is the session merge engine. Every mutation is a read-modify-write
// cycle that replaces the whole document; there is no field-level atomicity.
//
// By default concurrent merges for the same transaction id can interleave and
// the later write wins, matching the store's blind-overwrite semantics. The
// WithPerKeyLocking option serializes cycles per key within this process for
// deployments that want to close that window.
type Service struct {
	store  Store
	logger *slog.Logger
	locks  *keyedMutex
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPerKeyLocking serializes read-modify-write cycles per store key. This is
// an explicit behavior upgrade: the stored format is unchanged, only the merge
// windows stop overlapping within a single process.
func WithPerKeyLocking() Option {
	return func(s *Service) { s.locks = newKeyedMutex() }
}

// WithClock overrides the receipt timestamp source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch returns the session document for the given key, or a not_found error
// when no session exists.
func (s *Service) Fetch(ctx context.Context, key string) (Document, error) {
	doc, ok, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, dErrors.Wrap(dErrors.CodeNotFound, fmt.Sprintf("session %q not found", key), ErrNotFound)
	}
	return doc, nil
}

// MergeFormSubmission folds one form's submitted fields into the session for
// transactionID under formKey. Entries for other forms are preserved; a new
// document is created when none exists yet.
func (s *Service) MergeFormSubmission(ctx context.Context, formKey string, formData map[string]any, transactionID string) error {
	unlock := s.lock(transactionID)
	defer unlock()

	doc, ok, err := s.load(ctx, transactionID)
	if err != nil {
		return err
	}

	merged := map[string]any{}
	if ok {
		for k, v := range doc.FormData() {
			merged[k] = v
		}
	}
	merged[formKey] = formData

	if !ok {
		doc = Document{fieldFormData: merged}
	} else {
		doc[fieldFormData] = merged
	}

	if err := s.save(ctx, transactionID, doc); err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "merged form submission",
		"transaction_id", transactionID,
		"form_key", formKey,
	)
	return nil
}

// RecordSubmissionReceipt marks a form as submitted on the session document
// for sessionID. Unlike the form-data merge it requires the session to already
// exist, since only an upstream flow can establish it.
func (s *Service) RecordSubmissionReceipt(ctx context.Context, sessionID, transactionID, submissionID, formURL string) error {
	unlock := s.lock(sessionID)
	defer unlock()

	doc, ok, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return dErrors.Wrap(dErrors.CodeNotFound, fmt.Sprintf("session %q not found", sessionID), ErrNotFound)
	}

	subs := map[string]any{}
	for k, v := range doc.Submissions() {
		subs[k] = v
	}
	subs[CompositeKey(transactionID, formURL)] = Receipt{
		Submitted:    true,
		SubmissionID: submissionID,
		Timestamp:    s.now().UTC().Format(time.RFC3339),
		FormURL:      formURL,
	}
	doc[fieldSubmissions] = subs

	return s.save(ctx, sessionID, doc)
}

// load reads and decodes the document for key. The boolean reports whether the
// key existed; a missing key is not an error here because the form-data merge
// creates documents implicitly.
func (s *Service) load(ctx context.Context, key string) (Document, bool, error) {
	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return nil, false, dErrors.Wrap(dErrors.CodeInternal, "session store exists check failed", err)
	}
	if !exists {
		return nil, false, nil
	}

	raw, err := s.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		// Expired between the exists check and the read.
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dErrors.Wrap(dErrors.CodeInternal, "session store read failed", err)
	}

	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, false, dErrors.Wrap(dErrors.CodeInternal, fmt.Sprintf("session %q holds malformed JSON", key), err)
	}
	return doc, true, nil
}

func (s *Service) save(ctx context.Context, key string, doc Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "session document marshal failed", err)
	}
	if err := s.store.Set(ctx, key, string(raw)); err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "session store write failed", err)
	}
	return nil
}

// lock returns an unlock func, or a no-op when per-key locking is disabled.
func (s *Service) lock(key string) func() {
	if s.locks == nil {
		return func() {}
	}
	return s.locks.lock(key)
}

// keyedMutex hands out one mutex per key. Entries are never evicted; the key
// space is bounded by live transactions, which is acceptable for a per-process
// serialization point.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
