package library

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// BookState is the lending state of a book, derived from Book.Available
type BookState string

const (
	BookStateAvailable BookState = "available"
	BookStateBorrowed  BookState = "borrowed"
)

// ErrInvalidTransition is the root of every rejected state change. Use
// errors.Is to detect it.
var ErrInvalidTransition = goerrors.New("invalid book state transition", goerrors.CategoryConflict).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

func newTransitionError(book *Book, from, to BookState, reason string) *goerrors.Error {
	metadata := map[string]any{
		"from":   from,
		"to":     to,
		"reason": reason,
	}
	if book != nil {
		metadata["book_id"] = book.ID
	}
	clone := ErrInvalidTransition.Clone()
	clone.Source = ErrInvalidTransition
	return clone.WithMetadata(metadata)
}

// IsInvalidTransition reports whether err was raised by the book state machine
func IsInvalidTransition(err error) bool {
	return goerrors.Is(err, ErrInvalidTransition)
}

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks.
type TransitionContext struct {
	Actor ActorRef
	Book  *Book
	From  BookState
	To    BookState
	Meta  TransitionMetadata
}

// TransitionHook runs inside the transaction, before or after the state is
// persisted. A hook error aborts the transition.
type TransitionHook func(ctx context.Context, tx bun.IDB, tc TransitionContext) error

// TransitionHookPhase identifies whether a hook ran before or after persistence.
type TransitionHookPhase string

const (
	HookPhaseBefore TransitionHookPhase = "before_transition"
	HookPhaseAfter  TransitionHookPhase = "after_transition"
)

// HookErrorHandler converts hook failures into the error returned to the caller.
type HookErrorHandler func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// BookStateMachine moves books between available and borrowed.
type BookStateMachine interface {
	TransitionTx(ctx context.Context, tx bun.IDB, actor ActorRef, book *Book, target BookState, opts ...TransitionOption) (*Book, error)
	CanTransition(from, to BookState) bool
	CurrentState(book *Book) BookState
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*bookStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *bookStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the sink receiving state change events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *bookStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineHookErrorHandler overrides how hook failures are reported.
func WithStateMachineHookErrorHandler(handler HookErrorHandler) StateMachineOption {
	return func(sm *bookStateMachine) {
		if handler != nil {
			sm.hookErrorHandler = handler
		}
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *bookStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithBeforeTransitionHook adds a hook executed before the state update.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the state update succeeds.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// NewBookStateMachine returns the default implementation backed by books.
func NewBookStateMachine(books Books, opts ...StateMachineOption) BookStateMachine {
	sm := &bookStateMachine{
		books: books,
		transitions: map[BookState]map[BookState]struct{}{
			BookStateAvailable: {
				BookStateBorrowed: {},
			},
			BookStateBorrowed: {
				BookStateAvailable: {},
			},
		},
		now:              time.Now,
		activitySink:     noopActivitySink{},
		logger:           defLogger{},
		hookErrorHandler: defaultHookErrorHandler,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type bookStateMachine struct {
	books            Books
	transitions      map[BookState]map[BookState]struct{}
	now              func() time.Time
	activitySink     ActivitySink
	logger           Logger
	hookErrorHandler HookErrorHandler
}

type transitionOptions struct {
	metadata    TransitionMetadata
	beforeHooks []TransitionHook
	afterHooks  []TransitionHook
}

func (o *transitionOptions) cloneMetadata() TransitionMetadata {
	var cloned map[string]any
	if len(o.metadata.Metadata) > 0 {
		cloned = make(map[string]any, len(o.metadata.Metadata))
		for k, v := range o.metadata.Metadata {
			cloned[k] = v
		}
	}

	return TransitionMetadata{
		Reason:   o.metadata.Reason,
		Metadata: cloned,
	}
}

// TransitionTx persists the move of book to target within tx. Moving a book
// to the state it is already in is rejected, since every transition pairs
// with a loan being opened or closed.
func (sm *bookStateMachine) TransitionTx(ctx context.Context, tx bun.IDB, actor ActorRef, book *Book, target BookState, opts ...TransitionOption) (*Book, error) {
	if book == nil {
		return nil, newTransitionError(nil, "", target, "book is nil")
	}

	if target == "" {
		return nil, newTransitionError(book, sm.CurrentState(book), target, "target state is empty")
	}

	from := sm.CurrentState(book)
	if !sm.CanTransition(from, target) {
		return nil, newTransitionError(book, from, target, "transition not allowed")
	}

	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	tc := TransitionContext{
		Actor: actor,
		Book:  book,
		From:  from,
		To:    target,
		Meta:  options.cloneMetadata(),
	}

	if err := sm.runHooks(ctx, tx, options.beforeHooks, tc, HookPhaseBefore); err != nil {
		return nil, err
	}

	if err := sm.books.SetAvailableTx(ctx, tx, book.ID, target == BookStateAvailable); err != nil {
		if repository.IsSQLExpectedCountViolation(err) {
			return nil, newTransitionError(book, from, target, "book state changed concurrently")
		}
		return nil, err
	}

	book.Available = target == BookStateAvailable
	book.UpdatedAt = sm.now().UTC()

	if err := sm.runHooks(ctx, tx, options.afterHooks, tc, HookPhaseAfter); err != nil {
		return nil, err
	}

	sm.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventBookStateChanged,
		Actor:     actor,
		BookID:    book.ID,
		Metadata:  sm.transitionMetadata(tc),
	})

	return book, nil
}

func (sm *bookStateMachine) CanTransition(from, to BookState) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *bookStateMachine) CurrentState(book *Book) BookState {
	if book == nil {
		return ""
	}
	if book.Available {
		return BookStateAvailable
	}
	return BookStateBorrowed
}

func (sm *bookStateMachine) runHooks(ctx context.Context, tx bun.IDB, hooks []TransitionHook, tc TransitionContext, phase TransitionHookPhase) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, tx, tc); err != nil {
			if sm.hookErrorHandler == nil {
				return err
			}
			return sm.hookErrorHandler(ctx, phase, err, tc)
		}
	}
	return nil
}

func defaultHookErrorHandler(_ context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return err
	}

	bookID := int64(0)
	if tc.Book != nil {
		bookID = tc.Book.ID
	}

	return goerrors.Wrap(err, goerrors.CategoryInternal, "book transition hook failed").
		WithMetadata(map[string]any{
			"phase":   phase,
			"book_id": bookID,
			"from":    tc.From,
			"to":      tc.To,
		})
}

func (sm *bookStateMachine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: "system"}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = sm.now()
	}

	sink := normalizeActivitySink(sm.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		sm.logger.Warn("state machine activity sink error", "error", err)
	}
}

func (sm *bookStateMachine) transitionMetadata(tc TransitionContext) map[string]any {
	result := map[string]any{
		"from": string(tc.From),
		"to":   string(tc.To),
	}
	if tc.Meta.Reason != "" {
		result["reason"] = tc.Meta.Reason
	}
	for k, v := range tc.Meta.Metadata {
		result[k] = v
	}
	return result
}
