package library

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// Ledger records borrows and returns and keeps Book.Available in step with
// the open borrow for each book.
type Ledger struct {
	repo     RepositoryManager
	logger   Logger
	activity activityRecorder
	states   BookStateMachine
	now      func() time.Time
}

// LedgerOption customizes a Ledger
type LedgerOption func(*Ledger)

// WithLedgerClock injects a custom clock (useful for tests).
func WithLedgerClock(clock func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if clock != nil {
			l.now = clock
			l.activity.now = clock
		}
	}
}

// WithLedgerStateMachine replaces the state machine that flips availability
func WithLedgerStateMachine(states BookStateMachine) LedgerOption {
	return func(l *Ledger) {
		l.states = states
	}
}

func NewLedger(repo RepositoryManager, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		repo:     repo,
		logger:   defLogger{},
		activity: activityRecorder{sink: noopActivitySink{}, now: time.Now},
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

func (l *Ledger) WithLogger(logger Logger) *Ledger {
	l.logger = normalizeLogger(logger)
	l.activity.logger = l.logger
	return l
}

func (l *Ledger) WithActivitySink(sink ActivitySink) *Ledger {
	l.activity.sink = normalizeActivitySink(sink)
	return l
}

func (l *Ledger) stateMachine() BookStateMachine {
	if l.states != nil {
		return l.states
	}
	return NewBookStateMachine(l.repo.Books(),
		WithStateMachineClock(l.now),
		WithStateMachineActivitySink(l.activity.sink),
		WithStateMachineLogger(l.logger),
	)
}

// Borrow lends bookID to userID. A missing book is reported before an
// unavailable one.
func (l *Ledger) Borrow(ctx context.Context, bookID, userID int64) (*Borrow, error) {
	borrow := &Borrow{
		UserID: userID,
		BookID: bookID,
	}

	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		book, err := l.repo.Books().LockByIDTx(ctx, tx, bookID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrBookNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load book")
		}

		if !book.Available {
			return ErrBookUnavailable
		}

		borrow.BorrowedAt = l.now().UTC()
		if _, err := l.repo.Borrows().CreateTx(ctx, tx, borrow); err != nil {
			if isUniqueViolation(err) {
				return ErrBookUnavailable
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to record borrow")
		}

		_, err = l.stateMachine().TransitionTx(ctx, tx, actorFromContext(ctx), book, BookStateBorrowed,
			WithTransitionReason("borrowed"),
			WithTransitionMetadata(map[string]any{"user_id": userID}),
		)
		if err != nil {
			if IsInvalidTransition(err) {
				return ErrBookUnavailable
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update book availability")
		}

		return nil
	})
	if err != nil {
		if err != ErrBookNotFound && err != ErrBookUnavailable {
			l.logger.Error("borrow failed", "book_id", bookID, "user_id", userID, "error", err)
		}
		return nil, wrapInternal(err, "borrow transaction failed")
	}

	l.logger.Debug("book borrowed", "book_id", bookID, "user_id", userID, "borrow_id", borrow.ID)
	l.activity.emit(ctx, ActivityEvent{
		EventType: ActivityEventBookBorrowed,
		BookID:    bookID,
		UserID:    formatID(userID),
		Metadata:  map[string]any{"borrow_id": borrow.ID},
	})

	return borrow, nil
}

// Return closes the open borrow of bookID held by userID
func (l *Ledger) Return(ctx context.Context, bookID, userID int64) (*Borrow, error) {
	var borrow *Borrow

	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		borrow, err = l.repo.Borrows().GetOpenTx(ctx, tx, bookID, userID)
		if err != nil {
			if !repository.IsRecordNotFound(err) {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load borrow")
			}
			if _, err := l.repo.Books().GetByIDTx(ctx, tx, formatID(bookID)); err != nil {
				if repository.IsRecordNotFound(err) {
					return ErrBookNotFound
				}
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load book")
			}
			return ErrNoActiveBorrow
		}

		if err := l.repo.Borrows().CloseTx(ctx, tx, borrow, l.now().UTC()); err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrNoActiveBorrow
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to close borrow")
		}

		book, err := l.repo.Books().LockByIDTx(ctx, tx, bookID)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load book")
		}

		_, err = l.stateMachine().TransitionTx(ctx, tx, actorFromContext(ctx), book, BookStateAvailable,
			WithTransitionReason("returned"),
			WithTransitionMetadata(map[string]any{"user_id": userID, "borrow_id": borrow.ID}),
		)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return err
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update book availability")
		}

		return nil
	})
	if err != nil {
		return nil, wrapInternal(err, "return transaction failed")
	}

	l.logger.Debug("book returned", "book_id", bookID, "user_id", userID, "borrow_id", borrow.ID)
	l.activity.emit(ctx, ActivityEvent{
		EventType: ActivityEventBookReturned,
		BookID:    bookID,
		UserID:    formatID(userID),
		Metadata:  map[string]any{"borrow_id": borrow.ID},
	})

	return borrow, nil
}

// History lists every borrow of userID, open or closed, oldest first
func (l *Ledger) History(ctx context.Context, userID int64) ([]*Borrow, error) {
	borrows, err := l.repo.Borrows().ListByUser(ctx, userID)
	if err != nil {
		return nil, wrapInternal(err, "failed to list borrow history")
	}
	return borrows, nil
}
