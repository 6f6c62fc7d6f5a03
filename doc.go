// Package library implements a small lending library backend: user accounts
// with JWT authentication, an admin managed book catalog and a borrow ledger
// that tracks which member holds which book.
//
// Accounts:
//   - RegisterUserHandler creates users with a bcrypt password digest. Email and
//     username are unique; the role is either admin or member.
//   - Auther verifies credentials through an IdentityProvider and issues HS256
//     tokens through TokenService. Tokens carry the user id as subject and the
//     role as a claim.
//
// Catalog:
//   - Catalog validates and persists books. ISBNs must be numeric and unique
//     among live books. Deleting a book is refused while it is on loan and is
//     a soft delete otherwise so borrow history keeps a valid target.
//
// Ledger:
//   - Ledger moves a book between available and on-loan. Every transition runs
//     inside RepositoryManager.RunInTx and is guarded twice: a conditional
//     update on books.available and a partial unique index allowing a single
//     open borrow per book.
//
// Activity sinks:
//   - ActivitySink receives best-effort audit events (logins, catalog changes,
//     borrows and returns). Sink errors are logged and never fail the request.
//
// HTTP:
//   - Controller wires the operations into a fiber app. Errors are
//     *goerrors.Error values and ErrorHandler renders them as
//     {"detail": "..."} with the status taken from the error code.
package library
