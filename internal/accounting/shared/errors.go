package shared

import "errors"

var (
	// ErrValidation indicates malformed input or a uniqueness conflict.
	ErrValidation = errors.New("accounting: validation failed")
	// ErrDuplicateCode indicates the account code is already registered.
	ErrDuplicateCode = errors.New("accounting: account code already exists")
	// ErrImbalance indicates debit != credit.
	ErrImbalance = errors.New("accounting: journal lines must balance")
	// ErrInvalidLine indicates a line without exactly one positive side, or too few lines.
	ErrInvalidLine = errors.New("accounting: invalid journal line")
	// ErrAccountNotFound indicates a referenced account does not exist.
	ErrAccountNotFound = errors.New("accounting: account not found")
	// ErrInactiveAccount indicates a referenced account is deactivated.
	ErrInactiveAccount = errors.New("accounting: account is inactive")
	// ErrHeaderAccount indicates a posting targets an aggregation-only account.
	ErrHeaderAccount = errors.New("accounting: header accounts cannot be posted to")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("accounting: journal entry not found")
	// ErrAlreadyPosted indicates the entry was posted before.
	ErrAlreadyPosted = errors.New("accounting: journal entry already posted")
	// ErrNotPosted indicates the entry is still a draft.
	ErrNotPosted = errors.New("accounting: journal entry not posted")
	// ErrCannotDeletePosted indicates an attempt to delete posted history.
	ErrCannotDeletePosted = errors.New("accounting: posted journal entries cannot be deleted")
	// ErrAlreadyReversed indicates the entry already has a reversing entry.
	ErrAlreadyReversed = errors.New("accounting: journal entry already reversed")
	// ErrReversalNotAllowed indicates an attempt to reverse a reversing entry.
	ErrReversalNotAllowed = errors.New("accounting: reversing entries cannot be reversed")
	// ErrDependency indicates a related record blocks the operation.
	ErrDependency = errors.New("accounting: dependency violation")
	// ErrInvariant indicates a chart of accounts invariant would break.
	ErrInvariant = errors.New("accounting: invariant violation")
	// ErrConcurrency indicates the storage transaction aborted; safe to retry.
	ErrConcurrency = errors.New("accounting: concurrent update, retry")
	// ErrSourceAlreadyLinked indicates idempotency conflict.
	ErrSourceAlreadyLinked = errors.New("accounting: source already linked")
	// ErrMappingNotFound indicates account mapping missing.
	ErrMappingNotFound = errors.New("accounting: account mapping not found")
)

// IsRetryable reports whether err is the only retryable class, ErrConcurrency.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrency)
}

// Code returns a stable machine readable code for a ledger error.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrImbalance):
		return "IMBALANCE"
	case errors.Is(err, ErrInvalidLine):
		return "INVALID_LINE"
	case errors.Is(err, ErrAccountNotFound):
		return "ACCOUNT_NOT_FOUND"
	case errors.Is(err, ErrInactiveAccount):
		return "INACTIVE_ACCOUNT"
	case errors.Is(err, ErrHeaderAccount):
		return "HEADER_ACCOUNT"
	case errors.Is(err, ErrJournalNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrAlreadyPosted):
		return "ALREADY_POSTED"
	case errors.Is(err, ErrNotPosted):
		return "NOT_POSTED"
	case errors.Is(err, ErrCannotDeletePosted):
		return "CANNOT_DELETE_POSTED"
	case errors.Is(err, ErrAlreadyReversed):
		return "ALREADY_REVERSED"
	case errors.Is(err, ErrReversalNotAllowed):
		return "REVERSAL_NOT_ALLOWED"
	case errors.Is(err, ErrDependency):
		return "DEPENDENCY"
	case errors.Is(err, ErrInvariant):
		return "INVARIANT"
	case errors.Is(err, ErrConcurrency):
		return "CONCURRENCY"
	case errors.Is(err, ErrSourceAlreadyLinked):
		return "SOURCE_ALREADY_LINKED"
	case errors.Is(err, ErrMappingNotFound):
		return "MAPPING_NOT_FOUND"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrDuplicateCode):
		return "VALIDATION"
	default:
		return "INTERNAL"
	}
}
