package error

// Logic error codes.
const (
	CodeIndexOutOfBounds       = "INDEX_OUT_OF_BOUNDS"
	CodeColumnIndexOutOfRange  = "COLUMN_INDEX_OUT_OF_RANGE"
	CodeTableIndexOutOfRange   = "TABLE_INDEX_OUT_OF_RANGE"
	CodeWrongTransactState     = "WRONG_TRANSACT_STATE"
	CodeDetachedAccessor       = "DETACHED_ACCESSOR"
	CodeTypeMismatch           = "TYPE_MISMATCH"
	CodeColumnNotNullable      = "COLUMN_NOT_NULLABLE"
	CodeNoSearchIndex          = "NO_SEARCH_INDEX"
	CodeUniqueConstraint       = "UNIQUE_CONSTRAINT_VIOLATION"
	CodeWrongKindOfTable       = "WRONG_KIND_OF_TABLE"
	CodeStringTooBig           = "STRING_TOO_BIG"
	CodeBinaryTooBig           = "BINARY_TOO_BIG"
	CodeNoHistory              = "NO_HISTORY"
	CodeIllegalCombination     = "ILLEGAL_COMBINATION"
	CodeTableHasNoColumns      = "TABLE_HAS_NO_COLUMNS"
	CodeTargetRowIndexOutRange = "TARGET_ROW_INDEX_OUT_OF_RANGE"
	CodeIllegalType            = "ILLEGAL_TYPE"
	CodeReadOnly               = "READ_ONLY"
	CodeInvalidQuery           = "INVALID_QUERY"
)

// Environment error codes.
const (
	CodeFileAccess                = "FILE_ACCESS"
	CodeFileFormatUpgradeRequired = "FILE_FORMAT_UPGRADE_REQUIRED"
	CodeIncompatibleLockFile      = "INCOMPATIBLE_LOCK_FILE"
	CodeInvalidDatabase           = "INVALID_DATABASE"
	CodeHistoryUnavailable        = "HISTORY_UNAVAILABLE"
)

// Domain error codes.
const (
	CodeNoSuchTable          = "NO_SUCH_TABLE"
	CodeTableNameInUse       = "TABLE_NAME_IN_USE"
	CodeCrossTableLinkTarget = "CROSS_TABLE_LINK_TARGET"
	CodeDescriptorMismatch   = "DESCRIPTOR_MISMATCH"
	CodeBadVersion           = "BAD_VERSION"
)

// Sentinels for errors.Is comparisons. They carry no stack and no detail.
var (
	ErrIndexOutOfBounds      = &DBError{Code: CodeIndexOutOfBounds, Category: ErrCategoryLogic, Message: "row index out of bounds"}
	ErrColumnIndexOutOfRange = &DBError{Code: CodeColumnIndexOutOfRange, Category: ErrCategoryLogic, Message: "column index out of range"}
	ErrTableIndexOutOfRange  = &DBError{Code: CodeTableIndexOutOfRange, Category: ErrCategoryLogic, Message: "table index out of range"}
	ErrWrongTransactState    = &DBError{Code: CodeWrongTransactState, Category: ErrCategoryLogic, Message: "wrong transaction state"}
	ErrDetachedAccessor      = &DBError{Code: CodeDetachedAccessor, Category: ErrCategoryLogic, Message: "accessor is detached"}
	ErrTypeMismatch          = &DBError{Code: CodeTypeMismatch, Category: ErrCategoryLogic, Message: "type mismatch"}
	ErrColumnNotNullable     = &DBError{Code: CodeColumnNotNullable, Category: ErrCategoryLogic, Message: "column is not nullable"}
	ErrNoSearchIndex         = &DBError{Code: CodeNoSearchIndex, Category: ErrCategoryLogic, Message: "column has no search index"}
	ErrUniqueConstraint      = &DBError{Code: CodeUniqueConstraint, Category: ErrCategoryLogic, Message: "unique constraint violation"}
	ErrWrongKindOfTable      = &DBError{Code: CodeWrongKindOfTable, Category: ErrCategoryLogic, Message: "operation not supported on this kind of table"}
	ErrStringTooBig          = &DBError{Code: CodeStringTooBig, Category: ErrCategoryLogic, Message: "string too big"}
	ErrBinaryTooBig          = &DBError{Code: CodeBinaryTooBig, Category: ErrCategoryLogic, Message: "binary too big"}
	ErrNoHistory             = &DBError{Code: CodeNoHistory, Category: ErrCategoryLogic, Message: "no replication history attached"}
	ErrIllegalCombination    = &DBError{Code: CodeIllegalCombination, Category: ErrCategoryLogic, Message: "illegal combination of arguments"}
	ErrTableHasNoColumns     = &DBError{Code: CodeTableHasNoColumns, Category: ErrCategoryLogic, Message: "table has no columns"}
	ErrTargetRowOutOfRange   = &DBError{Code: CodeTargetRowIndexOutRange, Category: ErrCategoryLogic, Message: "target row index out of range"}
	ErrIllegalType           = &DBError{Code: CodeIllegalType, Category: ErrCategoryLogic, Message: "illegal column type"}
	ErrReadOnly              = &DBError{Code: CodeReadOnly, Category: ErrCategoryLogic, Message: "modification outside a write transaction"}
	ErrInvalidQuery          = &DBError{Code: CodeInvalidQuery, Category: ErrCategoryLogic, Message: "invalid query"}

	ErrFileAccess                = &DBError{Code: CodeFileAccess, Category: ErrCategorySystem, Message: "file access error"}
	ErrFileFormatUpgradeRequired = &DBError{Code: CodeFileFormatUpgradeRequired, Category: ErrCategorySystem, Message: "file format upgrade required"}
	ErrIncompatibleLockFile      = &DBError{Code: CodeIncompatibleLockFile, Category: ErrCategorySystem, Message: "incompatible lock file"}
	ErrInvalidDatabase           = &DBError{Code: CodeInvalidDatabase, Category: ErrCategoryData, Message: "invalid database"}
	ErrHistoryUnavailable        = &DBError{Code: CodeHistoryUnavailable, Category: ErrCategorySystem, Message: "history store unavailable"}

	ErrNoSuchTable          = &DBError{Code: CodeNoSuchTable, Category: ErrCategoryDomain, Message: "no such table"}
	ErrTableNameInUse       = &DBError{Code: CodeTableNameInUse, Category: ErrCategoryDomain, Message: "table name already in use"}
	ErrCrossTableLinkTarget = &DBError{Code: CodeCrossTableLinkTarget, Category: ErrCategoryDomain, Message: "table is the target of a cross-table link"}
	ErrDescriptorMismatch   = &DBError{Code: CodeDescriptorMismatch, Category: ErrCategoryDomain, Message: "descriptor mismatch"}
	ErrBadVersion           = &DBError{Code: CodeBadVersion, Category: ErrCategoryConcurrency, Message: "snapshot version is not available"}
)

// Logic builds a new logic error for code with an optional formatted detail.
func Logic(code, message string) *DBError {
	return New(ErrCategoryLogic, code, message)
}

// Domain builds a new domain error.
func Domain(code, message string) *DBError {
	return New(ErrCategoryDomain, code, message)
}

// System builds a new environment error.
func System(code, message string) *DBError {
	return New(ErrCategorySystem, code, message)
}

// From creates a fresh error (with stack) from a sentinel, so callers can
// attach detail without mutating the shared sentinel value.
func From(sentinel *DBError) *DBError {
	return &DBError{
		Code:     sentinel.Code,
		Category: sentinel.Category,
		Message:  sentinel.Message,
		Stack:    captureStack(),
	}
}
