package batch

// ItemStatus is the processing outcome of a single batch item.
type ItemStatus string

// Batch item status values.
const (
	StatusOK    ItemStatus = "ok"
	StatusError ItemStatus = "error"
)

// Result is the outcome of processing one item in a batch operation.
// Successful items carry the document version the operation observed:
// the version the write landed at, or the last version a delete removed.
type Result struct {
	id      string
	status  ItemStatus
	version int
	err     error
}

// NewOK creates a successful batch result at the given version.
func NewOK(id string, version int) Result {
	return Result{id: id, status: StatusOK, version: version}
}

// NewError creates a failed batch result.
func NewError(id string, err error) Result { return Result{id: id, status: StatusError, err: err} }

// ID returns the item identifier.
func (r Result) ID() string { return r.id }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Version returns the document version for successful items, 0 otherwise.
func (r Result) Version() int { return r.version }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }
