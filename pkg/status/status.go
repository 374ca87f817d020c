package status

import (
	"errors"
	"fmt"
	"log/slog"
)

// Numeric result codes exposed to transport layers. 200 means success,
// 4xx/51x-52x are business errors, 528-530 are fault codes.
const (
	OK = 200

	CodeAuthorization = 401

	CodeNonExistUser  = 511
	CodeNonExistStore = 512
	CodeNonExistBook  = 513
	CodeExistUser     = 514
	CodeExistStore    = 515
	CodeExistBook     = 516

	CodeStockLow          = 517
	CodeInsufficientFunds = 518
	CodeInvalidOrder      = 519
	CodeNotPaid           = 520
	CodeNotShipped        = 521

	CodeStorageFault = 528
	CodeNoMatch      = 529
	CodeInternal     = 530
)

// Error carries a result code alongside a caller-facing message. Storage and
// internal faults keep their cause wrapped for errors.Is/As.
type Error struct {
	Code    int
	Message string
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// CodeOf maps an operation result to the numeric contract. A nil error is
// success; anything that is not a *Error counts as an internal fault.
func CodeOf(err error) (int, string) {
	if err == nil {
		return OK, "ok"
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code, se.Message
	}
	return CodeInternal, err.Error()
}

// Authorization covers every credential failure: unknown user, wrong
// password, stale or mismatched token. The message never reveals which
// check failed.
func Authorization() error {
	return &Error{Code: CodeAuthorization, Message: "authorization fail"}
}

func NonExistUser(id string) error {
	return &Error{Code: CodeNonExistUser, Message: fmt.Sprintf("user %q does not exist", id)}
}

func NonExistStore(id string) error {
	return &Error{Code: CodeNonExistStore, Message: fmt.Sprintf("store %q does not exist", id)}
}

func NonExistBook(id string) error {
	return &Error{Code: CodeNonExistBook, Message: fmt.Sprintf("book %q does not exist", id)}
}

func ExistUser(id string) error {
	return &Error{Code: CodeExistUser, Message: fmt.Sprintf("user %q already exists", id)}
}

func ExistStore(id string) error {
	return &Error{Code: CodeExistStore, Message: fmt.Sprintf("store %q already exists", id)}
}

func ExistBook(id string) error {
	return &Error{Code: CodeExistBook, Message: fmt.Sprintf("book %q already exists", id)}
}

func StockLow(bookID string) error {
	return &Error{Code: CodeStockLow, Message: fmt.Sprintf("stock level low for book %q", bookID)}
}

func InsufficientFunds(orderID string) error {
	return &Error{Code: CodeInsufficientFunds, Message: fmt.Sprintf("not sufficient funds for order %q", orderID)}
}

func InvalidOrder(orderID string) error {
	return &Error{Code: CodeInvalidOrder, Message: fmt.Sprintf("invalid order %q", orderID)}
}

func NotPaid(orderID string) error {
	return &Error{Code: CodeNotPaid, Message: fmt.Sprintf("order %q is not paid", orderID)}
}

func NotShipped(orderID string) error {
	return &Error{Code: CodeNotShipped, Message: fmt.Sprintf("order %q is not shipped", orderID)}
}

func NoMatch() error {
	return &Error{Code: CodeNoMatch, Message: "no matching books found"}
}

// StorageFault wraps a driver-level failure. It is never folded into a
// business error so callers can tell the two apart.
func StorageFault(err error) error {
	return &Error{Code: CodeStorageFault, Message: fmt.Sprintf("storage fault: %v", err), cause: err}
}

// Internal wraps any unexpected failure caught at an operation boundary.
func Internal(err error) error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf("internal fault: %v", err), cause: err}
}

// Recover converts a panic inside an operation into an internal fault so the
// error contract holds at every boundary. Use as: defer status.Recover(&err).
func Recover(errp *error) {
	if r := recover(); r != nil {
		slog.Error("operation panicked", "panic", r)
		*errp = Internal(fmt.Errorf("%v", r))
	}
}
