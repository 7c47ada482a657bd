package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"
)

// database/sql does not export the error returned by a closed *sql.DB.
const closedPoolMessage = "sql: database is closed"

// ErrStore matches every *StoreError via errors.Is.
var ErrStore = errors.New("store error")

type ErrorKind string

const (
	KindConnectivity ErrorKind = "connectivity"
	KindIntegrity    ErrorKind = "integrity"
	KindEncoding     ErrorKind = "encoding"
	KindUnknown      ErrorKind = "unknown"
)

// StoreError is the single failure signal a SubscriberRepository returns.
type StoreError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s failure: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

func newStoreError(op string, kind ErrorKind, err error) *StoreError {
	return &StoreError{Kind: kind, Op: op, Err: err}
}

// classify maps driver and transport errors onto an ErrorKind using
// SQLSTATE classes where the server supplied one.
func classify(op string, err error) *StoreError {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			return newStoreError(op, KindConnectivity, err)
		case "23":
			return newStoreError(op, KindIntegrity, err)
		case "22":
			return newStoreError(op, KindEncoding, err)
		}
		return newStoreError(op, KindUnknown, err)
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.As(err, &netErr),
		strings.Contains(err.Error(), closedPoolMessage):
		return newStoreError(op, KindConnectivity, err)
	}
	return newStoreError(op, KindUnknown, err)
}
