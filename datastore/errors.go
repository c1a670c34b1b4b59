package datastore

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// TransientStoreError wraps connection and pagination failures that
// are worth retrying. The search index stays ready.
type TransientStoreError struct {
	Op  string
	Err error
}

func (self *TransientStoreError) Error() string {
	return fmt.Sprintf("transient store error in %s: %v", self.Op, self.Err)
}

func (self *TransientStoreError) Unwrap() error {
	return self.Err
}

// DataIngestionError means the source data or the store rejected a
// document. The search index is marked fail.
type DataIngestionError struct {
	IndexName string
	Detail    string
}

func (self *DataIngestionError) Error() string {
	return fmt.Sprintf("data ingestion error on %s: %s",
		self.IndexName, self.Detail)
}

func IsTransient(err error) bool {
	var transient *TransientStoreError
	if errors.As(err, &transient) {
		return true
	}

	var net_err net.Error
	if errors.As(err, &net_err) && net_err.Timeout() {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}

// Retryable status codes from the backend.
func isTransientStatus(status int) bool {
	switch status {
	case 429, 502, 503, 504:
		return true
	}
	return false
}
