// Package external confirms picked movements to the external
// order-management system.
//
// A confirmation is a single JSON POST to {url}wfevent/executeEvent. Any 2xx
// answer is success. Timeouts and refused connections are reported as
// ErrUnreachable and are retried later by the caller; everything else is
// ErrRejected and is final.
package external
