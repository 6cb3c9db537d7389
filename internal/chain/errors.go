package chain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SubmissionError wraps a failure to get a transaction accepted by the
// ledger node. Transient instances are retried with fresh fee estimates.
type SubmissionError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("settlement submission failed (%s, %d attempts): %v", e.Op, e.Attempts, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ConfirmationTimeoutError means the transaction was accepted but no receipt
// arrived within the configured window. The submission may still confirm
// later; callers must reconcile via Lookup instead of resubmitting.
type ConfirmationTimeoutError struct {
	Op     string
	TxHash common.Hash
	Waited time.Duration
}

func (e *ConfirmationTimeoutError) Error() string {
	return fmt.Sprintf("settlement confirmation timed out (%s, tx %s, waited %s)", e.Op, e.TxHash.Hex(), e.Waited)
}

// RevertedError means the ledger included the transaction but the contract
// call failed.
type RevertedError struct {
	Op     string
	TxHash common.Hash
}

func (e *RevertedError) Error() string {
	return fmt.Sprintf("settlement call reverted (%s, tx %s)", e.Op, e.TxHash.Hex())
}

// ReceiptMismatchError means the call succeeded on the ledger but the receipt
// did not carry the event the operation expected. Fatal, never retried: the
// ledger state no longer matches what the caller assumed it asked for.
type ReceiptMismatchError struct {
	Op            string
	TxHash        common.Hash
	ExpectedEvent string
}

func (e *ReceiptMismatchError) Error() string {
	return fmt.Sprintf("settlement receipt missing expected event %s (%s, tx %s)", e.ExpectedEvent, e.Op, e.TxHash.Hex())
}

// IsSettlementError reports whether err came out of the settlement layer, as
// opposed to a local precondition or storage failure.
func IsSettlementError(err error) bool {
	var sub *SubmissionError
	var timeout *ConfirmationTimeoutError
	var reverted *RevertedError
	var mismatch *ReceiptMismatchError
	return errors.As(err, &sub) || errors.As(err, &timeout) || errors.As(err, &reverted) || errors.As(err, &mismatch)
}

// TxHashFromError extracts the transaction hash when the failure happened
// after submission, so callers can hand out a reference for later polling.
func TxHashFromError(err error) (common.Hash, bool) {
	var timeout *ConfirmationTimeoutError
	if errors.As(err, &timeout) {
		return timeout.TxHash, true
	}
	var reverted *RevertedError
	if errors.As(err, &reverted) {
		return reverted.TxHash, true
	}
	var mismatch *ReceiptMismatchError
	if errors.As(err, &mismatch) {
		return mismatch.TxHash, true
	}
	return common.Hash{}, false
}

// isTransientSubmitError classifies node-side errors worth a resubmit with a
// fresh nonce and fee estimate. Reverts and malformed calls are not.
func isTransientSubmitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{
		"nonce too low",
		"nonce too high",
		"replacement transaction underpriced",
		"transaction underpriced",
		"connection refused",
		"connection reset",
		"i/o timeout",
		"eof",
		"temporarily unavailable",
	} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
