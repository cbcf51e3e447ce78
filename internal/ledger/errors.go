package ledger

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
)

var (
	// caller input
	ErrInvalidIdentifier = errors.New("invalid consignment identifier")

	// node did not answer in time or the connection failed; reads may be retried, submits never are
	ErrLedgerUnreachable = errors.New("ledger unreachable")

	// the node refused the transaction before inclusion (nonce, funds, gas limit...)
	ErrTransactionRejected = errors.New("transaction rejected by ledger node")
	// contract logic rejected the call
	ErrTransactionReverted = errors.New("transaction reverted")
	// the transaction ran out of gas under the estimate x1.5 ceiling
	ErrFeeCeilingExceeded = errors.New("fee ceiling exceeded")

	// no contract location configured, or no code deployed at it
	ErrNotConfigured = errors.New("ledger contract not configured")
	// the embedded contract schema does not match expected signatures
	ErrSchemaMismatch = errors.New("contract schema mismatch")
)

// isRevert reports whether an RPC error is an EVM revert surfaced by
// eth_call or eth_estimateGas.
func isRevert(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

// isUnreachable reports whether err looks like a transport failure or a timeout
// rather than an answer from the node.
func isUnreachable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host")
}
