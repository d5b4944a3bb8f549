package wallet

import "context"

// ApprovalRequest is what an Approver is asked to accept.
type ApprovalRequest struct {
	Origin    string
	PublicKey string
}

// Approver decides whether an interactive connect request is accepted.
type Approver interface {
	Approve(ctx context.Context, req ApprovalRequest) (bool, error)
}

// ApproverFunc adapts a function to the Approver interface.
type ApproverFunc func(ctx context.Context, req ApprovalRequest) (bool, error)

func (f ApproverFunc) Approve(ctx context.Context, req ApprovalRequest) (bool, error) {
	return f(ctx, req)
}

// AutoApprove accepts every request. Used by the offline ledger mode and tests.
var AutoApprove = ApproverFunc(func(context.Context, ApprovalRequest) (bool, error) {
	return true, nil
})
