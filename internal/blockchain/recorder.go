package blockchain

import (
	"context"
	"fmt"
	"time"

	"upcycle-api-server/internal/logger"
	"upcycle-api-server/internal/marketplace"
)

const recordTransferFn = "RecordTransfer"

// Submitter is the slice of *gateway.Contract the recorder uses.
type Submitter interface {
	SubmitTransaction(name string, args ...string) ([]byte, error)
}

// TransferRecorder writes completed requests to the ledger chaincode as an
// audit trail of material hand-overs. It ignores every other event.
type TransferRecorder struct {
	contract Submitter
	log      *logger.Logger
}

func NewTransferRecorder(contract Submitter, log *logger.Logger) *TransferRecorder {
	return &TransferRecorder{contract: contract, log: log.With("service", "TransferRecorder")}
}

func (r *TransferRecorder) Name() string { return "fabric" }

func (r *TransferRecorder) Observe(_ context.Context, ev marketplace.RequestEvent) error {
	if ev.Type != marketplace.EventRequestCompleted || ev.Request == nil || ev.Material == nil {
		return nil
	}
	args := []string{
		ev.Request.ID,
		ev.Material.ID,
		ev.Material.OrgID,
		ev.Request.BuyerID,
		ev.Request.Quantity.String(),
		ev.Material.Unit,
		ev.At.UTC().Format(time.RFC3339),
	}
	txID, err := r.contract.SubmitTransaction(recordTransferFn, args...)
	if err != nil {
		return fmt.Errorf("submit %s for request %s: %w", recordTransferFn, ev.Request.ID, err)
	}
	r.log.Info("transfer recorded on chain", "request_id", ev.Request.ID, "material_id", ev.Material.ID, "result", string(txID))
	return nil
}
