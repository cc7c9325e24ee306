package remote

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sitemanager/blob"
)

// uniqueViolation is the Postgres code for a duplicate key.
const uniqueViolation = "23505"

// duplicateSubmission reports whether err is the backend rejecting a
// client_ref it already holds. Violations of any other unique constraint
// are real rejections.
func duplicateSubmission(err error) bool {
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Code != uniqueViolation {
		return false
	}
	return strings.Contains(ve.Message, "client_ref") || strings.Contains(ve.Details, "client_ref")
}

// Movement is one stock movement to record on the server.
type Movement struct {
	ClientRef       string
	ProjectID       string
	ItemID          string
	Quantity        decimal.Decimal // signed
	TransactionType string
	Signature       string // optional data URL
	Notes           string
}

type ledgerInsert struct {
	ClientRef       string          `json:"client_ref"`
	ProjectID       string          `json:"project_id"`
	SKUID           string          `json:"sku_id"`
	UserID          *string         `json:"user_id,omitempty"`
	TransactionType string          `json:"transaction_type"`
	QuantityChange  decimal.Decimal `json:"quantity_change"`
	EvidenceURL     *string         `json:"evidence_url"`
	Notes           string          `json:"notes"`
}

// SubmitMovement uploads the signature (if any) and inserts the ledger entry.
// An upload failure does not block the movement; it is recorded without
// evidence. A duplicate client_ref means an earlier attempt already landed
// and is reported as success.
func (g *Gateway) SubmitMovement(ctx context.Context, mv Movement) error {
	body := ledgerInsert{
		ClientRef:       mv.ClientRef,
		ProjectID:       mv.ProjectID,
		SKUID:           mv.ItemID,
		TransactionType: mv.TransactionType,
		QuantityChange:  mv.Quantity,
		Notes:           mv.Notes,
	}
	if uid := g.UserID(); uid != "" {
		body.UserID = &uid
	}
	if mv.Signature != "" {
		if url, err := g.uploadEvidence(ctx, mv.ItemID, mv.Signature); err != nil {
			g.log.Warn("evidence upload failed, submitting without it",
				zap.String("client_ref", mv.ClientRef), zap.Error(err))
		} else {
			body.EvidenceURL = &url
		}
	}

	err := g.insertRows(ctx, "submit movement", "inventory_ledger", "", []ledgerInsert{body}, nil)
	if duplicateSubmission(err) {
		g.log.Info("movement already recorded", zap.String("client_ref", mv.ClientRef))
		return nil
	}
	return err
}

func (g *Gateway) uploadEvidence(ctx context.Context, itemID, dataURL string) (string, error) {
	if g.blob == nil {
		return "", errors.New("no evidence store configured")
	}
	contentType, data, err := blob.DecodeDataURL(dataURL)
	if err != nil {
		return "", err
	}
	return g.blob.Put(ctx, blob.EvidenceName(g.now(), itemID, contentType), contentType, data)
}
