package models

import "errors"

type DocumentType string

const (
	DocumentTypeCount     DocumentType = "Count"
	DocumentTypeTransfer  DocumentType = "Transfer"
	DocumentTypeWriteOff  DocumentType = "WriteOff"
	DocumentTypeRepricing DocumentType = "Repricing"
)

func ParseDocumentType(s string) (DocumentType, error) {
	switch s {
	case "Count":
		return DocumentTypeCount, nil
	case "Transfer":
		return DocumentTypeTransfer, nil
	case "WriteOff":
		return DocumentTypeWriteOff, nil
	case "Repricing":
		return DocumentTypeRepricing, nil
	default:
		return "", errors.New("invalid document type")
	}
}

// SingleShop reports whether the type operates on one shop (Transfer uses
// departure + arrival instead).
func (t DocumentType) SingleShop() bool {
	return t != DocumentTypeTransfer
}

type DocumentStatus string

const (
	DocumentStatusNew      DocumentStatus = "New"
	DocumentStatusApproved DocumentStatus = "Approved"
	DocumentStatusRejected DocumentStatus = "Rejected"
)

func ParseDocumentStatus(s string) (DocumentStatus, error) {
	switch s {
	case "New":
		return DocumentStatusNew, nil
	case "Approved":
		return DocumentStatusApproved, nil
	case "Rejected":
		return DocumentStatusRejected, nil
	default:
		return "", errors.New("invalid document status")
	}
}

func (s DocumentStatus) Terminal() bool {
	return s == DocumentStatusApproved || s == DocumentStatusRejected
}

// PriceMode selects which price field a repricing document edits.
// The other field stays read-only, mirrored from the product snapshot.
type PriceMode string

const (
	PriceModeSupply PriceMode = "Supply"
	PriceModeRetail PriceMode = "Retail"
)

func ParsePriceMode(s string) (PriceMode, error) {
	switch s {
	case "Supply":
		return PriceModeSupply, nil
	case "Retail":
		return PriceModeRetail, nil
	default:
		return "", errors.New("invalid price mode")
	}
}

type FinalizeAction string

const (
	FinalizeActionApprove FinalizeAction = "Approve"
	FinalizeActionReject  FinalizeAction = "Reject"
)

func ParseFinalizeAction(s string) (FinalizeAction, error) {
	switch s {
	case "Approve":
		return FinalizeActionApprove, nil
	case "Reject":
		return FinalizeActionReject, nil
	default:
		return "", errors.New("invalid finalize action")
	}
}

// PriceField identifies which of the three linked price figures was edited, so
// derivations run in one direction only.
type PriceField string

const (
	PriceFieldSupply PriceField = "Supply"
	PriceFieldMarkup PriceField = "Markup"
	PriceFieldRetail PriceField = "Retail"
)

func ParsePriceField(s string) (PriceField, error) {
	switch s {
	case "Supply":
		return PriceFieldSupply, nil
	case "Markup":
		return PriceFieldMarkup, nil
	case "Retail":
		return PriceFieldRetail, nil
	default:
		return "", errors.New("invalid price field")
	}
}
