// internal/models/payment_metadata.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type PaymentRail string

const (
	PaymentRailCustodialTransfer PaymentRail = "custodial-transfer"
	PaymentRailOnChainSettled    PaymentRail = "on-chain-settled"
	PaymentRailManual            PaymentRail = "manual"
)

// PaymentDetails is implemented only by the variants in this file, so a type
// switch over CustodialTransfer, OnChainSettlement and ManualPayment is exhaustive.
type PaymentDetails interface {
	Rail() PaymentRail
	paymentDetails()
}

type CustodialTransfer struct {
	TransferID      string `json:"transfer_id"`
	TransactionHash string `json:"transaction_hash"`
	Network         string `json:"network"`
	FromWalletID    string `json:"from_wallet_id"`
	ToAddress       string `json:"to_address"`
	TokenAddress    string `json:"token_address"`
	AmountBaseUnits string `json:"amount_base_units"`
	IdempotencyKey  string `json:"idempotency_key"`
}

type OnChainSettlement struct {
	TransactionHash string `json:"transaction_hash"`
	Network         string `json:"network"`
	Payer           string `json:"payer"`
	PayTo           string `json:"pay_to"`
	Asset           string `json:"asset,omitempty"`
	AmountBaseUnits string `json:"amount_base_units"`
	// FromReceipt is set when a previously issued settlement receipt was redeemed.
	FromReceipt bool `json:"from_receipt,omitempty"`
}

type ManualPayment struct {
	RecordedBy uuid.UUID `json:"recorded_by"`
	Reason     string    `json:"reason"`
}

func (CustodialTransfer) Rail() PaymentRail { return PaymentRailCustodialTransfer }
func (OnChainSettlement) Rail() PaymentRail { return PaymentRailOnChainSettled }
func (ManualPayment) Rail() PaymentRail     { return PaymentRailManual }

func (CustodialTransfer) paymentDetails() {}
func (OnChainSettlement) paymentDetails() {}
func (ManualPayment) paymentDetails()     {}

// PaymentMetadata is the persisted, tagged envelope around one PaymentDetails variant.
type PaymentMetadata struct {
	Details PaymentDetails
}

type paymentMetadataJSON struct {
	Type    PaymentRail     `json:"type"`
	Details json.RawMessage `json:"details"`
}

func NewPaymentMetadata(details PaymentDetails) PaymentMetadata {
	return PaymentMetadata{Details: details}
}

func (m PaymentMetadata) Rail() PaymentRail {
	if m.Details == nil {
		return ""
	}
	return m.Details.Rail()
}

func (m PaymentMetadata) IsZero() bool {
	return m.Details == nil
}

func (m PaymentMetadata) MarshalJSON() ([]byte, error) {
	if m.Details == nil {
		return []byte("null"), nil
	}

	details, err := json.Marshal(m.Details)
	if err != nil {
		return nil, err
	}

	return json.Marshal(paymentMetadataJSON{Type: m.Details.Rail(), Details: details})
}

func (m *PaymentMetadata) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		m.Details = nil
		return nil
	}

	var envelope paymentMetadataJSON
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}

	switch envelope.Type {
	case PaymentRailCustodialTransfer:
		var d CustodialTransfer
		if err := json.Unmarshal(envelope.Details, &d); err != nil {
			return err
		}
		m.Details = d
	case PaymentRailOnChainSettled:
		var d OnChainSettlement
		if err := json.Unmarshal(envelope.Details, &d); err != nil {
			return err
		}
		m.Details = d
	case PaymentRailManual:
		var d ManualPayment
		if err := json.Unmarshal(envelope.Details, &d); err != nil {
			return err
		}
		m.Details = d
	default:
		return fmt.Errorf("unknown payment metadata type %q", envelope.Type)
	}

	return nil
}

func (m PaymentMetadata) Value() (driver.Value, error) {
	if m.Details == nil {
		return nil, nil
	}
	return m.MarshalJSON()
}

func (m *PaymentMetadata) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		m.Details = nil
		return nil
	case []byte:
		return m.UnmarshalJSON(v)
	case string:
		return m.UnmarshalJSON([]byte(v))
	default:
		return errors.New("unsupported payment metadata source")
	}
}
