// internal/utils/receipt.go
package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const receiptIssuer = "paylink-settlement"

// ReceiptClaims bind an on-chain settlement to one buyer, resource and price.
type ReceiptClaims struct {
	Resource        string `json:"resource"`
	BuyerID         string `json:"buyer_id"`
	Amount          string `json:"amount"`
	Network         string `json:"network"`
	TransactionHash string `json:"tx_hash"`
	Payer           string `json:"payer,omitempty"`
	PayTo           string `json:"pay_to"`
	Asset           string `json:"asset,omitempty"`
	AmountBaseUnits string `json:"amount_base_units"`
	jwt.RegisteredClaims
}

func SignSettlementReceipt(secret []byte, claims ReceiptClaims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.Issuer = receiptIssuer
	claims.Subject = claims.BuyerID
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func VerifySettlementReceipt(secret []byte, tokenString string) (*ReceiptClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ReceiptClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*ReceiptClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid settlement receipt")
	}
	if claims.Issuer != receiptIssuer {
		return nil, errors.New("settlement receipt has wrong issuer")
	}

	return claims, nil
}
