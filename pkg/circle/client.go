// pkg/circle/client.go
package circle

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrInsufficientFunds = errors.New("insufficient wallet balance")
	// ErrUnavailable covers network failures, 5xx responses and polling timeouts.
	ErrUnavailable = errors.New("circle api unavailable")
)

const (
	StateInitiated = "INITIATED"
	StateQueued    = "QUEUED"
	StateSent      = "SENT"
	StateConfirmed = "CONFIRMED"
	StateComplete  = "COMPLETE"
	StateFailed    = "FAILED"
	StateCancelled = "CANCELLED"
	StateDenied    = "DENIED"
)

// Client drives developer-controlled wallet transfers.
type Client struct {
	BaseURL      string
	APIKey       string
	HTTPClient   *http.Client
	PollInterval time.Duration

	entitySecret []byte
	publicKeyPEM string

	mu        sync.Mutex
	publicKey *rsa.PublicKey
}

// NewClient builds a client. entitySecret is the hex-encoded 32 byte entity
// secret; publicKeyPEM may be empty, in which case the key is fetched once.
func NewClient(baseURL, apiKey, entitySecret, publicKeyPEM string, timeout time.Duration) (*Client, error) {
	secret, err := hex.DecodeString(strings.TrimSpace(entitySecret))
	if err != nil {
		return nil, fmt.Errorf("invalid entity secret: %w", err)
	}

	return &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		APIKey:       apiKey,
		HTTPClient:   &http.Client{Timeout: timeout},
		PollInterval: time.Second,
		entitySecret: secret,
		publicKeyPEM: publicKeyPEM,
	}, nil
}

type TransferRequest struct {
	IdempotencyKey     string   `json:"idempotencyKey"`
	WalletID           string   `json:"walletId"`
	DestinationAddress string   `json:"destinationAddress"`
	Amounts            []string `json:"amounts"`
	TokenAddress       string   `json:"tokenAddress,omitempty"`
	Blockchain         string   `json:"blockchain,omitempty"`
	FeeLevel           string   `json:"feeLevel"`
	RefID              string   `json:"refId,omitempty"`

	EntitySecretCiphertext string `json:"entitySecretCiphertext"`
}

type Transaction struct {
	ID                 string   `json:"id"`
	State              string   `json:"state"`
	TxHash             string   `json:"txHash"`
	Blockchain         string   `json:"blockchain"`
	SourceAddress      string   `json:"sourceAddress"`
	DestinationAddress string   `json:"destinationAddress"`
	Amounts            []string `json:"amounts"`
	ErrorReason        string   `json:"errorReason"`
}

func (t *Transaction) Settled() bool {
	return (t.State == StateComplete || t.State == StateConfirmed) && t.TxHash != ""
}

func (t *Transaction) Terminal() bool {
	switch t.State {
	case StateFailed, StateCancelled, StateDenied:
		return true
	}
	return false
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("circle api error: status=%d code=%d message=%s", e.StatusCode, e.Code, e.Message)
}

// TransferFailedError reports a transfer the API accepted but could not complete.
type TransferFailedError struct {
	TransferID string
	State      string
	Reason     string
}

func (e *TransferFailedError) Error() string {
	return fmt.Sprintf("circle transfer %s ended in %s: %s", e.TransferID, e.State, e.Reason)
}

func (e *TransferFailedError) Is(target error) bool {
	return target == ErrInsufficientFunds && isInsufficient(e.Reason)
}

type createTransferResponse struct {
	Data struct {
		ID    string `json:"id"`
		State string `json:"state"`
	} `json:"data"`
}

type getTransactionResponse struct {
	Data struct {
		Transaction Transaction `json:"transaction"`
	} `json:"data"`
}

type publicKeyResponse struct {
	Data struct {
		PublicKey string `json:"publicKey"`
	} `json:"data"`
}

// Transfer submits a token transfer and waits until it carries an on-chain
// hash or reaches a terminal failure. The idempotency key makes resubmission
// of the same purchase safe.
func (c *Client) Transfer(ctx context.Context, req TransferRequest) (*Transaction, error) {
	ciphertext, err := c.entitySecretCiphertext(ctx)
	if err != nil {
		return nil, err
	}
	req.EntitySecretCiphertext = ciphertext
	if req.FeeLevel == "" {
		req.FeeLevel = "MEDIUM"
	}

	var created createTransferResponse
	if err := c.do(ctx, http.MethodPost, "/v1/w3s/developer/transactions/transfer", req, &created); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"component":   "circle_client",
		"transfer_id": created.Data.ID,
		"state":       created.Data.State,
	}).Info("Circle transfer submitted")

	return c.waitForHash(ctx, created.Data.ID)
}

func (c *Client) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	var resp getTransactionResponse
	if err := c.do(ctx, http.MethodGet, "/v1/w3s/transactions/"+id, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data.Transaction, nil
}

func (c *Client) waitForHash(ctx context.Context, id string) (*Transaction, error) {
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()

	for {
		tx, err := c.GetTransaction(ctx, id)
		if err != nil {
			return nil, err
		}
		if tx.ID == "" {
			tx.ID = id
		}

		if tx.Settled() {
			return tx, nil
		}
		if tx.Terminal() {
			return nil, &TransferFailedError{TransferID: id, State: tx.State, Reason: tx.ErrorReason}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: transfer %s still %s: %v", ErrUnavailable, id, tx.State, ctx.Err())
		case <-ticker.C:
		}
	}
}

// entitySecretCiphertext encrypts the entity secret with RSA-OAEP (SHA-256).
// OAEP is randomized, so every request carries a fresh ciphertext.
func (c *Client) entitySecretCiphertext(ctx context.Context) (string, error) {
	key, err := c.entityPublicKey(ctx)
	if err != nil {
		return "", err
	}

	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, key, c.entitySecret, nil)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt entity secret: %w", err)
	}

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (c *Client) entityPublicKey(ctx context.Context) (*rsa.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.publicKey != nil {
		return c.publicKey, nil
	}

	keyPEM := c.publicKeyPEM
	if keyPEM == "" {
		var resp publicKeyResponse
		if err := c.do(ctx, http.MethodGet, "/v1/w3s/config/entity/publicKey", nil, &resp); err != nil {
			return nil, err
		}
		keyPEM = resp.Data.PublicKey
	}

	key, err := ParsePublicKey(keyPEM)
	if err != nil {
		return nil, err
	}

	c.publicKey = key
	return key, nil
}

func ParsePublicKey(keyPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(keyPEM))
	if block == nil {
		return nil, errors.New("entity public key is not PEM encoded")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse entity public key: %w", err)
	}

	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("entity public key is not an RSA key")
	}

	return key, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal circle request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create circle request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, apiErr); err != nil {
			apiErr.Message = strings.TrimSpace(string(bodyBytes))
		}

		logrus.WithFields(logrus.Fields{
			"component": "circle_client",
			"method":    method,
			"path":      path,
			"status":    resp.StatusCode,
			"code":      apiErr.Code,
		}).Warn("Circle API returned non-2xx response")

		switch {
		case isInsufficient(apiErr.Message):
			return fmt.Errorf("%w: %v", ErrInsufficientFunds, apiErr)
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ErrUnavailable, apiErr)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode circle response: %w", err)
	}

	return nil
}

func isInsufficient(reason string) bool {
	return strings.Contains(strings.ToLower(reason), "insufficient")
}
