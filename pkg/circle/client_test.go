package circle

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEntitySecret = "8f3c0c1a5b6d7e8f9a0b1c2d3e4f5a6b7c8d9e0f1a2b3c4d5e6f7a8b9c0d1e2f"

type fakeCircle struct {
	mu sync.Mutex

	key        *rsa.PrivateKey
	states     []Transaction
	polls      int
	keyFetches int
	transfers  []TransferRequest
}

func newFakeCircle(t *testing.T, states ...Transaction) *fakeCircle {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &fakeCircle{key: key, states: states}
}

func (f *fakeCircle) publicKeyPEM(t *testing.T) string {
	t.Helper()

	der, err := x509.MarshalPKIXPublicKey(&f.key.PublicKey)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func (f *fakeCircle) server(t *testing.T) *httptest.Server {
	pemKey := f.publicKeyPEM(t)

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		assert.Equal(t, "Bearer circle-key", r.Header.Get("Authorization"))

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/w3s/config/entity/publicKey":
			f.keyFetches++
			var resp publicKeyResponse
			resp.Data.PublicKey = pemKey
			json.NewEncoder(w).Encode(resp)

		case r.Method == http.MethodPost && r.URL.Path == "/v1/w3s/developer/transactions/transfer":
			var req TransferRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			f.transfers = append(f.transfers, req)
			var resp createTransferResponse
			resp.Data.ID = "tx-1"
			resp.Data.State = StateInitiated
			json.NewEncoder(w).Encode(resp)

		case r.Method == http.MethodGet && r.URL.Path == "/v1/w3s/transactions/tx-1":
			idx := f.polls
			if idx >= len(f.states) {
				idx = len(f.states) - 1
			}
			f.polls++
			var resp getTransactionResponse
			resp.Data.Transaction = f.states[idx]
			json.NewEncoder(w).Encode(resp)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestClient(t *testing.T, baseURL, publicKeyPEM string) *Client {
	t.Helper()

	client, err := NewClient(baseURL, "circle-key", testEntitySecret, publicKeyPEM, 5*time.Second)
	require.NoError(t, err)
	client.PollInterval = 5 * time.Millisecond
	return client
}

func testTransfer() TransferRequest {
	return TransferRequest{
		IdempotencyKey:     "6f1c6f5e-0d56-5b7c-9a55-1e4f3c2b1a00",
		WalletID:           "wallet-1",
		DestinationAddress: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		Amounts:            []string{"9.99"},
	}
}

func TestTransferPollsUntilHash(t *testing.T) {
	fake := newFakeCircle(t,
		Transaction{State: StateQueued},
		Transaction{State: StateSent},
		Transaction{ID: "tx-1", State: StateComplete, TxHash: "0xhash"},
	)
	server := fake.server(t)
	defer server.Close()

	client := newTestClient(t, server.URL, "")
	tx, err := client.Transfer(context.Background(), testTransfer())
	require.NoError(t, err)

	assert.Equal(t, "0xhash", tx.TxHash)
	assert.Equal(t, "tx-1", tx.ID)
	assert.Equal(t, 3, fake.polls)
	assert.Equal(t, 1, fake.keyFetches)

	require.Len(t, fake.transfers, 1)
	sent := fake.transfers[0]
	assert.Equal(t, "MEDIUM", sent.FeeLevel)
	assert.Equal(t, "wallet-1", sent.WalletID)
	assert.Equal(t, []string{"9.99"}, sent.Amounts)

	ciphertext, err := base64.StdEncoding.DecodeString(sent.EntitySecretCiphertext)
	require.NoError(t, err)
	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, fake.key, ciphertext, nil)
	require.NoError(t, err)
	assert.Equal(t, client.entitySecret, plaintext)
}

func TestPublicKeyIsFetchedOnce(t *testing.T) {
	fake := newFakeCircle(t, Transaction{State: StateComplete, TxHash: "0xhash"})
	server := fake.server(t)
	defer server.Close()

	client := newTestClient(t, server.URL, "")
	for i := 0; i < 2; i++ {
		_, err := client.Transfer(context.Background(), testTransfer())
		require.NoError(t, err)
	}

	assert.Equal(t, 1, fake.keyFetches)
}

func TestConfiguredPublicKeySkipsFetch(t *testing.T) {
	fake := newFakeCircle(t, Transaction{State: StateComplete, TxHash: "0xhash"})
	server := fake.server(t)
	defer server.Close()

	client := newTestClient(t, server.URL, fake.publicKeyPEM(t))
	_, err := client.Transfer(context.Background(), testTransfer())
	require.NoError(t, err)

	assert.Zero(t, fake.keyFetches)
}

func TestTransferTerminalFailure(t *testing.T) {
	tests := []struct {
		name         string
		state        Transaction
		insufficient bool
	}{
		{"insufficient balance", Transaction{State: StateFailed, ErrorReason: "INSUFFICIENT_TOKEN"}, true},
		{"denied", Transaction{State: StateDenied, ErrorReason: "risk screening"}, false},
		{"cancelled", Transaction{State: StateCancelled}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeCircle(t, tt.state)
			server := fake.server(t)
			defer server.Close()

			_, err := newTestClient(t, server.URL, "").Transfer(context.Background(), testTransfer())
			require.Error(t, err)

			var failed *TransferFailedError
			require.True(t, errors.As(err, &failed))
			assert.Equal(t, "tx-1", failed.TransferID)
			assert.Equal(t, tt.state.State, failed.State)
			assert.Equal(t, tt.insufficient, errors.Is(err, ErrInsufficientFunds))
		})
	}
}

func TestTransferTimesOutWhilePending(t *testing.T) {
	fake := newFakeCircle(t, Transaction{State: StateQueued})
	server := fake.server(t)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(t, server.URL, "").Transfer(ctx, testTransfer())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAPIErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		target error
	}{
		{"server error", http.StatusInternalServerError, `{"code":-1,"message":"internal"}`, ErrUnavailable},
		{"rate limited", http.StatusTooManyRequests, `too many requests`, ErrUnavailable},
		{"insufficient", http.StatusBadRequest, `{"code":155201,"message":"Insufficient balance for transfer"}`, ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(t, server.URL, "").GetTransaction(context.Background(), "tx-1")
			assert.ErrorIs(t, err, tt.target)
		})
	}

	t.Run("client error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":2,"message":"invalid wallet id"}`))
		}))
		defer server.Close()

		_, err := newTestClient(t, server.URL, "").GetTransaction(context.Background(), "tx-1")
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		assert.Equal(t, 2, apiErr.Code)
		assert.NotErrorIs(t, err, ErrUnavailable)
		assert.NotErrorIs(t, err, ErrInsufficientFunds)
	})
}

func TestNewClientRejectsBadSecret(t *testing.T) {
	_, err := NewClient("https://api.circle.com", "key", "not-hex", "", time.Second)
	assert.Error(t, err)
}

func TestParsePublicKey(t *testing.T) {
	_, err := ParsePublicKey("not a key")
	assert.Error(t, err)

	fake := newFakeCircle(t)
	key, err := ParsePublicKey(fake.publicKeyPEM(t))
	require.NoError(t, err)
	assert.Equal(t, fake.key.PublicKey.N, key.N)
}
