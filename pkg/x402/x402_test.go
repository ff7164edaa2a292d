package x402

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPayload() *PaymentPayload {
	return &PaymentPayload{
		X402Version: Version,
		Scheme:      SchemeExact,
		Network:     "base-sepolia",
		Payload:     json.RawMessage(`{"signature":"0xsig","authorization":{"value":"9990000"}}`),
	}
}

func TestPaymentHeaderRoundTrip(t *testing.T) {
	header, err := EncodePaymentHeader(testPayload())
	require.NoError(t, err)

	decoded, err := DecodePaymentHeader(header)
	require.NoError(t, err)
	assert.Equal(t, SchemeExact, decoded.Scheme)
	assert.Equal(t, "base-sepolia", decoded.Network)
	assert.JSONEq(t, string(testPayload().Payload), string(decoded.Payload))
}

func TestDecodePaymentHeaderAcceptsURLEncoding(t *testing.T) {
	raw, err := json.Marshal(testPayload())
	require.NoError(t, err)

	decoded, err := DecodePaymentHeader(base64.URLEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, SchemeExact, decoded.Scheme)
}

func TestDecodePaymentHeaderRejectsMalformed(t *testing.T) {
	tests := map[string]string{
		"empty":          "   ",
		"not base64":     "%%%",
		"not json":       base64.StdEncoding.EncodeToString([]byte("hello")),
		"missing scheme": base64.StdEncoding.EncodeToString([]byte(`{"payload":{"a":1}}`)),
		"missing body":   base64.StdEncoding.EncodeToString([]byte(`{"scheme":"exact"}`)),
	}

	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodePaymentHeader(value)
			assert.ErrorIs(t, err, ErrMalformedPayment)
		})
	}
}

func TestEncodeSettleResponse(t *testing.T) {
	header, err := EncodeSettleResponse(&SettleResponse{Success: true, Transaction: "0xabc", Network: "base-sepolia"})
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(header)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"transaction":"0xabc","network":"base-sepolia"}`, string(raw))
}

func TestClientVerifyAndSettle(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		assert.Equal(t, "Bearer facilitator-key", r.Header.Get("Authorization"))

		var body facilitatorRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, Version, body.X402Version)
		assert.Equal(t, "9990000", body.PaymentRequirements.MaxAmountRequired)
		assert.NotNil(t, body.PaymentPayload)

		switch r.URL.Path {
		case "/verify":
			json.NewEncoder(w).Encode(VerifyResponse{IsValid: true, Payer: "0xpayer"})
		case "/settle":
			json.NewEncoder(w).Encode(SettleResponse{Success: true, Transaction: "0xhash", Network: "base-sepolia"})
		}
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "facilitator-key", 5*time.Second)
	requirements := PaymentRequirements{Scheme: SchemeExact, MaxAmountRequired: "9990000"}

	verified, err := client.Verify(context.Background(), testPayload(), requirements)
	require.NoError(t, err)
	assert.True(t, verified.IsValid)
	assert.Equal(t, "0xpayer", verified.Payer)

	settled, err := client.Settle(context.Background(), testPayload(), requirements)
	require.NoError(t, err)
	assert.True(t, settled.Success)
	assert.Equal(t, "0xhash", settled.Transaction)

	assert.Equal(t, []string{"/verify", "/settle"}, paths)
}

func TestClientRejectionIsAnAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(VerifyResponse{IsValid: false, InvalidReason: "invalid_signature"})
	}))
	defer server.Close()

	verified, err := NewClient(server.URL, "", time.Second).Verify(context.Background(), testPayload(), PaymentRequirements{})
	require.NoError(t, err)
	assert.False(t, verified.IsValid)
	assert.Equal(t, "invalid_signature", verified.InvalidReason)
}

func TestClientUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	client := NewClient(server.URL, "", time.Second)
	_, err := client.Settle(context.Background(), testPayload(), PaymentRequirements{})
	assert.True(t, errors.Is(err, ErrFacilitatorUnavailable))

	server.Close()
	_, err = client.Verify(context.Background(), testPayload(), PaymentRequirements{})
	assert.True(t, errors.Is(err, ErrFacilitatorUnavailable))
}
