package cex

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"perparb/internal/domain"
)

func TestClient_SignedHeaders(t *testing.T) {
	var gotKey, gotSign, gotTS, gotSub, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("PERP-KEY")
		gotSign = r.Header.Get("PERP-SIGN")
		gotTS = r.Header.Get("PERP-TS")
		gotSub = r.Header.Get("PERP-SUBACCOUNT")
		gotPath = r.URL.Path
		io.WriteString(w, `{"success":true,"result":[]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key-id", "topsecret", "sub1")
	if _, err := c.ListMarkets(context.Background()); err != nil {
		t.Fatalf("ListMarkets() error = %v", err)
	}

	if gotKey != "key-id" {
		t.Errorf("PERP-KEY = %q, want %q", gotKey, "key-id")
	}
	if gotSub != "sub1" {
		t.Errorf("PERP-SUBACCOUNT = %q, want %q", gotSub, "sub1")
	}
	if gotPath != "/markets" {
		t.Errorf("path = %q, want /markets", gotPath)
	}

	// The signature must be HMAC-SHA256(ts+method+path) under the secret.
	mac := hmac.New(sha256.New, []byte("topsecret"))
	mac.Write([]byte(gotTS + http.MethodGet + "/markets"))
	if want := hex.EncodeToString(mac.Sum(nil)); gotSign != want {
		t.Errorf("PERP-SIGN = %q, want %q", gotSign, want)
	}
}

func TestClient_GetOrderbook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("depth"); got != "100" {
			t.Errorf("depth = %q, want 100", got)
		}
		io.WriteString(w, `{"success":true,"result":{"asks":[[100.5,2],[101,1]],"bids":[[99.5,3]]}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "s", "")
	book, err := c.GetOrderbook(context.Background(), "BTC-PERP", 0)
	if err != nil {
		t.Fatalf("GetOrderbook() error = %v", err)
	}
	if len(book.Asks) != 2 || len(book.Bids) != 1 {
		t.Fatalf("GetOrderbook() = %+v, want 2 asks / 1 bid", book)
	}
	if book.Asks[0][0] != 100.5 || book.Bids[0][0] != 99.5 {
		t.Errorf("best levels = %v / %v, want 100.5 / 99.5", book.Asks[0], book.Bids[0])
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"Rejected", http.StatusBadRequest, `{"success":false,"error":"size too small"}`, domain.ErrVenueRejected},
		{"NotFound", http.StatusNotFound, `{"success":false,"error":"no such market"}`, domain.ErrNotFound},
		{"ServerError", http.StatusInternalServerError, `{}`, domain.ErrTransport},
		{"EnvelopeFailure", http.StatusOK, `{"success":false,"error":"rejected"}`, domain.ErrVenueRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "k", "s", "")
			err := c.PlaceOrder(context.Background(), PlaceOrderRequest{Market: "BTC-PERP", Side: "buy", Size: 1, Price: 10, Type: "limit"})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("PlaceOrder() error = %v, want errors.Is %v", err, tt.wantErr)
			}
		})
	}
}
