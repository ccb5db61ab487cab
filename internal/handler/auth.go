package handler

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/limited-claim/internal/clock"
	"github.com/Shivanand-hulikatti/limited-claim/internal/model"
)

// Request headers carrying the caller's identity proof.
const (
	HeaderPrincipal = "X-Principal"
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"
)

type principalKey struct{}

// PrincipalFrom returns the authenticated principal attached by Authenticator.
func PrincipalFrom(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(principalKey{}).(string)
	return p, ok && p != ""
}

// WithPrincipal attaches an already-authenticated principal to ctx.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// Authenticator verifies that the caller holds the private key of the
// ed25519 public key named in X-Principal (hex). X-Signature is the hex
// signature of SigningPayload over the request method, path, X-Timestamp
// and body.
type Authenticator struct {
	clock    clock.Clock
	skew     time.Duration
	insecure bool
}

// NewAuthenticator constructs an Authenticator. With insecure set the
// X-Principal header is trusted as is; use only in development.
func NewAuthenticator(clk clock.Clock, skew time.Duration, insecure bool) *Authenticator {
	return &Authenticator{clock: clk, skew: skew, insecure: insecure}
}

// SigningPayload is the byte string a client signs for one request:
// METHOD, path, unix timestamp and the hex SHA-256 of the body, one per line.
// An empty body hashes like any other.
func SigningPayload(method, path string, timestamp int64, body []byte) []byte {
	sum := sha256.Sum256(body)
	return []byte(method + "\n" + path + "\n" + strconv.FormatInt(timestamp, 10) + "\n" + hex.EncodeToString(sum[:]))
}

// Sign produces the X-Principal and X-Signature header values for a request.
func Sign(key ed25519.PrivateKey, method, path string, timestamp int64, body []byte) (principal, signature string) {
	pub := key.Public().(ed25519.PublicKey)
	sig := ed25519.Sign(key, SigningPayload(method, path, timestamp, body))
	return hex.EncodeToString(pub), hex.EncodeToString(sig)
}

// Middleware rejects requests without a valid identity proof.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if !a.insecure && r.Body != nil {
			b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			if err != nil {
				writeError(w, http.StatusBadRequest, model.CodeInvalidRequest, "unreadable request body: "+err.Error())
				return
			}
			body = b
			r.Body = io.NopCloser(bytes.NewReader(body))
		}
		principal, reason := a.verify(r, body)
		if reason != "" {
			writeError(w, http.StatusUnauthorized, model.CodeUnauthorized, reason)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// verify returns the principal, or a non-empty reason the proof was rejected.
func (a *Authenticator) verify(r *http.Request, body []byte) (string, string) {
	principal := strings.TrimSpace(r.Header.Get(HeaderPrincipal))
	if principal == "" {
		return "", "missing " + HeaderPrincipal
	}
	if a.insecure {
		return principal, ""
	}

	pub, err := hex.DecodeString(principal)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return "", HeaderPrincipal + " must be a hex ed25519 public key"
	}

	ts, err := strconv.ParseInt(r.Header.Get(HeaderTimestamp), 10, 64)
	if err != nil {
		return "", "missing or invalid " + HeaderTimestamp
	}
	drift := a.clock.Now().Sub(time.Unix(ts, 0))
	if drift < 0 {
		drift = -drift
	}
	if drift > a.skew {
		return "", HeaderTimestamp + " outside allowed window"
	}

	sig, err := hex.DecodeString(r.Header.Get(HeaderSignature))
	if err != nil || len(sig) != ed25519.SignatureSize {
		return "", "missing or invalid " + HeaderSignature
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), SigningPayload(r.Method, r.URL.Path, ts, body), sig) {
		return "", "signature verification failed"
	}
	return strings.ToLower(principal), ""
}
