package services

import (
	"time"

	"keytrack/apperr"

	"github.com/golang-jwt/jwt/v5"
)

const (
	QRIntentRequest = "request" // take on behalf of the subject
	QRIntentReturn  = "return"
)

// QRPayload is the decoded content of a scanned code: an intent, one or more
// key references, the subject user it acts for, and a nonce that doubles as
// the audit correlation id.
type QRPayload struct {
	Intent     string
	KeyNumbers []string
	SubjectID  string
	Nonce      string
	IssuedAt   time.Time
}

type qrClaims struct {
	Intent     string   `json:"intent"`
	KeyNumbers []string `json:"keys"`
	SubjectID  string   `json:"subjectId"`
	Nonce      string   `json:"nonce"`
	jwt.RegisteredClaims
}

// SignQRPayload mints the token embedded in a QR code.
func SignQRPayload(p QRPayload, secret []byte) (string, error) {
	claims := qrClaims{
		Intent:     p.Intent,
		KeyNumbers: p.KeyNumbers,
		SubjectID:  p.SubjectID,
		Nonce:      p.Nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(p.IssuedAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseQRPayload verifies the signature and the required fields, then applies
// the freshness window: |now − issuedAt| must not exceed maxAge. Clock skew
// in either direction counts against the window, there is no leeway.
func ParseQRPayload(raw string, secret []byte, now time.Time, maxAge time.Duration) (*QRPayload, error) {
	var claims qrClaims
	tok, err := jwt.ParseWithClaims(raw, &claims,
		func(t *jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithoutClaimsValidation(), // freshness is checked below, both directions
	)
	if err != nil || !tok.Valid {
		return nil, apperr.E(apperr.KindValidation, "malformed or badly signed QR payload")
	}

	if claims.Intent != QRIntentRequest && claims.Intent != QRIntentReturn {
		return nil, apperr.E(apperr.KindValidation, "QR payload has unknown intent %q", claims.Intent)
	}
	if len(claims.KeyNumbers) == 0 {
		return nil, apperr.E(apperr.KindValidation, "QR payload names no keys")
	}
	if claims.SubjectID == "" {
		return nil, apperr.E(apperr.KindValidation, "QR payload names no subject user")
	}
	if claims.Nonce == "" {
		return nil, apperr.E(apperr.KindValidation, "QR payload has no nonce")
	}
	if claims.IssuedAt == nil {
		return nil, apperr.E(apperr.KindValidation, "QR payload has no issue timestamp")
	}

	age := now.Sub(claims.IssuedAt.Time)
	if age < 0 {
		age = -age
	}
	if age > maxAge {
		return nil, apperr.E(apperr.KindValidation, "QR payload is stale")
	}

	return &QRPayload{
		Intent:     claims.Intent,
		KeyNumbers: claims.KeyNumbers,
		SubjectID:  claims.SubjectID,
		Nonce:      claims.Nonce,
		IssuedAt:   claims.IssuedAt.Time,
	}, nil
}
