// AngelaMos | 2026
// totp.go

package totp

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	period = 30
	skew   = 1
)

type Key struct {
	Secret string
	URI    string
}

// Authenticator generates and checks RFC 6238 codes: SHA1, six digits,
// thirty second steps, accepting one step of drift either side.
type Authenticator struct {
	issuer string
	now    func() time.Time
}

func New(issuer string) *Authenticator {
	return &Authenticator{issuer: issuer, now: time.Now}
}

func (a *Authenticator) SetClock(now func() time.Time) {
	a.now = now
}

func (a *Authenticator) GenerateSecret(label string) (*Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      a.issuer,
		AccountName: label,
		Period:      period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	return &Key{Secret: key.Secret(), URI: key.URL()}, nil
}

func (a *Authenticator) Verify(secret, code string) bool {
	return a.VerifyAt(secret, code, a.now())
}

func (a *Authenticator) VerifyAt(secret, code string, t time.Time) bool {
	if secret == "" || len(code) != 6 {
		return false
	}

	ok, err := totp.ValidateCustom(code, secret, t.UTC(), opts())
	return err == nil && ok
}

// CodeAt returns the code for t. Used by tests and tooling.
func (a *Authenticator) CodeAt(secret string, t time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, t.UTC(), opts())
	if err != nil {
		return "", fmt.Errorf("generate totp code: %w", err)
	}
	return code, nil
}

func opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    period,
		Skew:      skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}
