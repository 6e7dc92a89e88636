// Package identity registers students and drivers with the external sign-in
// provider so they can log in to the mobile apps.
package identity

import (
	"context"
	"strings"
	"unicode"

	"firebase.google.com/go/v4/auth"
	"github.com/sirupsen/logrus"

	"school_bus/internal/apperr"
)

// Provider creates (or finds) the sign-in identity for uid. It returns the uid
// the provider knows the person by.
type Provider interface {
	EnsureIdentity(ctx context.Context, uid, phone string) (string, error)
}

// Static is used when no provider is configured; the uid is returned as is.
type Static struct{}

func (Static) EnsureIdentity(_ context.Context, uid, _ string) (string, error) {
	return uid, nil
}

// authClient is the part of *auth.Client the Firebase provider needs.
type authClient interface {
	CreateUser(ctx context.Context, user *auth.UserToCreate) (*auth.UserRecord, error)
	GetUserByPhoneNumber(ctx context.Context, phone string) (*auth.UserRecord, error)
}

// Firebase registers phone-number identities with Firebase Auth.
type Firebase struct {
	client      authClient
	countryCode string
}

func NewFirebase(client *auth.Client, countryCode string) *Firebase {
	return &Firebase{client: client, countryCode: countryCode}
}

// EnsureIdentity creates a Firebase user with the given uid and phone. An
// existing uid is accepted; an existing phone number resolves to the uid
// that already owns it.
func (f *Firebase) EnsureIdentity(ctx context.Context, uid, phone string) (string, error) {
	user := (&auth.UserToCreate{}).UID(uid)
	e164 := NormalizePhone(phone, f.countryCode)
	if e164 != "" {
		user = user.PhoneNumber(e164)
	}

	rec, err := f.client.CreateUser(ctx, user)
	switch {
	case err == nil:
		return rec.UID, nil
	case auth.IsUIDAlreadyExists(err):
		return uid, nil
	case auth.IsPhoneNumberAlreadyExists(err):
		existing, lookupErr := f.client.GetUserByPhoneNumber(ctx, e164)
		if lookupErr != nil {
			return "", apperr.Upstream(lookupErr, "could not look up identity for %s", e164)
		}
		logrus.WithFields(logrus.Fields{
			"uid":      uid,
			"existing": existing.UID,
		}).Info("Phone number already registered, reusing identity")
		return existing.UID, nil
	default:
		return "", apperr.Upstream(err, "could not create identity %q", uid)
	}
}

// NormalizePhone returns phone in E.164 form. Numbers without a leading "+"
// get countryCode prepended after any trunk zero is dropped.
func NormalizePhone(phone, countryCode string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		if unicode.IsDigit(r) || (i == 0 && r == '+') {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" || digits == "+" {
		return ""
	}
	if strings.HasPrefix(digits, "+") {
		return digits
	}
	digits = strings.TrimLeft(digits, "0")
	cc := "+" + strings.TrimLeft(strings.TrimSpace(countryCode), "+")
	return cc + digits
}
