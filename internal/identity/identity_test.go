package identity

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"school_bus/internal/apperr"
)

type fakeAuth struct {
	createErr error
	created   *auth.UserToCreate
	byPhone   map[string]string
}

func (f *fakeAuth) CreateUser(_ context.Context, u *auth.UserToCreate) (*auth.UserRecord, error) {
	f.created = u
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &auth.UserRecord{UserInfo: &auth.UserInfo{UID: "new-uid"}}, nil
}

func (f *fakeAuth) GetUserByPhoneNumber(_ context.Context, phone string) (*auth.UserRecord, error) {
	uid, ok := f.byPhone[phone]
	if !ok {
		return nil, errors.New("no user")
	}
	return &auth.UserRecord{UserInfo: &auth.UserInfo{UID: uid}}, nil
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in, cc, want string
	}{
		{"98765 43210", "+91", "+919876543210"},
		{"098765-43210", "91", "+919876543210"},
		{"+1 (555) 010-9999", "+91", "+15550109999"},
		{"", "+91", ""},
		{"n/a", "+91", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.in, tt.cc))
		})
	}
}

func TestFirebase_CreatesUser(t *testing.T) {
	fa := &fakeAuth{}
	f := &Firebase{client: fa, countryCode: "+91"}

	uid, err := f.EnsureIdentity(context.Background(), "R-101", "9876543210")
	require.NoError(t, err)
	assert.Equal(t, "new-uid", uid)
	assert.NotNil(t, fa.created)
}

func TestFirebase_UpstreamFailure(t *testing.T) {
	f := &Firebase{client: &fakeAuth{createErr: errors.New("boom")}, countryCode: "+91"}

	_, err := f.EnsureIdentity(context.Background(), "R-101", "")
	assert.ErrorIs(t, err, apperr.ErrUpstream)
}

func TestStatic(t *testing.T) {
	uid, err := Static{}.EnsureIdentity(context.Background(), "DL-9", "123")
	require.NoError(t, err)
	assert.Equal(t, "DL-9", uid)
}
