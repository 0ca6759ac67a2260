package imap

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/codewatch/internal/enum"
	apperrors "github.com/customeros/codewatch/internal/errors"
	"github.com/customeros/codewatch/services/imap/imaptest"
)

func TestCheckAccount(t *testing.T) {
	conn := imaptest.NewConn()
	conn.AddMessage(imaptest.Message(imaptest.MessageSpec{UID: 1, Subject: "Your Netflix sign-in code", Text: "Enter this code to sign in: 8423"}))
	conn.AddMessage(imaptest.Message(imaptest.MessageSpec{UID: 2, Subject: "New arrivals this week", Text: "Watch the latest releases."}))
	conn.RawIDs = []uint32{1, 2}
	dialer := imaptest.NewDialer()
	dialer.Set(testAccount.Address, conn)

	result := CheckAccount(context.Background(), testAccount, testDeps(dialer), 7)

	require.NoError(t, result.Err)
	assert.True(t, result.Connected)
	assert.Equal(t, 2, result.Found)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "8423", result.Records[0].Payload)
	assert.Equal(t, 1, conn.LogoutCalls())
}

func TestCheckAccount_AuthFailure(t *testing.T) {
	dialer := imaptest.NewDialer()
	dialer.FailWith(testAccount.Address, apperrors.NewAuthError(testAccount.Address, errors.New("invalid credentials")))

	result := CheckAccount(context.Background(), testAccount, testDeps(dialer), 7)

	assert.False(t, result.Connected)
	assert.ErrorIs(t, result.Err, apperrors.ErrAuth)
}

func TestInspect(t *testing.T) {
	msg := imaptest.Message(imaptest.MessageSpec{UID: 1, Subject: "Your Netflix sign-in code", Text: "Enter this code to sign in: 8423"})

	inspection, err := Inspect(msg.Body, testDeps(imaptest.NewDialer()))

	require.NoError(t, err)
	assert.Equal(t, enum.CategorySignInCode, inspection.Match.Category)
	assert.NotEmpty(t, inspection.Match.Reason)
	assert.Equal(t, "8423", inspection.Payload)
	assert.Equal(t, "Your Netflix sign-in code", inspection.Message.Subject)
}

func TestInspect_EmptyFile(t *testing.T) {
	_, err := Inspect(nil, testDeps(imaptest.NewDialer()))

	assert.ErrorIs(t, err, apperrors.ErrParse)
}
