package authstate_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	authstate "github.com/loudkitchen/go-authstate"
)

func TestIsEmailNotConfirmedError(t *testing.T) {
	assert.True(t, authstate.IsEmailNotConfirmedError(errors.New("Email not confirmed")))
	assert.True(t, authstate.IsEmailNotConfirmedError(fmt.Errorf("sign in: %w", errors.New("email not confirmed"))))
	assert.True(t, authstate.IsEmailNotConfirmedError(authstate.ErrEmailNotConfirmed))

	assert.False(t, authstate.IsEmailNotConfirmedError(nil))
	assert.False(t, authstate.IsEmailNotConfirmedError(errors.New("invalid login credentials")))
}

func TestIsInvalidCredentialsError(t *testing.T) {
	assert.True(t, authstate.IsInvalidCredentialsError(errors.New("Invalid login credentials")))
	assert.True(t, authstate.IsInvalidCredentialsError(errors.New("invalid_grant: bad password")))

	assert.False(t, authstate.IsInvalidCredentialsError(nil))
	assert.False(t, authstate.IsInvalidCredentialsError(errors.New("email not confirmed")))
}
