package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	domainauth "rigshare/internal/domain/auth"
	domainuser "rigshare/internal/domain/user"
	"rigshare/internal/infra/storage/memory"
)

type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "h:" + p, nil }
func (plainHasher) Compare(hash, p string) error {
	if hash != "h:"+p {
		return errors.New("mismatch")
	}
	return nil
}

type seqTokens struct{ n int }

func (s *seqTokens) NewToken() (string, error) {
	s.n++
	return "tok-" + string(rune('a'+s.n)), nil
}

func newService() *Service {
	return &Service{
		Users:     memory.NewUserRepository(),
		Sessions:  memory.NewSessionStore(),
		Passwords: plainHasher{},
		Tokens:    &seqTokens{},
	}
}

func TestRegisterLoginResolveLogout(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	reg, err := svc.Register(ctx, RegisterParams{Email: " Host@Example.com ", Name: "Hana", Password: "secret-pass", Host: true})
	require.NoError(t, err)
	require.Equal(t, "host@example.com", reg.User.Email)
	require.Equal(t, []domainuser.Role{domainuser.RoleRenter, domainuser.RoleHost}, reg.User.Roles)

	_, err = svc.Register(ctx, RegisterParams{Email: "host@example.com", Name: "Other", Password: "secret-pass"})
	require.ErrorIs(t, err, domainuser.ErrEmailAlreadyUsed)

	_, err = svc.Login(ctx, LoginParams{Email: "host@example.com", Password: "wrong-pass"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	login, err := svc.Login(ctx, LoginParams{Email: "HOST@example.com", Password: "secret-pass"})
	require.NoError(t, err)
	require.NotEqual(t, reg.Token, login.Token)

	p, err := svc.Resolve(ctx, login.Token)
	require.NoError(t, err)
	actor := p.Actor()
	require.Equal(t, string(reg.User.ID), actor.ID)
	require.True(t, actor.Has(domainuser.RoleHost))

	require.NoError(t, svc.Logout(ctx, login.Token))
	_, err = svc.Resolve(ctx, login.Token)
	require.ErrorIs(t, err, domainauth.ErrSessionNotFound)
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	_, err := newService().Register(context.Background(), RegisterParams{Email: "a@b.c", Name: "A", Password: "short"})
	require.ErrorIs(t, err, ErrPasswordTooShort)
}

func TestBlockedUserLosesSessions(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	reg, err := svc.Register(ctx, RegisterParams{Email: "a@b.c", Name: "A", Password: "long-enough"})
	require.NoError(t, err)

	reg.User.Blocked = true
	require.NoError(t, svc.Users.Save(ctx, reg.User))

	_, err = svc.Resolve(ctx, reg.Token)
	require.ErrorIs(t, err, ErrUserBlocked)
	_, err = svc.Sessions.Get(ctx, domainauth.Token(reg.Token))
	require.ErrorIs(t, err, domainauth.ErrSessionNotFound)
}
