package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/stylist/internal/client/models"
)

func (a *App) Register(ctx context.Context) error {
	email, err := GetSimpleText(a.reader, "Email", a.out)
	if err != nil {
		return err
	}
	name, err := GetSimpleText(a.reader, "Display name (optional)", a.out)
	if err != nil {
		return err
	}
	password, err := GetPassword(a.out)
	if err != nil {
		return err
	}

	s, err := a.auth.Register(ctx, email, password, name)
	if err != nil {
		return err
	}
	a.welcome(s)
	return nil
}

func (a *App) Login(ctx context.Context) error {
	email, err := GetSimpleText(a.reader, "Email", a.out)
	if err != nil {
		return err
	}
	password, err := GetPassword(a.out)
	if err != nil {
		return err
	}

	s, err := a.auth.Login(ctx, email, password)
	if err != nil {
		return err
	}
	a.welcome(s)
	return nil
}

func (a *App) Guest(ctx context.Context) error {
	s, err := a.auth.Guest(ctx, "")
	if err != nil {
		return err
	}
	a.welcome(s)
	return nil
}

func (a *App) Status(ctx context.Context) error {
	p, err := a.auth.Status(ctx)
	if err != nil {
		return err
	}
	who := p.Account.DisplayName
	if p.Account.Email != nil {
		who = fmt.Sprintf("%s <%s>", who, *p.Account.Email)
	}
	if p.Account.Guest {
		who += " (guest)"
	}
	fmt.Fprintln(a.out, who)
	fmt.Fprintln(a.out, formatEntitlement(p.Entitlement))
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) welcome(s *models.Session) {
	fmt.Fprintf(a.out, "Signed in as %s\n", s.Account.DisplayName)
	fmt.Fprintln(a.out, formatEntitlement(s.Entitlement))
}
