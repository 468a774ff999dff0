package main

import (
	"context"

	"github.com/trezcool/maoni/core"
	"github.com/trezcool/maoni/core/user"
)

// addSuperuser updates or creates a verified superuser account.
func (cli *commandLine) addSuperuser(name, email, pwd string) error {
	var usr user.User
	var err error
	ctx := context.Background()
	name = core.CleanString(name)
	email = core.CleanString(email, true /* lower */)

	if usr, err = cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email}); err != nil {
		if err != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Username: email,
			Email:    email,
		}
	}
	if name != "" {
		usr.Name = name
	}
	usr.IsStaff = true
	usr.IsSuperuser = true
	usr.IsVerified = true
	usr.CanCreateBatch = true
	usr.CanCreateSubject = true
	usr.CanCreateForm = true
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	if _, err := cli.usrRepo.UpdateOrCreateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}
