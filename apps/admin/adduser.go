package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/classsphere/backend/core"
	"github.com/classsphere/backend/core/user"
)

// addUser updates or creates an active, verified admin user.
func (cli *commandLine) addUser(name, uname, email, pwd string) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(ctx, uname)
	if errors.Cause(err) == user.ErrNotFound {
		usr, err = cli.usrRepo.GetUserByEmail(ctx, email)
	}
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Name:       name,
			Username:   uname,
			Email:      email,
			Role:       user.RoleAdmin,
			IsVerified: true,
			CreatedAt:  user.NowFunc().UTC(),
		}
		usr.SetActive(true)
		if err := usr.SetPassword(pwd); err != nil {
			return err
		}
		_, err = cli.usrRepo.CreateUser(ctx, usr)
		return err
	}

	usr.Role = user.RoleAdmin
	if name != "" {
		usr.Name = name
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.UpdatedAt = user.NowFunc().UTC()
	active := true
	_, err = cli.usrRepo.UpdateUser(ctx, usr, &active)
	return err
}
