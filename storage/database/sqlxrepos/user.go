package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/classsphere/backend/core"
	"github.com/classsphere/backend/core/user"
)

type dbUser struct {
	ID           string      `db:"id"`
	Name         null.String `db:"name"`
	Username     null.String `db:"username"`
	Email        null.String `db:"email"`
	Role         string      `db:"role"`
	IsActive     null.Bool   `db:"is_active"`
	IsVerified   bool        `db:"is_verified"`
	PasswordHash null.Bytes  `db:"password_hash"`
	CreatedAt    null.Time   `db:"created_at"`
	UpdatedAt    null.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

func (r dbUser) toCore() user.User {
	return user.User{
		ID:           r.ID,
		Name:         r.Name.String,
		Username:     r.Username.String,
		Email:        r.Email.String,
		Role:         r.Role,
		IsActive:     r.IsActive.Ptr(),
		IsVerified:   r.IsVerified,
		PasswordHash: r.PasswordHash.Bytes,
		CreatedAt:    r.CreatedAt.Time,
		UpdatedAt:    r.UpdatedAt.Time,
		LastLogin:    r.LastLogin.Time,
	}
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	query := `SELECT username, email FROM "user" WHERE (username = ? OR email = ?)`
	args := []interface{}{username, email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		query += ` AND id NOT IN (?)`
		var err error
		query, args, err = sqlx.In(query, username, email, ids)
		if err != nil {
			return errors.Wrap(err, "expanding query")
		}
	}

	var rows []dbUser
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, r := range rows {
		if r.Username.String == username {
			return user.ErrUsernameExists
		}
	}
	if len(rows) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO "user" (id, name, username, email, role, is_active, is_verified, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		usr.ID,
		null.NewString(usr.Name, usr.Name != ""),
		null.NewString(usr.Username, usr.Username != ""),
		null.NewString(usr.Email, usr.Email != ""),
		usr.Role,
		null.BoolFromPtr(usr.IsActive),
		usr.IsVerified,
		null.BytesFrom(usr.PasswordHash),
		null.NewTime(usr.CreatedAt.UTC(), !usr.CreatedAt.IsZero()),
		null.NewTime(usr.UpdatedAt.UTC(), !usr.UpdatedAt.IsZero()),
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) QueryAllUsers(ctx context.Context) ([]user.User, error) {
	var rows []dbUser
	err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM "user" ORDER BY created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return toCoreSlice(rows), nil
}

func toCoreSlice(rows []dbUser) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toCore())
	}
	return users
}

func (repo userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	var row dbUser
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM "user" WHERE id = $1`, id); err != nil {
		return user.User{}, trapNoRowsErr(err, "getting user by ID")
	}
	return row.toCore(), nil
}

func (repo userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	var row dbUser
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM "user" WHERE email = $1`, email); err != nil {
		return user.User{}, trapNoRowsErr(err, "getting user by email")
	}
	return row.toCore(), nil
}

func (repo userRepository) GetUserByUsernameOrEmail(ctx context.Context, uname string) (user.User, error) {
	var row dbUser
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM "user" WHERE username = $1 OR email = $1`, uname)
	if err != nil {
		return user.User{}, trapNoRowsErr(err, "getting user by username or email")
	}
	return row.toCore(), nil
}

func (repo userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	var conds []string
	var args []interface{}

	if filter.Search != "" {
		conds = append(conds, `(name ILIKE ? OR username ILIKE ? OR email ILIKE ?)`)
		like := "%" + filter.Search + "%"
		args = append(args, like, like, like)
	}
	if filter.Role != "" {
		conds = append(conds, `role = ?`)
		args = append(args, filter.Role)
	}
	if filter.IsActive != nil {
		conds = append(conds, `is_active = ?`)
		args = append(args, *filter.IsActive)
	}
	if !filter.CreatedFrom.IsZero() {
		conds = append(conds, `created_at >= ?`)
		args = append(args, filter.CreatedFrom.UTC())
	}
	if !filter.CreatedTo.IsZero() {
		conds = append(conds, `created_at <= ?`)
		args = append(args, filter.CreatedTo.UTC())
	}

	query := `SELECT * FROM "user"`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	if len(ordering) > 0 {
		ords := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			ords = append(ords, ord.String())
		}
		query += ` ORDER BY ` + strings.Join(ords, ", ")
	} else {
		query += ` ORDER BY created_at DESC`
	}

	var rows []dbUser
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	return toCoreSlice(rows), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	sets := []string{`updated_at = now()`}
	var args []interface{}

	add := func(col string, val interface{}) {
		args = append(args, val)
		sets = append(sets, col+" = ?")
	}
	if usr.Name != "" {
		add("name", usr.Name)
	}
	if usr.Username != "" {
		add("username", usr.Username)
	}
	if usr.Email != "" {
		add("email", usr.Email)
	}
	if usr.Role != "" {
		add("role", usr.Role)
	}
	if len(usr.PasswordHash) > 0 {
		add("password_hash", usr.PasswordHash)
	}
	if !usr.LastLogin.IsZero() {
		add("last_login", usr.LastLogin.UTC())
	}
	if isActive != nil {
		add("is_active", *isActive)
	}
	args = append(args, usr.ID)

	query := repo.db.Rebind(`UPDATE "user" SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`)
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUserByID(ctx, usr.ID)
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM "user" WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "expanding query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}

type dbPendingSignup struct {
	Email        string    `db:"email"`
	Code         string    `db:"code"`
	Name         string    `db:"name"`
	Username     string    `db:"username"`
	Role         string    `db:"role"`
	PasswordHash []byte    `db:"password_hash"`
	CreatedAt    null.Time `db:"created_at"`
}

func (repo userRepository) UpsertPendingSignup(ctx context.Context, ps user.PendingSignup) (user.PendingSignup, error) {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO pending_signup (email, code, name, username, role, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (email) DO UPDATE
		 SET code = EXCLUDED.code, name = EXCLUDED.name, username = EXCLUDED.username,
		     role = EXCLUDED.role, password_hash = EXCLUDED.password_hash, created_at = EXCLUDED.created_at`,
		ps.Email, ps.Code, ps.Name, ps.Username, ps.Role, ps.PasswordHash, ps.CreatedAt.UTC(),
	)
	if err != nil {
		return user.PendingSignup{}, errors.Wrap(err, "upserting pending signup")
	}
	return ps, nil
}

func (repo userRepository) GetPendingSignup(ctx context.Context, email string) (user.PendingSignup, error) {
	var row dbPendingSignup
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM pending_signup WHERE email = $1`, email)
	if err != nil {
		if err == sql.ErrNoRows {
			return user.PendingSignup{}, user.ErrOTPNotFound
		}
		return user.PendingSignup{}, errors.Wrap(err, "getting pending signup")
	}
	return user.PendingSignup{
		Email:        row.Email,
		Code:         row.Code,
		Name:         row.Name,
		Username:     row.Username,
		Role:         row.Role,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt.Time,
	}, nil
}

func (repo userRepository) DeletePendingSignup(ctx context.Context, email string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM pending_signup WHERE email = $1`, email)
	return errors.Wrap(err, "deleting pending signup")
}
