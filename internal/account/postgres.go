package account

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"opsdeck.io/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const accountColumns = `id, first_name, last_name, email, password_hash, role, active, assigned_orders, created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, a *Account) error {
	if a.ID == "" {
		a.ID = ids.New()
	}
	if a.Role == "" {
		a.Role = RoleUser
	}
	orders, _ := json.Marshal(a.AssignedOrders)
	_, err := s.db.ExecContext(ctx,
		`insert into accounts(id, first_name, last_name, email, password_hash, role, active, assigned_orders)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.FirstName, a.LastName, a.Email, a.PasswordHash, string(a.Role), a.Active, orders,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (s *PGStore) Find(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where id=$1`, id)
	return scanAccount(row)
}

func (s *PGStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where email=$1`, email)
	return scanAccount(row)
}

func (s *PGStore) List(ctx context.Context) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+accountColumns+` from accounts order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (s *PGStore) SetActive(ctx context.Context, id string, active bool) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`update accounts set active=$2, updated_at=now() where id=$1 returning `+accountColumns, id, active)
	return scanAccount(row)
}

func (s *PGStore) SetAssignedOrders(ctx context.Context, id string, orderIDs []string) (*Account, error) {
	orders, _ := json.Marshal(orderIDs)
	row := s.db.QueryRowContext(ctx,
		`update accounts set assigned_orders=$2, updated_at=now() where id=$1 returning `+accountColumns, id, orders)
	return scanAccount(row)
}

func (s *PGStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts set password_hash=$2, updated_at=now() where id=$1`, id, passwordHash)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var (
		a      Account
		role   string
		orders []byte
	)
	err := row.Scan(&a.ID, &a.FirstName, &a.LastName, &a.Email, &a.PasswordHash,
		&role, &a.Active, &orders, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.Role = Role(role)
	_ = json.Unmarshal(orders, &a.AssignedOrders)
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
