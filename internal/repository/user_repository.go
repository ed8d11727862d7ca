package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"botfactory/internal/entities"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *entities.User) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash, first_name, last_name, role, active)
		 VALUES ($1, $2, $3, $4, $5, $6, TRUE) RETURNING id, created_at`,
		user.Username, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.Role,
	).Scan(&user.ID, &user.CreatedAt)
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (*entities.User, error) {
	return r.scanOne(r.db.QueryRow(ctx, userSelect+" WHERE id = $1", id))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*entities.User, error) {
	return r.scanOne(r.db.QueryRow(ctx, userSelect+" WHERE username = $1", username))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entities.User, error) {
	return r.scanOne(r.db.QueryRow(ctx, userSelect+" WHERE email = $1", email))
}

const userSelect = `SELECT id, username, email, password_hash, first_name, last_name, role, active, created_at FROM users`

func (r *UserRepository) scanOne(row pgx.Row) (*entities.User, error) {
	var user entities.User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.FirstName, &user.LastName, &user.Role, &user.Active, &user.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) List(ctx context.Context) ([]entities.User, error) {
	rows, err := r.db.Query(ctx, userSelect+" ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []entities.User{}
	for rows.Next() {
		var user entities.User
		if err := rows.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash,
			&user.FirstName, &user.LastName, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepository) SetActive(ctx context.Context, id int, active bool) error {
	_, err := r.db.Exec(ctx,
		"UPDATE users SET active = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2", active, id)
	return err
}

func (r *UserRepository) Count(ctx context.Context) (total, active, admins int, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE active),
		       COUNT(*) FILTER (WHERE role = 'admin')
		FROM users`).Scan(&total, &active, &admins)
	return total, active, admins, err
}
