package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresClient struct {
	Pool *pgxpool.Pool
}

func NewPostgresClient(connString string) (*PostgresClient, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	// Pool configuration
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	client := &PostgresClient{Pool: pool}

	if err := client.Migrate(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return client, nil
}

func (p *PostgresClient) Migrate() error {
	ctx := context.Background()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			username VARCHAR(80) UNIQUE NOT NULL,
			email VARCHAR(120) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			first_name VARCHAR(100) DEFAULT '',
			last_name VARCHAR(100) DEFAULT '',
			role VARCHAR(20) DEFAULT 'user',
			active BOOLEAN DEFAULT TRUE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id SERIAL PRIMARY KEY,
			user_id INT UNIQUE NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			tier VARCHAR(20) NOT NULL DEFAULT 'free',
			max_bots INT NOT NULL DEFAULT 1,
			max_messages_per_month INT NOT NULL DEFAULT 100,
			messages_used INT NOT NULL DEFAULT 0,
			period_start TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			end_date TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS bots (
			id SERIAL PRIMARY KEY,
			user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name VARCHAR(100) NOT NULL,
			description TEXT DEFAULT '',
			telegram_token VARCHAR(255) DEFAULT '',
			telegram_username VARCHAR(100) DEFAULT '',
			system_prompt TEXT DEFAULT 'You are a helpful AI assistant.',
			status VARCHAR(20) NOT NULL DEFAULT 'draft',
			total_messages INT NOT NULL DEFAULT 0,
			total_users INT NOT NULL DEFAULT 0,
			last_activity TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS knowledge_entries (
			id SERIAL PRIMARY KEY,
			bot_id INT NOT NULL REFERENCES bots(id) ON DELETE CASCADE,
			title VARCHAR(200) NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id SERIAL PRIMARY KEY,
			bot_id INT NOT NULL REFERENCES bots(id) ON DELETE CASCADE,
			external_user_id VARCHAR(100) NOT NULL,
			external_username VARCHAR(100) DEFAULT '',
			started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			last_message_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (bot_id, external_user_id)
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id SERIAL PRIMARY KEY,
			conversation_id INT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			direction VARCHAR(10) NOT NULL,
			body TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS broadcasts (
			id SERIAL PRIMARY KEY,
			admin_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title VARCHAR(200) NOT NULL,
			message TEXT NOT NULL,
			target_tiers TEXT[] NOT NULL DEFAULT '{free,basic,premium}',
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			total_bots INT NOT NULL DEFAULT 0,
			delivered INT NOT NULL DEFAULT 0,
			failed INT NOT NULL DEFAULT 0,
			sent_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS broadcast_deliveries (
			id SERIAL PRIMARY KEY,
			broadcast_id INT NOT NULL REFERENCES broadcasts(id) ON DELETE CASCADE,
			bot_id INT NOT NULL REFERENCES bots(id) ON DELETE CASCADE,
			delivered BOOLEAN NOT NULL,
			error_message TEXT DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_bots_user ON bots(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_knowledge_bot ON knowledge_entries(bot_id);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_bot ON conversations(bot_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_broadcast_deliveries ON broadcast_deliveries(broadcast_id);`,
	}

	for _, ddl := range statements {
		if _, err := p.Pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}

func (p *PostgresClient) Close() {
	p.Pool.Close()
}
