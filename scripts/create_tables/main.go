package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
)

// Bootstraps the MeepleAI tables on a fresh database. The server's
// AutoMigrate covers the same schema; this script exists for environments
// where the application role has no DDL rights.
func main() {
	fmt.Println("Creating MeepleAI database tables...")

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		dsn = "host=localhost port=5432 user=meepleai password=meepleai dbname=meepleai sslmode=disable"
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	fmt.Println("✅ Connected to database")

	statements := []struct {
		name string
		sql  string
	}{
		{"meepleai_games", `
			CREATE TABLE IF NOT EXISTS meepleai_games (
				id VARCHAR(128) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`},
		{"meepleai_pdf_documents", `
			CREATE TABLE IF NOT EXISTS meepleai_pdf_documents (
				id VARCHAR(64) PRIMARY KEY,
				game_id VARCHAR(128) NOT NULL,
				file_name VARCHAR(512) NOT NULL,
				file_size_bytes BIGINT NOT NULL DEFAULT 0,
				uploaded_by VARCHAR(255) NOT NULL,
				uploaded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				processing_status VARCHAR(32) NOT NULL DEFAULT 'pending',
				extracted_text TEXT,
				page_count INT DEFAULT 0,
				character_count INT DEFAULT 0,
				extraction_error TEXT
			);
			CREATE INDEX IF NOT EXISTS idx_pdf_documents_game_id ON meepleai_pdf_documents(game_id)`},
		{"meepleai_vector_documents", `
			CREATE TABLE IF NOT EXISTS meepleai_vector_documents (
				id VARCHAR(64) PRIMARY KEY,
				game_id VARCHAR(128) NOT NULL,
				document_id VARCHAR(64) NOT NULL UNIQUE,
				chunk_count INT DEFAULT 0,
				total_characters INT DEFAULT 0,
				embedding_model VARCHAR(255),
				embedding_dimensions INT DEFAULT 0,
				indexing_status VARCHAR(32) NOT NULL DEFAULT 'pending',
				indexing_error TEXT,
				indexed_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			);
			CREATE INDEX IF NOT EXISTS idx_vector_documents_game_id ON meepleai_vector_documents(game_id)`},
		{"meepleai_prompt_templates", `
			CREATE TABLE IF NOT EXISTS meepleai_prompt_templates (
				id VARCHAR(64) PRIMARY KEY,
				name VARCHAR(255) NOT NULL UNIQUE,
				description TEXT,
				category VARCHAR(64),
				created_by VARCHAR(255) NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				version_count INT NOT NULL DEFAULT 0,
				active_version INT NOT NULL DEFAULT 0
			)`},
		{"meepleai_prompt_versions", `
			CREATE TABLE IF NOT EXISTS meepleai_prompt_versions (
				id VARCHAR(64) PRIMARY KEY,
				template_id VARCHAR(64) NOT NULL,
				version_number INT NOT NULL,
				content TEXT NOT NULL,
				metadata JSONB,
				is_active BOOLEAN NOT NULL DEFAULT false,
				created_by VARCHAR(255) NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			);
			CREATE INDEX IF NOT EXISTS idx_prompt_versions_template_id ON meepleai_prompt_versions(template_id);
			CREATE INDEX IF NOT EXISTS idx_prompt_versions_is_active ON meepleai_prompt_versions(is_active)`},
		{"meepleai_prompt_audits", `
			CREATE TABLE IF NOT EXISTS meepleai_prompt_audits (
				id VARCHAR(64) PRIMARY KEY,
				template_id VARCHAR(64) NOT NULL,
				version_id VARCHAR(64),
				action VARCHAR(64) NOT NULL,
				actor VARCHAR(255) NOT NULL,
				details TEXT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			);
			CREATE INDEX IF NOT EXISTS idx_prompt_audits_template_id ON meepleai_prompt_audits(template_id)`},
		{"meepleai_ai_request_logs", `
			CREATE TABLE IF NOT EXISTS meepleai_ai_request_logs (
				id VARCHAR(64) PRIMARY KEY,
				endpoint VARCHAR(32) NOT NULL,
				game_id VARCHAR(128) NOT NULL,
				user_id VARCHAR(255) NOT NULL,
				query TEXT,
				latency_ms INT DEFAULT 0,
				prompt_tokens INT DEFAULT 0,
				completion_tokens INT DEFAULT 0,
				total_tokens INT DEFAULT 0,
				confidence DOUBLE PRECISION,
				success BOOLEAN NOT NULL DEFAULT false,
				from_cache BOOLEAN NOT NULL DEFAULT false,
				error_message TEXT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			);
			CREATE INDEX IF NOT EXISTS idx_ai_request_logs_endpoint ON meepleai_ai_request_logs(endpoint);
			CREATE INDEX IF NOT EXISTS idx_ai_request_logs_game_id ON meepleai_ai_request_logs(game_id)`},
		{"meepleai_qa_cache_stats", `
			CREATE TABLE IF NOT EXISTS meepleai_qa_cache_stats (
				id BIGSERIAL PRIMARY KEY,
				game_id VARCHAR(128) NOT NULL,
				question_hash VARCHAR(64) NOT NULL,
				hit_count BIGINT NOT NULL DEFAULT 0,
				miss_count BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				last_hit_at TIMESTAMPTZ,
				CONSTRAINT idx_game_question UNIQUE (game_id, question_hash)
			)`},
		{"meepleai_agent_feedbacks", `
			CREATE TABLE IF NOT EXISTS meepleai_agent_feedbacks (
				id VARCHAR(64) PRIMARY KEY,
				message_id VARCHAR(128) NOT NULL,
				endpoint VARCHAR(32) NOT NULL,
				user_id VARCHAR(255) NOT NULL,
				game_id VARCHAR(128) NOT NULL,
				outcome VARCHAR(32) NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				CONSTRAINT idx_feedback_identity UNIQUE (message_id, endpoint, user_id)
			);
			CREATE INDEX IF NOT EXISTS idx_agent_feedbacks_game_id ON meepleai_agent_feedbacks(game_id)`},
	}

	for _, stmt := range statements {
		fmt.Printf("Creating %s...\n", stmt.name)
		if _, err := db.Exec(stmt.sql); err != nil {
			log.Fatalf("Failed to create %s: %v", stmt.name, err)
		}
	}

	fmt.Println("✅ All tables created successfully!")
}
