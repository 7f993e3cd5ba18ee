package database

import (
	"database/sql"
	"fmt"
)

// Loans intentionally carry no foreign key to books: returned loans are a
// historical record and must survive the book's removal from the catalog.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL CHECK (role IN ('student','teacher','librarian')),
    group_name    TEXT NOT NULL DEFAULT '',
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS books (
    id               TEXT PRIMARY KEY,
    title            TEXT NOT NULL,
    author           TEXT NOT NULL,
    category         TEXT NOT NULL,
    total_copies     INTEGER NOT NULL CHECK (total_copies >= 1),
    available_copies INTEGER NOT NULL CHECK (available_copies >= 0 AND available_copies <= total_copies),
    created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS loans (
    id             TEXT PRIMARY KEY,
    book_id        TEXT NOT NULL,
    borrower_name  TEXT NOT NULL,
    borrower_role  TEXT NOT NULL CHECK (borrower_role IN ('student','teacher')),
    borrower_group TEXT NOT NULL DEFAULT '',
    borrow_date    DATETIME NOT NULL,
    due_date       DATETIME NOT NULL,
    status         TEXT NOT NULL DEFAULT 'outstanding' CHECK (status IN ('outstanding','returned')),
    return_date    DATETIME,
    fine_amount    INTEGER NOT NULL DEFAULT 0,
    fine_paid      INTEGER NOT NULL DEFAULT 0,
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_loans_book_status ON loans(book_id, status);
CREATE INDEX IF NOT EXISTS idx_loans_status ON loans(status);
`

func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
