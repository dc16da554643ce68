package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const createKeysTable = `
CREATE TABLE IF NOT EXISTS keys (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL DEFAULT '',
	seed TEXT NOT NULL,
	bits INTEGER NOT NULL,
	public_pem TEXT NOT NULL,
	private_pem TEXT NOT NULL,
	file_path TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS keys_job_id ON keys(job_id);`

const selectKeys = `SELECT id, job_id, seed, bits, public_pem, private_pem, file_path, created_at FROM keys`

// SQLiteStore persists keys in a SQLite database. Seeds are stored as
// decimal text since SQLite integers are signed.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createKeysTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create keys table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(key *StoredKey) error {
	if key == nil || key.ID == "" {
		return fmt.Errorf("cannot store key without an ID")
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO keys
		(id, job_id, seed, bits, public_pem, private_pem, file_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		key.ID, key.JobID, strconv.FormatUint(key.Seed, 10), key.Bits,
		key.PublicKey, key.PrivateKey, key.FilePath, key.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save key %s: %w", key.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(id string) (*StoredKey, error) {
	row := s.db.QueryRow(selectKeys+" WHERE id = ?", id)
	key, err := scanKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load key %s: %w", id, err)
	}
	return key, nil
}

func (s *SQLiteStore) List() ([]*StoredKey, error) {
	return s.query(selectKeys + " ORDER BY created_at, id")
}

func (s *SQLiteStore) ListByJob(jobID string) ([]*StoredKey, error) {
	return s.query(selectKeys+" WHERE job_id = ? ORDER BY created_at, id", jobID)
}

func (s *SQLiteStore) Delete(id string) error {
	res, err := s.db.Exec("DELETE FROM keys WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete key %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) Count() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM keys").Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) query(q string, args ...interface{}) ([]*StoredKey, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []*StoredKey
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanKey(row scanner) (*StoredKey, error) {
	var (
		key       StoredKey
		seed      string
		createdAt time.Time
	)
	if err := row.Scan(&key.ID, &key.JobID, &seed, &key.Bits,
		&key.PublicKey, &key.PrivateKey, &key.FilePath, &createdAt); err != nil {
		return nil, err
	}

	v, err := strconv.ParseUint(seed, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt seed for key %s: %w", key.ID, err)
	}
	key.Seed = v
	key.CreatedAt = createdAt
	key.FileStored = key.FilePath != ""
	return &key, nil
}
