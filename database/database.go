package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/camden-git/faceattend/media"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// SQLiteDSN builds a go-sqlite3 data source name for a database file with WAL
// journaling and a busy timeout applied to every pooled connection.
func SQLiteDSN(path string) string {
	if strings.HasPrefix(path, "file:") || strings.Contains(path, "?") {
		return path
	}
	return "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
}

// InitDB opens the raw sqlite handle used by the face sample store.
func InitDB(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// enable write-ahead Logging for better concurrency
	_, err = db.Exec("PRAGMA journal_mode=WAL;")
	if err != nil {
		log.Printf("warning: failed to set WAL mode: %v", err)
	}

	if err := CreateSampleSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	log.Println("database initialized successfully at", dataSourceName)
	return db, nil
}

// CreateSampleSchema creates the face_samples table if it does not exist.
func CreateSampleSchema(db *sql.DB) error {
	sqlStmt := `
	CREATE TABLE IF NOT EXISTS face_samples (
		person TEXT NOT NULL,
		seq INTEGER NOT NULL,
		data BLOB NOT NULL,
		PRIMARY KEY (person, seq)
	);
	`
	if _, err := db.Exec(sqlStmt); err != nil {
		return fmt.Errorf("failed to create face_samples table: %w", err)
	}
	return nil
}

// SampleStore keeps gallery samples as PNG blobs in the face_samples table.
type SampleStore struct {
	DB *sql.DB
}

func NewSampleStore(db *sql.DB) *SampleStore {
	return &SampleStore{DB: db}
}

func (s *SampleStore) Get(person string, seq int) ([]byte, error) {
	queryBuilder := psql.Select("data").
		From("face_samples").
		Where(sq.Eq{"person": person, "seq": seq}).
		Limit(1)

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for sample get: %w", err)
	}

	var data []byte
	err = s.DB.QueryRow(sqlStr, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s #%d", media.ErrSampleNotFound, person, seq)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sample %s #%d: %w", person, seq, err)
	}
	return data, nil
}

// Put inserts or replaces the sample for (person, seq).
func (s *SampleStore) Put(person string, seq int, data []byte) error {
	queryBuilder := psql.Insert("face_samples").
		Columns("person", "seq", "data").
		Values(person, seq, data).
		Suffix("ON CONFLICT(person, seq) DO UPDATE SET data = excluded.data")

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build SQL query for sample put: %w", err)
	}
	if _, err := s.DB.Exec(sqlStr, args...); err != nil {
		return fmt.Errorf("failed to store sample %s #%d: %w", person, seq, err)
	}
	return nil
}

func (s *SampleStore) ListPersons() ([]string, error) {
	sqlStr, args, err := psql.Select("DISTINCT person").
		From("face_samples").
		OrderBy("person ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for person list: %w", err)
	}

	rows, err := s.DB.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list persons: %w", err)
	}
	defer rows.Close()

	var persons []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

func (s *SampleStore) ListSequences(person string) ([]int, error) {
	sqlStr, args, err := psql.Select("seq").
		From("face_samples").
		Where(sq.Eq{"person": person}).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for sequence list: %w", err)
	}

	rows, err := s.DB.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list samples for %s: %w", person, err)
	}
	defer rows.Close()

	var seqs []int
	for rows.Next() {
		var seq int
		if err := rows.Scan(&seq); err != nil {
			return nil, fmt.Errorf("failed to scan sequence: %w", err)
		}
		seqs = append(seqs, seq)
	}
	return seqs, rows.Err()
}
