package server

import (
	"database/sql"
	"log"

	_ "github.com/cznic/ql/driver"
)

// This file implements the build registry using the QL embedded
// database. It is intended for development and single-node deployments;
// use MySQL otherwise.

type qlRegistry struct {
	db *sql.DB
}

var _ BuildDB = &qlRegistry{}

const qlBuildInit = `
	CREATE TABLE IF NOT EXISTS builds (
		id string,
		source string,
		destination string,
		status string,
		oxum_octets int64,
		oxum_files int64,
		error string,
		logtext string,
		created time,
		finished time
	);
	CREATE INDEX IF NOT EXISTS buildid ON builds (id);
	CREATE INDEX IF NOT EXISTS buildcreated ON builds (created);
`

// NewQlRegistry opens (creating if needed) a QL build registry in the
// given file. The filename "memory" keeps everything in memory.
func NewQlRegistry(filename string) (*qlRegistry, error) {
	var db *sql.DB
	var err error
	if filename == "memory" {
		db, err = sql.Open("ql-mem", "mem.db")
	} else {
		db, err = sql.Open("ql", filename)
	}
	if err == nil {
		_, err = performExec(db, qlBuildInit)
	}
	if err != nil {
		log.Printf("Open QL: %s", err.Error())
		return nil, err
	}
	return &qlRegistry{db: db}, nil
}

func (qr *qlRegistry) NewBuild(r BuildRecord) error {
	const query = `INSERT INTO builds VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10)`

	_, err := performExec(qr.db, query, r.ID, r.Source, r.Destination,
		r.Status, r.OxumOctets, r.OxumFiles, r.Error, r.Log,
		r.Created, r.Finished)
	return err
}

func (qr *qlRegistry) UpdateBuild(r BuildRecord) error {
	const query = `
		UPDATE builds
		SET source = ?2, destination = ?3, status = ?4,
			oxum_octets = ?5, oxum_files = ?6,
			error = ?7, logtext = ?8, finished = ?9
		WHERE id == ?1`

	result, err := performExec(qr.db, query, r.ID, r.Source, r.Destination,
		r.Status, r.OxumOctets, r.OxumFiles, r.Error, r.Log, r.Finished)
	if err != nil {
		return err
	}
	nrows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if nrows == 0 {
		// record didn't exist. create it
		return qr.NewBuild(r)
	}
	return nil
}

func (qr *qlRegistry) LookupBuild(id string) (*BuildRecord, error) {
	const query = `
		SELECT id, source, destination, status, oxum_octets,
			oxum_files, error, logtext, created, finished
		FROM builds
		WHERE id == ?1
		LIMIT 1`

	var r BuildRecord
	err := qr.db.QueryRow(query, id).Scan(&r.ID, &r.Source,
		&r.Destination, &r.Status, &r.OxumOctets, &r.OxumFiles,
		&r.Error, &r.Log, &r.Created, &r.Finished)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (qr *qlRegistry) ListBuilds() ([]string, error) {
	// In QL, ORDER BY is evaluated after projection and can only
	// reference selected fields, so sort in a subquery.
	const query = `SELECT id FROM (SELECT id, created FROM builds ORDER BY created DESC)`

	rows, err := qr.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func performExec(db *sql.DB, query string, args ...interface{}) (sql.Result, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	var result sql.Result
	result, err = tx.Exec(query, args...)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	err = tx.Commit()
	return result, err
}
