package server

import (
	"database/sql"
	"log"

	"github.com/BurntSushi/migration"
	_ "github.com/go-sql-driver/mysql"
)

// This file implements the build registry using MySQL as the backing
// store. The schema is managed with the migration package; add new
// migrations to the end of the list and DO NOT change the order of items
// already in it.

type msqlRegistry struct {
	db *sql.DB
}

var _ BuildDB = &msqlRegistry{}

var mysqlMigrations = []migration.Migrator{
	mysqlschema1,
}

// Adapt the schema versioning for MySQL

var mysqlVersioning = dbVersion{
	GetSQL:    `SELECT max(version) FROM migration_version`,
	SetSQL:    `INSERT INTO migration_version (version, applied) VALUES (?, now())`,
	CreateSQL: `CREATE TABLE migration_version (version INTEGER, applied datetime)`,
}

func mysqlschema1(tx migration.LimitedTx) error {
	const s = `
	CREATE TABLE IF NOT EXISTS builds (
		id varchar(64) PRIMARY KEY,
		source text,
		destination text,
		status varchar(16),
		oxum_octets bigint,
		oxum_files bigint,
		error text,
		logtext mediumtext,
		created datetime,
		finished datetime
	)`

	_, err := tx.Exec(s)
	return err
}

// NewMysqlRegistry connects to a MySQL database, migrating the schema if
// needed, and returns a build registry backed by it. The dial string has
// the usual form, e.g. "user:password@tcp(localhost:3306)/dbname".
func NewMysqlRegistry(dial string) (*msqlRegistry, error) {
	db, err := migration.OpenWith(
		"mysql",
		dial,
		mysqlMigrations,
		mysqlVersioning.Get,
		mysqlVersioning.Set)
	if err != nil {
		log.Printf("Open Mysql: %s", err.Error())
		return nil, err
	}
	return &msqlRegistry{db: db}, nil
}

func (ms *msqlRegistry) NewBuild(r BuildRecord) error {
	const query = `
		INSERT INTO builds (id, source, destination, status,
			oxum_octets, oxum_files, error, logtext, created, finished)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := ms.db.Exec(query, r.ID, r.Source, r.Destination, r.Status,
		r.OxumOctets, r.OxumFiles, r.Error, r.Log, r.Created, r.Finished)
	return err
}

func (ms *msqlRegistry) UpdateBuild(r BuildRecord) error {
	const query = `
		UPDATE builds
		SET source = ?, destination = ?, status = ?,
			oxum_octets = ?, oxum_files = ?,
			error = ?, logtext = ?, finished = ?
		WHERE id = ?`

	result, err := ms.db.Exec(query, r.Source, r.Destination, r.Status,
		r.OxumOctets, r.OxumFiles, r.Error, r.Log, r.Finished, r.ID)
	if err != nil {
		return err
	}
	nrows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if nrows == 0 {
		return ms.NewBuild(r)
	}
	return nil
}

func (ms *msqlRegistry) LookupBuild(id string) (*BuildRecord, error) {
	const query = `
		SELECT id, source, destination, status, oxum_octets,
			oxum_files, error, logtext, created, finished
		FROM builds
		WHERE id = ?
		LIMIT 1`

	var r BuildRecord
	err := ms.db.QueryRow(query, id).Scan(&r.ID, &r.Source,
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

func (ms *msqlRegistry) ListBuilds() ([]string, error) {
	const query = `SELECT id FROM builds ORDER BY created DESC`

	rows, err := ms.db.Query(query)
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
