// Package db reads the legacy campaign database into an in-memory snapshot.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/timeouts"
)

// mapRowUUID is the Entities uuid holding the overworld JSON document.
const mapRowUUID = "map"

// LoadSnapshot opens the campaign database read-only, decodes it and closes the
// handle before returning.
func LoadSnapshot(ctx context.Context, path string) (*Snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.WithMetadata(apperrors.CodeSourceMissing,
				fmt.Sprintf("campaign database %s does not exist", path), map[string]string{"path": path})
		}
		return nil, apperrors.Wrap(apperrors.CodeSourceUnreadable, "stat campaign database", err)
	}
	if info.IsDir() {
		return nil, apperrors.Newf(apperrors.CodeSourceUnreadable, "campaign database %s is a directory", path)
	}

	conn, err := open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	for _, table := range []string{"Entities", "Refs"} {
		ok, err := hasTable(ctx, conn, table)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeSourceUnreadable, "inspect schema", err)
		}
		if !ok {
			return nil, apperrors.Newf(apperrors.CodeSourceMalformed, "required table %s is missing", table)
		}
	}

	m, err := readMap(ctx, conn)
	if err != nil {
		return nil, err
	}

	entities, err := readEntities(ctx, conn)
	if err != nil {
		return nil, err
	}

	refs, err := readRefs(ctx, conn)
	if err != nil {
		return nil, err
	}

	return NewSnapshot(*m, entities, refs), nil
}

// open connects in read-only mode and verifies the file is a database.
func open(ctx context.Context, path string) (*sql.DB, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSourceUnreadable, "resolve campaign path", err)
	}
	dsn := (&url.URL{Scheme: "file", Path: abs, RawQuery: "mode=ro"}).String()

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSourceUnreadable, "open campaign database", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeouts.SourceOpen)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, apperrors.Wrap(apperrors.CodeSourceUnreadable, "ping campaign database", err)
	}
	return conn, nil
}

func hasTable(ctx context.Context, conn *sql.DB, name string) (bool, error) {
	var n int
	err := conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func readMap(ctx context.Context, conn *sql.DB) (*MapData, error) {
	var raw sql.NullString
	err := conn.QueryRowContext(ctx, `SELECT value FROM Entities WHERE uuid = ?`, mapRowUUID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.CodeSourceMalformed, `entity "map" is missing`)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSourceUnreadable, "read map row", err)
	}

	var m MapData
	if err := json.Unmarshal([]byte(raw.String), &m); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSourceMalformed, "decode map document", err)
	}
	if err := validateMap(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// validateMap enforces tile uuid and coordinate uniqueness and edge index bounds.
func validateMap(m *MapData) error {
	uuids := make(map[string]struct{}, len(m.Tiles))
	coords := make(map[[2]int]struct{}, len(m.Tiles))
	for i, tile := range m.Tiles {
		if _, dup := uuids[tile.UUID]; dup {
			return apperrors.Newf(apperrors.CodeSourceMalformed, "tile %d: duplicate uuid %s", i, tile.UUID)
		}
		uuids[tile.UUID] = struct{}{}

		key := [2]int{tile.X, tile.Y}
		if _, dup := coords[key]; dup {
			return apperrors.Newf(apperrors.CodeSourceMalformed, "tile %d: duplicate coordinate (%d,%d)", i, tile.X, tile.Y)
		}
		coords[key] = struct{}{}

		for _, edges := range [][]int{tile.Rivers, tile.Trails} {
			if err := checkEdges(edges); err != nil {
				return apperrors.Wrap(apperrors.CodeSourceMalformed, fmt.Sprintf("tile %d", i), err)
			}
		}
	}
	for realm, borders := range m.Borders {
		for _, b := range borders {
			if err := checkEdges(b.Borders); err != nil {
				return apperrors.Wrap(apperrors.CodeSourceMalformed, fmt.Sprintf("realm %s border", realm), err)
			}
		}
	}
	return nil
}

func checkEdges(edges []int) error {
	for _, e := range edges {
		if e < 0 || e > 5 {
			return fmt.Errorf("edge index %d out of range 0..5", e)
		}
	}
	return nil
}

func readEntities(ctx context.Context, conn *sql.DB) ([]EntityRow, error) {
	rows, err := conn.QueryContext(ctx, `SELECT uuid, value FROM Entities WHERE uuid != ? ORDER BY rowid`, mapRowUUID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSourceUnreadable, "query entities", err)
	}
	defer rows.Close()

	var entities []EntityRow
	for rows.Next() {
		var (
			uuid  string
			value sql.NullString
		)
		if err := rows.Scan(&uuid, &value); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeSourceUnreadable, "scan entity", err)
		}
		if !value.Valid || value.String == "" {
			continue
		}
		entities = append(entities, EntityRow{UUID: uuid, Value: value.String})
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSourceUnreadable, "iterate entities", err)
	}
	return entities, nil
}

func readRefs(ctx context.Context, conn *sql.DB) ([]Ref, error) {
	rows, err := conn.QueryContext(ctx, `SELECT value, details, uuid, type, icon, anchor FROM Refs ORDER BY rowid`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSourceUnreadable, "query refs", err)
	}
	defer rows.Close()

	var refs []Ref
	for rows.Next() {
		var (
			ref                        Ref
			value, uuid                sql.NullString
			details, typ, icon, anchor sql.NullString
		)
		if err := rows.Scan(&value, &details, &uuid, &typ, &icon, &anchor); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeSourceUnreadable, "scan ref", err)
		}
		ref.Value = value.String
		ref.UUID = uuid.String
		ref.Details = nullable(details)
		ref.Type = nullable(typ)
		ref.Icon = nullable(icon)
		ref.Anchor = nullable(anchor)
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSourceUnreadable, "iterate refs", err)
	}
	return refs, nil
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
