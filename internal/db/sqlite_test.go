package db

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
)

const testMapJSON = `{
	"map": [
		{"x": 0, "y": 0, "type": "JungleHex", "uuid": "t1", "feature": "Village", "feature_uuid": "s1", "rivers": [1, 4], "trails": [], "region": "r1", "realm": "k1"},
		{"x": 1, "y": -1, "type": "ForestHex", "uuid": "t2", "feature": "Other", "rivers": [], "trails": [0, 3]},
		{"x": 2, "y": 0, "type": "JungleHex", "uuid": "t3", "feature": "Dungeon", "rivers": [], "trails": []}
	],
	"realms": {"k1": {"name": "The Lands of Vo'il"}},
	"regions": {"r1": "Aurora Bushes"},
	"borders": {"k1": [{"hex_x": 0, "hex_y": 0, "borders": [0, 5]}]}
}`

// createTestCampaign writes a campaign database with the given entity rows
func createTestCampaign(t *testing.T, mapJSON string, rows [][2]string, withRefs bool) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "campaign.hbf")

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	stmts := []string{`CREATE TABLE Entities (uuid TEXT PRIMARY KEY, value TEXT)`}
	if withRefs {
		stmts = append(stmts, `CREATE TABLE Refs (value TEXT, details TEXT, uuid TEXT, type TEXT, icon TEXT, anchor TEXT)`)
	}
	for _, stmt := range stmts {
		if _, err := conn.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}

	if mapJSON != "" {
		if _, err := conn.Exec(`INSERT INTO Entities (uuid, value) VALUES ('map', ?)`, mapJSON); err != nil {
			t.Fatalf("insert map: %v", err)
		}
	}
	for _, row := range rows {
		if _, err := conn.Exec(`INSERT INTO Entities (uuid, value) VALUES (?, ?)`, row[0], row[1]); err != nil {
			t.Fatalf("insert entity: %v", err)
		}
	}
	if withRefs {
		if _, err := conn.Exec(`INSERT INTO Refs (value, details, uuid, type, icon, anchor) VALUES ('Aurora Bushes', NULL, 'r1', 'region', NULL, 'r1')`); err != nil {
			t.Fatalf("insert ref: %v", err)
		}
	}
	return path
}

// TestLoadSnapshot tests decoding of a well-formed campaign
func TestLoadSnapshot(t *testing.T) {
	path := createTestCampaign(t, testMapJSON, [][2]string{
		{"r1", "<div>Content about Aurora Bushes region with data</div>"},
		{"empty", ""},
		{"j1", `{"name": "The Red Snakes"}`},
	}, true)

	snap, err := LoadSnapshot(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}

	if len(snap.Map.Tiles) != 3 {
		t.Fatalf("Expected 3 tiles, got %d", len(snap.Map.Tiles))
	}
	if snap.Map.Tiles[1].Y != -1 {
		t.Errorf("Expected signed y -1, got %d", snap.Map.Tiles[1].Y)
	}
	if snap.Map.Tiles[0].FeatureUUID == nil || *snap.Map.Tiles[0].FeatureUUID != "s1" {
		t.Errorf("Expected feature_uuid s1")
	}
	if snap.Map.Realms["k1"].Name != "The Lands of Vo'il" {
		t.Errorf("Unexpected realm: %+v", snap.Map.Realms)
	}
	if got := snap.Map.Borders["k1"][0].Borders; len(got) != 2 || got[1] != 5 {
		t.Errorf("Unexpected borders: %v", got)
	}

	if snap.EntityCount() != 2 {
		t.Fatalf("Expected 2 non-empty entities, got %d", snap.EntityCount())
	}
	if snap.Entities[0].UUID != "r1" || snap.Entities[1].UUID != "j1" {
		t.Errorf("Expected rowid order r1, j1; got %s, %s", snap.Entities[0].UUID, snap.Entities[1].UUID)
	}
	if _, ok := snap.Entity("empty"); ok {
		t.Error("Expected empty entity to be skipped")
	}
	if _, ok := snap.Entity("map"); ok {
		t.Error("Expected map row to be excluded from entities")
	}

	if len(snap.Refs) != 1 || snap.Refs[0].Details != nil || *snap.Refs[0].Type != "region" {
		t.Errorf("Unexpected refs: %+v", snap.Refs)
	}

	biomes := snap.BiomeCounts()
	if biomes[0].Biome != "JungleHex" || biomes[0].Tiles != 2 {
		t.Errorf("Unexpected biome summary: %+v", biomes)
	}
}

// TestLoadSnapshotErrors tests source error classification
func TestLoadSnapshotErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadSnapshot(ctx, filepath.Join(t.TempDir(), "absent.hbf"))
		if !errors.Is(err, apperrors.ErrSourceMissing) {
			t.Fatalf("Expected SourceMissing, got %v", err)
		}
	})

	t.Run("missing refs table", func(t *testing.T) {
		path := createTestCampaign(t, testMapJSON, nil, false)
		_, err := LoadSnapshot(ctx, path)
		if !errors.Is(err, apperrors.ErrSourceMalformed) {
			t.Fatalf("Expected SourceMalformed, got %v", err)
		}
	})

	t.Run("missing map row", func(t *testing.T) {
		path := createTestCampaign(t, "", [][2]string{{"a", "b"}}, true)
		_, err := LoadSnapshot(ctx, path)
		if !errors.Is(err, apperrors.ErrSourceMalformed) {
			t.Fatalf("Expected SourceMalformed, got %v", err)
		}
	})

	t.Run("duplicate coordinates", func(t *testing.T) {
		dup := `{"map": [{"x": 0, "y": 0, "type": "A", "uuid": "a", "feature": "", "rivers": [], "trails": []},
			{"x": 0, "y": 0, "type": "B", "uuid": "b", "feature": "", "rivers": [], "trails": []}]}`
		path := createTestCampaign(t, dup, nil, true)
		_, err := LoadSnapshot(ctx, path)
		if !errors.Is(err, apperrors.ErrSourceMalformed) {
			t.Fatalf("Expected SourceMalformed, got %v", err)
		}
	})

	t.Run("not a database", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "garbage.hbf")
		if err := os.WriteFile(path, []byte("this is not sqlite, just text padding the header out"), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := LoadSnapshot(ctx, path)
		if !errors.Is(err, apperrors.ErrSourceUnreadable) {
			t.Fatalf("Expected SourceUnreadable, got %v", err)
		}
	})
}
