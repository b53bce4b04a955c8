package db

import "sort"

// Tile is one hex of the campaign overworld.
type Tile struct {
	X           int     `json:"x"`
	Y           int     `json:"y"`
	Type        string  `json:"type"`
	UUID        string  `json:"uuid"`
	Feature     string  `json:"feature"`
	FeatureUUID *string `json:"feature_uuid,omitempty"`
	Rivers      []int   `json:"rivers"`
	Trails      []int   `json:"trails"`
	Region      *string `json:"region,omitempty"`
	Realm       *string `json:"realm,omitempty"`
}

// Realm is a named political realm of the overworld.
type Realm struct {
	Name string `json:"name"`
}

// Border marks the hex edges of a realm boundary.
type Border struct {
	HexX    int   `json:"hex_x"`
	HexY    int   `json:"hex_y"`
	Borders []int `json:"borders"`
}

// MapData is the decoded value of the "map" row.
type MapData struct {
	Tiles   []Tile              `json:"map"`
	Realms  map[string]Realm    `json:"realms"`
	Regions map[string]string   `json:"regions"`
	Borders map[string][]Border `json:"borders"`
}

// EntityRow is a raw Entities row with a non-empty value.
type EntityRow struct {
	UUID  string
	Value string
}

// Ref is a row of the Refs table.
type Ref struct {
	Value   string  `json:"value"`
	Details *string `json:"details,omitempty"`
	UUID    string  `json:"uuid"`
	Type    *string `json:"type,omitempty"`
	Icon    *string `json:"icon,omitempty"`
	Anchor  *string `json:"anchor,omitempty"`
}

// Snapshot is the in-memory decoded campaign database.
type Snapshot struct {
	Map      MapData
	Entities []EntityRow // rowid order
	Refs     []Ref

	byUUID map[string]int
}

// NewSnapshot builds a snapshot from already-decoded parts. Later rows with a
// uuid seen before replace the earlier value in place.
func NewSnapshot(m MapData, entities []EntityRow, refs []Ref) *Snapshot {
	s := &Snapshot{Map: m, Refs: refs, byUUID: make(map[string]int)}
	for _, e := range entities {
		s.addEntity(e)
	}
	return s
}

func (s *Snapshot) addEntity(e EntityRow) {
	if s.byUUID == nil {
		s.byUUID = make(map[string]int)
	}
	if i, ok := s.byUUID[e.UUID]; ok {
		s.Entities[i] = e
		return
	}
	s.byUUID[e.UUID] = len(s.Entities)
	s.Entities = append(s.Entities, e)
}

// Entity returns the raw value stored for uuid.
func (s *Snapshot) Entity(uuid string) (string, bool) {
	i, ok := s.byUUID[uuid]
	if !ok {
		return "", false
	}
	return s.Entities[i].Value, true
}

// EntityCount returns the number of non-empty entity rows.
func (s *Snapshot) EntityCount() int {
	return len(s.Entities)
}

// BiomeCount is a tile count for one biome type.
type BiomeCount struct {
	Biome string
	Tiles int
}

// BiomeCounts summarizes the overworld by tile type, most common first.
func (s *Snapshot) BiomeCounts() []BiomeCount {
	counts := make(map[string]int)
	for _, tile := range s.Map.Tiles {
		counts[tile.Type]++
	}

	result := make([]BiomeCount, 0, len(counts))
	for biome, n := range counts {
		result = append(result, BiomeCount{Biome: biome, Tiles: n})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Tiles != result[j].Tiles {
			return result[i].Tiles > result[j].Tiles
		}
		return result[i].Biome < result[j].Biome
	})
	return result
}
