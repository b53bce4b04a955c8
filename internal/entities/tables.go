package entities

// Known canonical names per category. Matching walks the tables in the order
// of CategoryOrder and each table in declaration order; the first hit wins.
// These lists define entity identity across runs: append only, never reorder.

var knownRegions = []string{
	"Aurora Bushes",
	"Black Shield Timberlands",
	"Blood Blade Fields",
	"Bonecrusher Plains",
	"Darkfall Dunes",
	"Darkfall Plains",
	"Fallen Star Steppe",
	"Fearless Wilds",
	"Firefly Cliffs",
	"Goblinchaser Jungle",
	"Goblinchaser Wilderness",
	"Goldenswan Timberlands",
	"Goldseeker's Cliffs",
	"Grey Mist Snowlands",
	"Heartseeker Forest",
	"Heartseeker Moors",
	"Hell's Gate Desert",
	"Holloweye Wilderness",
	"Iceborn Wilderness",
	"Javelin Plains",
	"Javelin Wetlands",
	"Moonwatcher Wetlands",
	"Nightwind Green",
	"Ragthorn Meadows",
	"Ragthorn Woods",
	"Thunderwave Woodlands",
	"Vicious Crag",
}

var knownSettlements = []string{
	"Village of Ashamar",
	"Village of Balaal",
	"Town of Devilville",
	"Village of Dokar",
	"Village of Dorith",
	"Village of Harad",
	"City of Headsmen",
	"Village of Kothian",
	"City of Palemoon",
	"Town of Tinder",
}

var knownFactions = []string{
	"The Defiled Wolves",
	"The Fists Of Justice",
	"The Red Snakes",
	"The Swords Of Justice",
	"The White Wyverns",
}

var knownDungeons = []string{
	"Bowel of the Raging Pits",
	"Caverns of the Burning Souls",
	"Caverns of the Infernal Lich",
	"Crypt of the Corrupted Order",
	"Crypt of the Infernal Blades",
	"Crypt of the Mourning Goblin",
	"Crypt of the Unholy Goblin",
	"Crypt of the Violent Ogre",
	"Hideout of the Corrupted Order",
	"Hideout of the Unspoken Desire",
	"Lair of the Foresaken Desire",
	"Lair of the Mourning Hopes",
	"Shrine of the Infernal Blades",
	"Shrine of the Infernal Desire",
	"Temple of the Violent Ogre",
	"Tomb of the Cursed Pits",
	"Tomb of the Grey Ogre",
	"Tomb of the Unspoken Skeletons",
}

// CanonicalTables returns a copy of the known-name tables keyed by category.
func CanonicalTables() map[Category][]string {
	return map[Category][]string{
		CategoryRegions:     append([]string(nil), knownRegions...),
		CategorySettlements: append([]string(nil), knownSettlements...),
		CategoryFactions:    append([]string(nil), knownFactions...),
		CategoryDungeons:    append([]string(nil), knownDungeons...),
	}
}

func tableFor(c Category) []string {
	switch c {
	case CategoryRegions:
		return knownRegions
	case CategorySettlements:
		return knownSettlements
	case CategoryFactions:
		return knownFactions
	case CategoryDungeons:
		return knownDungeons
	}
	return nil
}
