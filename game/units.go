package game

import "fmt"

// UnitType identifies what occupies a tile. Soldiers come in four tiers;
// equal-tier soldiers cannot destroy each other because defense is one
// higher than attack, except tier 4 which can destroy its own tier.
type UnitType int8

const (
	UnitNone UnitType = iota
	UnitSoldier1
	UnitSoldier2
	UnitSoldier3
	UnitSoldier4
	UnitCapital
	UnitFarm
	UnitTower1
	UnitTower2
	UnitTree
	UnitGravestone
)

func (u UnitType) String() string {
	switch u {
	case UnitNone:
		return "none"
	case UnitSoldier1:
		return "soldier1"
	case UnitSoldier2:
		return "soldier2"
	case UnitSoldier3:
		return "soldier3"
	case UnitSoldier4:
		return "soldier4"
	case UnitCapital:
		return "capital"
	case UnitFarm:
		return "farm"
	case UnitTower1:
		return "tower1"
	case UnitTower2:
		return "tower2"
	case UnitTree:
		return "tree"
	case UnitGravestone:
		return "gravestone"
	}
	return "unknown"
}

// ParseUnitType is the inverse of String.
func ParseUnitType(s string) (UnitType, error) {
	for u := UnitNone; u <= UnitGravestone; u++ {
		if u.String() == s {
			return u, nil
		}
	}
	return UnitNone, fmt.Errorf("unknown unit type %q", s)
}

// IsSoldier reports whether the unit is a movable soldier.
func (u UnitType) IsSoldier() bool {
	return u >= UnitSoldier1 && u <= UnitSoldier4
}

// IsStructure reports whether the unit is a faction-owned building.
func (u UnitType) IsStructure() bool {
	return u >= UnitCapital && u <= UnitTower2
}

// SoldierTier returns the tier (1-4) of a soldier, or 0 for non-soldiers.
func (u UnitType) SoldierTier() int {
	if u.IsSoldier() {
		return int(u-UnitSoldier1) + 1
	}
	return 0
}

// SoldierByTier returns the soldier unit for a tier in [1,4].
func SoldierByTier(tier int) UnitType {
	return UnitSoldier1 + UnitType(tier-1)
}

// AttackPower is the offensive strength used to contest protected tiles.
func (u UnitType) AttackPower() int {
	return u.SoldierTier()
}

// DefensePower is the protection a unit grants its own tile and, for
// soldiers and towers, adjacent tiles of the same owner.
func (u UnitType) DefensePower() int {
	switch u {
	case UnitSoldier1:
		return 2
	case UnitSoldier2:
		return 3
	case UnitSoldier3:
		return 4
	case UnitSoldier4:
		return 4
	case UnitCapital:
		return 1
	case UnitTower1:
		return 2
	case UnitTower2:
		return 3
	}
	return 0
}

// Upkeep is the per-turn resource drain of the unit. Farms have negative
// upkeep: they generate resources.
func (u UnitType) Upkeep() int {
	switch u {
	case UnitSoldier1:
		return 2
	case UnitSoldier2:
		return 6
	case UnitSoldier3:
		return 18
	case UnitSoldier4:
		return 36
	case UnitTower1:
		return 1
	case UnitTower2:
		return 6
	case UnitFarm:
		return -4
	}
	return 0
}

// BuildCost returns the price of building the unit. numFarms is the number
// of farms the building province already owns; each existing farm raises
// the next farm's price.
func (u UnitType) BuildCost(numFarms int) int {
	switch u {
	case UnitSoldier1:
		return 10
	case UnitSoldier2:
		return 20
	case UnitSoldier3:
		return 30
	case UnitSoldier4:
		return 40
	case UnitTower1:
		return 15
	case UnitTower2:
		return 35
	case UnitFarm:
		return 12 + numFarms*2
	}
	return 0
}
