// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

// Package geoindex provides a spatial hash grid for fast proximity
// queries. Space is divided into fixed-size cells so a radius query
// only inspects entries in nearby cells instead of scanning the whole
// set.
package geoindex

import (
	"math"
	"sort"
	"sync"

	"github.com/geosentry/geosentry/internal/geo"
)

// metersPerDegree approximates one degree of latitude (and of longitude
// at the equator). Ground distance per degree of longitude shrinks with
// cos(latitude), which QueryRadius compensates for by widening its
// east-west reach.
const metersPerDegree = 111_000.0

type cellKey struct {
	x, y int
}

type entry struct {
	id       string
	lat, lon float64
	cell     cellKey
}

// Grid is a spatial hash over point entries keyed by ID. Insert and
// Remove are O(1); QueryRadius is O(k) in the entries of nearby cells.
type Grid struct {
	mu       sync.RWMutex
	cells    map[cellKey][]*entry
	entries  map[string]*entry
	cellSize float64 // degrees
}

// NewGrid creates a grid with the given cell size in meters. The cell
// size should be on the order of the typical query radius; values at or
// below zero fall back to 1km.
func NewGrid(cellSizeMeters float64) *Grid {
	if cellSizeMeters <= 0 {
		cellSizeMeters = 1000
	}
	return &Grid{
		cells:    make(map[cellKey][]*entry),
		entries:  make(map[string]*entry),
		cellSize: cellSizeMeters / metersPerDegree,
	}
}

func (g *Grid) keyFor(lat, lon float64) cellKey {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return cellKey{
		x: int(math.Floor(lon / g.cellSize)),
		y: int(math.Floor(lat / g.cellSize)),
	}
}

// Insert adds or repositions an entry.
func (g *Grid) Insert(id string, lat, lon float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.entries[id]; ok {
		g.removeFromCell(existing)
	}

	e := &entry{id: id, lat: lat, lon: lon, cell: g.keyFor(lat, lon)}
	g.cells[e.cell] = append(g.cells[e.cell], e)
	g.entries[id] = e
}

// Remove deletes an entry by ID. Returns false if the ID is unknown.
func (g *Grid) Remove(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[id]
	if !ok {
		return false
	}
	g.removeFromCell(e)
	delete(g.entries, id)
	return true
}

// removeFromCell unlinks an entry from its cell. Caller holds the lock.
func (g *Grid) removeFromCell(e *entry) {
	cell := g.cells[e.cell]
	for i, other := range cell {
		if other.id == e.id {
			cell[i] = cell[len(cell)-1]
			cell = cell[:len(cell)-1]
			break
		}
	}
	if len(cell) == 0 {
		delete(g.cells, e.cell)
	} else {
		g.cells[e.cell] = cell
	}
}

// Len returns the number of indexed entries.
func (g *Grid) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// QueryRadius returns the IDs of all entries within radiusMeters of the
// point, sorted.
//
// DETERMINISM: results are sorted by ID so callers walk matches in a
// fixed order regardless of cell iteration order.
func (g *Grid) QueryRadius(lat, lon, radiusMeters float64) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	latReach := int(math.Ceil(radiusMeters/metersPerDegree/g.cellSize)) + 1

	// Degrees of longitude cover less ground at high latitude, so the
	// east-west reach grows by 1/cos(lat). The clamp keeps near-polar
	// queries bounded instead of spanning every cell ring.
	cosLat := math.Cos(lat * math.Pi / 180)
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	lonReach := int(math.Ceil(radiusMeters/(metersPerDegree*cosLat)/g.cellSize)) + 1

	center := g.keyFor(lat, lon)

	var ids []string
	for dx := -lonReach; dx <= lonReach; dx++ {
		for dy := -latReach; dy <= latReach; dy++ {
			for _, e := range g.cells[cellKey{x: center.x + dx, y: center.y + dy}] {
				if geo.HaversineMeters(lat, lon, e.lat, e.lon) <= radiusMeters {
					ids = append(ids, e.id)
				}
			}
		}
	}

	sort.Strings(ids)
	return ids
}
