package filter

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/queryerr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

// approximateForms are the geospatial operator forms evaluated on a plane
// or on bounding boxes instead of exact spherical geometry.
var approximateForms = map[string]bool{
	"$geoWithin.$center":       true,
	"$geoWithin.$centerSphere": true,
	"$geoWithin.$geometry":     true,
	"$geoIntersects":           true,
	"$near":                    true,
	"$nearSphere":              true,
}

// ApproximateOperators lists the geospatial operator forms that only
// produce a best-effort result.
func ApproximateOperators() []string {
	out := make([]string, 0, len(approximateForms))
	for form := range approximateForms {
		out = append(out, form)
	}
	sort.Strings(out)
	return out
}

func (p *Parser) parseGeo(name string, arg value.Value, siblings value.Document) (Condition, error) {
	var (
		g   Geo
		err error
	)
	switch name {
	case "$geoWithin":
		g, err = parseGeoWithin(arg)
	case "$geoIntersects":
		g = Geo{Op: GeoIntersects, Form: name}
		g.Shape, err = geometryOperand(name, arg)
	case "$near", "$nearSphere":
		g, err = parseNear(name, arg, siblings)
	}
	if err != nil {
		return nil, err
	}
	g.Approximate = approximateForms[g.Form]
	if g.Approximate {
		p.logger.Warn("geospatial operator is evaluated approximately", zap.String("operator", g.Form))
	}
	return g, nil
}

func parseGeoWithin(arg value.Value) (Geo, error) {
	d, ok := arg.AsDocument()
	if !ok || d.Len() != 1 {
		return Geo{}, queryerr.Malformed(queryerr.ErrMultiKeyOperator, "$geoWithin", "expected exactly one shape operator")
	}
	f := d.Fields()[0]
	g := Geo{Op: GeoWithin, Form: "$geoWithin." + f.Key}
	switch f.Key {
	case "$box":
		pts, err := pointList(f.Key, f.Value)
		if err != nil {
			return Geo{}, err
		}
		if len(pts) != 2 {
			return Geo{}, queryerr.Malformed(queryerr.ErrArity, f.Key, "expected two corner points")
		}
		g.Shape = orb.MultiPoint(pts).Bound()
	case "$polygon":
		pts, err := pointList(f.Key, f.Value)
		if err != nil {
			return Geo{}, err
		}
		if len(pts) < 3 {
			return Geo{}, queryerr.Malformed(queryerr.ErrArity, f.Key, "expected at least three points")
		}
		ring := orb.Ring(pts)
		if !ring.Closed() {
			ring = append(ring, ring[0])
		}
		g.Shape = orb.Polygon{ring}
	case "$center", "$centerSphere":
		items, ok := f.Value.AsArray()
		if !ok || len(items) != 2 {
			return Geo{}, queryerr.Malformed(queryerr.ErrArity, f.Key, "expected [center, radius]")
		}
		center, ok := toPoint(items[0])
		if !ok {
			return Geo{}, queryerr.Malformed(nil, f.Key, "invalid center %s", items[0])
		}
		radius, ok := items[1].AsNumber()
		if !ok || radius < 0 {
			return Geo{}, queryerr.Malformed(nil, f.Key, "invalid radius %s", items[1])
		}
		g.Shape, g.Radius = center, radius
		if f.Key == "$centerSphere" {
			g.Spherical, g.radians = true, true
		}
	case "$geometry":
		shape, err := geometryOperand("$geoWithin", arg)
		if err != nil {
			return Geo{}, err
		}
		switch shape.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			return Geo{}, queryerr.Malformed(nil, "$geoWithin", "$geometry must be a Polygon or MultiPolygon")
		}
		g.Shape, g.Spherical = shape, true
	default:
		return Geo{}, queryerr.UnknownOperator(f.Key)
	}
	return g, nil
}

func parseNear(name string, arg value.Value, siblings value.Document) (Geo, error) {
	g := Geo{Op: GeoNear, Form: name, MaxDistance: math.Inf(1)}
	if name == "$nearSphere" {
		g.Op, g.Spherical = GeoNearSphere, true
	}

	bounds := siblings
	if d, ok := arg.AsDocument(); ok && d.Has("$geometry") {
		shape, err := geometryOperand(name, arg)
		if err != nil {
			return Geo{}, err
		}
		if _, ok := shape.(orb.Point); !ok {
			return Geo{}, queryerr.Malformed(nil, name, "$geometry must be a Point")
		}
		g.Shape, g.Spherical = shape, true
		bounds = d
	} else {
		pt, ok := toPoint(arg)
		if !ok {
			return Geo{}, queryerr.Malformed(nil, name, "expected a point, got %s", arg)
		}
		g.Shape = pt
		g.radians = g.Spherical
	}

	if v, ok := bounds.Get("$maxDistance"); ok {
		n, ok := v.AsNumber()
		if !ok || n < 0 {
			return Geo{}, queryerr.Malformed(nil, "$maxDistance", "expected a non-negative number")
		}
		g.MaxDistance = n
	}
	if v, ok := bounds.Get("$minDistance"); ok {
		n, ok := v.AsNumber()
		if !ok || n < 0 {
			return Geo{}, queryerr.Malformed(nil, "$minDistance", "expected a non-negative number")
		}
		g.MinDistance = n
	}
	return g, nil
}

// geometryOperand reads the {$geometry: <GeoJSON>} operand of an operator.
func geometryOperand(op string, arg value.Value) (orb.Geometry, error) {
	d, ok := arg.AsDocument()
	if !ok {
		return nil, queryerr.Malformed(nil, op, "expected {$geometry: ...}")
	}
	gv, ok := d.Get("$geometry")
	if !ok {
		return nil, queryerr.Malformed(nil, op, "expected {$geometry: ...}")
	}
	g, ok := toGeometry(gv)
	if !ok {
		return nil, queryerr.Malformed(nil, op, "invalid GeoJSON geometry %s", gv)
	}
	return g, nil
}

func pointList(op string, v value.Value) ([]orb.Point, error) {
	items, ok := v.AsArray()
	if !ok {
		return nil, queryerr.Malformed(nil, op, "expected an array of points")
	}
	pts := make([]orb.Point, len(items))
	for i, item := range items {
		pt, ok := toPoint(item)
		if !ok {
			return nil, queryerr.Malformed(nil, op, "invalid point %s", item)
		}
		pts[i] = pt
	}
	return pts, nil
}

// toPoint reads a legacy coordinate pair: [x, y] or a document whose
// first two fields are numbers.
func toPoint(v value.Value) (orb.Point, bool) {
	var pair []value.Value
	switch {
	case v.IsArray():
		pair, _ = v.AsArray()
	case v.IsDocument():
		d, _ := v.AsDocument()
		if d.Has("type") {
			return orb.Point{}, false
		}
		for _, f := range d.Fields() {
			pair = append(pair, f.Value)
		}
	}
	if len(pair) < 2 {
		return orb.Point{}, false
	}
	x, ok1 := pair[0].AsNumber()
	y, ok2 := pair[1].AsNumber()
	if !ok1 || !ok2 {
		return orb.Point{}, false
	}
	return orb.Point{x, y}, true
}

// toGeometry reads a stored location: a legacy pair, a GeoJSON object or
// WKB bytes.
func toGeometry(v value.Value) (orb.Geometry, bool) {
	if pt, ok := toPoint(v); ok {
		return pt, true
	}
	switch v.Kind() {
	case value.KindBinary:
		_, data, _ := v.AsBinary()
		g, err := wkb.Unmarshal(data)
		if err != nil {
			return nil, false
		}
		return g, true
	case value.KindDocument:
		d, _ := v.AsDocument()
		if !d.Has("type") || !d.Has("coordinates") {
			return nil, false
		}
		data, err := value.MarshalExtJSON(d)
		if err != nil {
			return nil, false
		}
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil || g.Coordinates == nil {
			return nil, false
		}
		return g.Geometry(), true
	}
	return nil, false
}

func points(g orb.Geometry) []orb.Point {
	switch t := g.(type) {
	case orb.Point:
		return []orb.Point{t}
	case orb.MultiPoint:
		return t
	case orb.LineString:
		return t
	case orb.Ring:
		return t
	case orb.MultiLineString:
		var out []orb.Point
		for _, ls := range t {
			out = append(out, ls...)
		}
		return out
	case orb.Polygon:
		var out []orb.Point
		for _, r := range t {
			out = append(out, r...)
		}
		return out
	case orb.MultiPolygon:
		var out []orb.Point
		for _, poly := range t {
			out = append(out, points(poly)...)
		}
		return out
	case orb.Collection:
		var out []orb.Point
		for _, child := range t {
			out = append(out, points(child)...)
		}
		return out
	case orb.Bound:
		return []orb.Point{t.Min, t.Max, {t.Min[0], t.Max[1]}, {t.Max[0], t.Min[1]}}
	}
	return nil
}

func (g Geo) distance(a, b orb.Point) float64 {
	if !g.Spherical {
		return planar.Distance(a, b)
	}
	meters := geo.Distance(a, b)
	if g.radians {
		return meters / orb.EarthRadius
	}
	return meters
}

func (g Geo) contains(pt orb.Point) bool {
	switch shape := g.Shape.(type) {
	case orb.Bound:
		return shape.Contains(pt)
	case orb.Polygon:
		return planar.PolygonContains(shape, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(shape, pt)
	case orb.Point:
		return g.distance(pt, shape) <= g.Radius
	}
	return false
}

func matchGeometry(g Geo, target orb.Geometry) bool {
	switch g.Op {
	case GeoWithin:
		pts := points(target)
		if len(pts) == 0 {
			return false
		}
		for _, pt := range pts {
			if !g.contains(pt) {
				return false
			}
		}
		return true
	case GeoIntersects:
		return target.Bound().Intersects(g.Shape.Bound())
	case GeoNear, GeoNearSphere:
		center, ok := g.Shape.(orb.Point)
		if !ok {
			return false
		}
		d := g.distance(target.Bound().Center(), center)
		return d >= g.MinDistance && d <= g.MaxDistance
	}
	return false
}
