// Package shapefile extracts polygon records from zipped ESRI shapefile
// archives. Only the pieces the backfill needs are implemented: the .shp
// geometry file (flat points + part offsets per record) and the .dbf
// attribute table (fixed-width dBase III rows). Projection and index files
// in the archive are ignored.
package shapefile

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/couchcryptid/storm-archive-backfill/internal/domain"
)

// shpFileCode is the big-endian magic number opening every .shp header.
const shpFileCode = 9994

// Record pairs one shape's flat geometry with its attribute row.
type Record struct {
	ShapeType  int
	Points     []domain.Point
	Parts      []int
	Attributes map[string]string
}

// ExtractRecords opens a zip archive, locates the .shp and .dbf members, and
// returns their paired records. Geometry and attributes are matched by record
// order, which is how the format correlates them.
func ExtractRecords(archive []byte) ([]Record, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	shpData, err := readMember(zr, ".shp")
	if err != nil {
		return nil, err
	}
	dbfData, err := readMember(zr, ".dbf")
	if err != nil {
		return nil, err
	}

	shapes, err := parseShp(shpData)
	if err != nil {
		return nil, fmt.Errorf("parse shp: %w", err)
	}
	attrs, err := parseDbf(dbfData)
	if err != nil {
		return nil, fmt.Errorf("parse dbf: %w", err)
	}

	n := len(shapes)
	if len(attrs) < n {
		n = len(attrs)
	}
	records := make([]Record, n)
	for i := 0; i < n; i++ {
		records[i] = shapes[i]
		records[i].Attributes = attrs[i]
	}
	return records, nil
}

// readMember returns the contents of the first archive member with the given
// extension (case-insensitive).
func readMember(zr *zip.Reader, ext string) ([]byte, error) {
	for _, f := range zr.File {
		if !strings.HasSuffix(strings.ToLower(f.Name), ext) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("archive has no %s member", ext)
}

// parseShp walks the .shp record stream. Each record is an 8-byte big-endian
// header (record number, content length in 16-bit words) followed by the
// little-endian shape content. Non-polygon shapes are carried through with
// their type and no points so the caller can reject them per-record.
func parseShp(data []byte) ([]Record, error) {
	if len(data) < 100 {
		return nil, fmt.Errorf("file too short for header: %d bytes", len(data))
	}
	if code := binary.BigEndian.Uint32(data[0:4]); code != shpFileCode {
		return nil, fmt.Errorf("bad file code %d", code)
	}

	var records []Record
	offset := 100
	for offset+8 <= len(data) {
		contentWords := int(binary.BigEndian.Uint32(data[offset+4 : offset+8]))
		contentLen := contentWords * 2
		body := offset + 8
		if body+contentLen > len(data) {
			return nil, fmt.Errorf("record at offset %d overruns file", offset)
		}
		rec, err := parseShpRecord(data[body : body+contentLen])
		if err != nil {
			return nil, fmt.Errorf("record at offset %d: %w", offset, err)
		}
		records = append(records, rec)
		offset = body + contentLen
	}
	return records, nil
}

func parseShpRecord(content []byte) (Record, error) {
	if len(content) < 4 {
		return Record{}, fmt.Errorf("content too short: %d bytes", len(content))
	}
	shapeType := int(binary.LittleEndian.Uint32(content[0:4]))
	rec := Record{ShapeType: shapeType}

	switch shapeType {
	case domain.ShapeTypePolygon, domain.ShapeTypePolygonZ, domain.ShapeTypePolygonM:
	default:
		// Null shapes and non-polygon types carry no geometry we can use.
		return rec, nil
	}

	// 32-byte bounding box, then part and point counts.
	if len(content) < 44 {
		return Record{}, fmt.Errorf("polygon content too short: %d bytes", len(content))
	}
	numParts := int(binary.LittleEndian.Uint32(content[36:40]))
	numPoints := int(binary.LittleEndian.Uint32(content[40:44]))

	partsEnd := 44 + numParts*4
	pointsEnd := partsEnd + numPoints*16
	if numParts < 0 || numPoints < 0 || pointsEnd > len(content) {
		return Record{}, fmt.Errorf("counts overrun content: %d parts, %d points", numParts, numPoints)
	}

	rec.Parts = make([]int, numParts)
	for i := 0; i < numParts; i++ {
		rec.Parts[i] = int(binary.LittleEndian.Uint32(content[44+i*4 : 48+i*4]))
	}

	rec.Points = make([]domain.Point, numPoints)
	for i := 0; i < numPoints; i++ {
		base := partsEnd + i*16
		rec.Points[i] = domain.Point{
			Lon: math.Float64frombits(binary.LittleEndian.Uint64(content[base : base+8])),
			Lat: math.Float64frombits(binary.LittleEndian.Uint64(content[base+8 : base+16])),
		}
	}
	// PolygonZ/M carry Z and M ranges after the XY points; the backfill only
	// needs the horizontal coordinates, so the remainder is skipped.
	return rec, nil
}

// dbfField is one column descriptor from the .dbf header.
type dbfField struct {
	name   string
	length int
}

// parseDbf decodes a dBase III attribute table into one string map per row.
// All values are returned trimmed; typed interpretation is left to the
// domain layer.
func parseDbf(data []byte) ([]map[string]string, error) {
	if len(data) < 32 {
		return nil, fmt.Errorf("file too short for header: %d bytes", len(data))
	}
	recordCount := int(binary.LittleEndian.Uint32(data[4:8]))
	headerSize := int(binary.LittleEndian.Uint16(data[8:10]))
	recordSize := int(binary.LittleEndian.Uint16(data[10:12]))
	if headerSize < 33 || headerSize > len(data) || recordSize < 1 {
		return nil, fmt.Errorf("implausible header: header=%d record=%d", headerSize, recordSize)
	}

	var fields []dbfField
	for pos := 32; pos+32 <= headerSize && data[pos] != 0x0D; pos += 32 {
		name := strings.TrimRight(string(bytes.TrimRight(data[pos:pos+11], "\x00")), " ")
		fields = append(fields, dbfField{name: name, length: int(data[pos+16])})
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("no field descriptors")
	}

	rows := make([]map[string]string, 0, recordCount)
	for i := 0; i < recordCount; i++ {
		base := headerSize + i*recordSize
		if base+recordSize > len(data) {
			break
		}
		if data[base] == '*' { // deleted row
			continue
		}
		row := make(map[string]string, len(fields))
		pos := base + 1
		for _, f := range fields {
			if pos+f.length > len(data) {
				break
			}
			row[f.name] = strings.TrimSpace(string(data[pos : pos+f.length]))
			pos += f.length
		}
		rows = append(rows, row)
	}
	return rows, nil
}
