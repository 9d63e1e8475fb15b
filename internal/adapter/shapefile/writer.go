package shapefile

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/couchcryptid/storm-archive-backfill/internal/domain"
)

// WriteArchive builds a zip archive containing a .shp and .dbf pair from the
// given records. It produces just enough of the format for ExtractRecords to
// round-trip, and backs the genarchive command's synthetic fixtures.
func WriteArchive(name string, records []Record) ([]byte, error) {
	shp, err := writeShp(records)
	if err != nil {
		return nil, err
	}
	dbf, err := writeDbf(records)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, member := range []struct {
		ext  string
		data []byte
	}{
		{".shp", shp},
		{".dbf", dbf},
	} {
		w, err := zw.Create(name + member.ext)
		if err != nil {
			return nil, fmt.Errorf("create %s member: %w", member.ext, err)
		}
		if _, err := w.Write(member.data); err != nil {
			return nil, fmt.Errorf("write %s member: %w", member.ext, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}

func writeShp(records []Record) ([]byte, error) {
	var body bytes.Buffer
	for i, rec := range records {
		content, err := encodeShpContent(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		var header [8]byte
		binary.BigEndian.PutUint32(header[0:4], uint32(i+1))
		binary.BigEndian.PutUint32(header[4:8], uint32(len(content)/2))
		body.Write(header[:])
		body.Write(content)
	}

	out := make([]byte, 100, 100+body.Len())
	binary.BigEndian.PutUint32(out[0:4], shpFileCode)
	binary.BigEndian.PutUint32(out[24:28], uint32((100+body.Len())/2))
	binary.LittleEndian.PutUint32(out[28:32], 1000) // format version
	if len(records) > 0 {
		binary.LittleEndian.PutUint32(out[32:36], uint32(records[0].ShapeType))
	}
	return append(out, body.Bytes()...), nil
}

func encodeShpContent(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	le := binary.LittleEndian

	writeUint32 := func(v uint32) {
		var b [4]byte
		le.PutUint32(b[:], v)
		buf.Write(b[:])
	}
	writeFloat64 := func(v float64) {
		var b [8]byte
		le.PutUint64(b[:], math.Float64bits(v))
		buf.Write(b[:])
	}

	writeUint32(uint32(rec.ShapeType))
	switch rec.ShapeType {
	case domain.ShapeTypePolygon, domain.ShapeTypePolygonZ, domain.ShapeTypePolygonM:
	default:
		return buf.Bytes(), nil
	}

	for _, v := range boundingBox(rec.Points) {
		writeFloat64(v)
	}
	parts := rec.Parts
	if len(parts) == 0 {
		parts = []int{0}
	}
	writeUint32(uint32(len(parts)))
	writeUint32(uint32(len(rec.Points)))
	for _, p := range parts {
		writeUint32(uint32(p))
	}
	for _, p := range rec.Points {
		writeFloat64(p.Lon)
		writeFloat64(p.Lat)
	}
	return buf.Bytes(), nil
}

func boundingBox(points []domain.Point) [4]float64 {
	if len(points) == 0 {
		return [4]float64{}
	}
	box := [4]float64{points[0].Lon, points[0].Lat, points[0].Lon, points[0].Lat}
	for _, p := range points[1:] {
		box[0] = math.Min(box[0], p.Lon)
		box[1] = math.Min(box[1], p.Lat)
		box[2] = math.Max(box[2], p.Lon)
		box[3] = math.Max(box[3], p.Lat)
	}
	return box
}

func writeDbf(records []Record) ([]byte, error) {
	fields := collectFields(records)
	if len(fields) == 0 {
		fields = []dbfField{{name: "ID", length: 1}}
	}

	headerSize := 32 + 32*len(fields) + 1
	recordSize := 1
	for _, f := range fields {
		recordSize += f.length
	}

	out := make([]byte, 32)
	out[0] = 0x03 // dBase III, no memo
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(records)))
	binary.LittleEndian.PutUint16(out[8:10], uint16(headerSize))
	binary.LittleEndian.PutUint16(out[10:12], uint16(recordSize))

	for _, f := range fields {
		desc := make([]byte, 32)
		if len(f.name) > 10 {
			return nil, fmt.Errorf("field name %q exceeds 10 characters", f.name)
		}
		copy(desc, f.name)
		desc[11] = 'C'
		desc[16] = byte(f.length)
		out = append(out, desc...)
	}
	out = append(out, 0x0D)

	for _, rec := range records {
		row := make([]byte, recordSize)
		row[0] = ' '
		pos := 1
		for _, f := range fields {
			padded := fmt.Sprintf("%-*s", f.length, rec.Attributes[f.name])
			copy(row[pos:pos+f.length], padded[:f.length])
			pos += f.length
		}
		out = append(out, row...)
	}
	return append(out, 0x1A), nil
}

// collectFields derives a sorted column set from the union of attribute keys,
// each sized to its widest value.
func collectFields(records []Record) []dbfField {
	widths := make(map[string]int)
	for _, rec := range records {
		for k, v := range rec.Attributes {
			w := len(v)
			if w < 1 {
				w = 1
			}
			if w > widths[k] {
				widths[k] = w
			}
		}
	}
	names := make([]string, 0, len(widths))
	for k := range widths {
		names = append(names, k)
	}
	sort.Strings(names)

	fields := make([]dbfField, len(names))
	for i, name := range names {
		fields[i] = dbfField{name: name, length: widths[name]}
	}
	return fields
}
