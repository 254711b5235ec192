// Package ingest reads a prepared HUC12 bundle directory into typed layers.
//
// A bundle holds a manifest, GeoJSON vector layers and ESRI ASCII rasters
// already clipped to the watershed and aligned to one grid:
//
//	manifest.yaml      huc, crs
//	boundary.geojson   watershed polygon
//	streams.geojson    flowlines with NHDPlus attributes and EROM flow
//	lakes.geojson      waterbodies with morphology (optional)
//	soils.geojson      SSURGO map units with hydric percentage (optional)
//	fdr.asc            D8 flow direction
//	landcover.asc      NLCD land cover
//	impervious.asc     percent impervious surface
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"gopkg.in/yaml.v3"

	"github.com/USEPA-clone/nsink/internal/apperr"
	"github.com/USEPA-clone/nsink/internal/checksum"
	"github.com/USEPA-clone/nsink/internal/geodata"
	"github.com/USEPA-clone/nsink/internal/models"
	"github.com/USEPA-clone/nsink/internal/raster"
	"github.com/USEPA-clone/nsink/internal/storage"
)

// Bundle file names.
const (
	FileManifest   = storage.ManifestFile
	FileBoundary   = "boundary.geojson"
	FileStreams    = "streams.geojson"
	FileLakes      = "lakes.geojson"
	FileSoils      = "soils.geojson"
	FileFlowDir    = "fdr.asc"
	FileLandCover  = "landcover.asc"
	FileImpervious = "impervious.asc"
)

// Manifest describes the bundle.
type Manifest struct {
	HUC string `yaml:"huc"`
	CRS string `yaml:"crs"`
}

// Bundle is a decoded bundle directory.
type Bundle struct {
	Manifest Manifest
	Prepared *geodata.Prepared
	// Checksums maps each file that was read to its SHA-256 digest.
	Checksums map[string]string
}

// Source reads bundle files by name. *storage.FS satisfies it.
type Source interface {
	Read(name string) ([]byte, error)
}

type reader struct {
	src       Source
	checksums map[string]string
}

func (r *reader) read(name string, optional bool) ([]byte, error) {
	data, err := r.src.Read(name)
	if errors.Is(err, fs.ErrNotExist) && optional {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	r.checksums[name] = checksum.Sum(data)
	return data, nil
}

// Dir reads and validates the bundle in dir.
func Dir(dir string) (*Bundle, error) {
	src, err := storage.NewFS(dir)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	return Load(src)
}

// Load reads and validates the bundle exposed by src.
func Load(src Source) (*Bundle, error) {
	r := &reader{src: src, checksums: make(map[string]string)}
	b := &Bundle{Checksums: r.checksums}

	data, err := r.read(FileManifest, false)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&b.Manifest); err != nil {
		return nil, fmt.Errorf("ingest: %s: %w", FileManifest, err)
	}

	p := &geodata.Prepared{
		HUC:        b.Manifest.HUC,
		Flow:       make(map[int64]models.FlowRecord),
		Morphology: make(map[int64]models.LakeMorphology),
	}
	rasters := []struct {
		name string
		dst  **raster.Raster
	}{
		{FileFlowDir, &p.FlowDir},
		{FileLandCover, &p.LandCover},
		{FileImpervious, &p.Impervious},
	}
	for _, l := range rasters {
		data, err := r.read(l.name, false)
		if err != nil {
			return nil, err
		}
		ras, err := raster.ReadASCII(bytes.NewReader(data), b.Manifest.CRS)
		if err != nil {
			return nil, fmt.Errorf("ingest: %s: %w", l.name, err)
		}
		*l.dst = ras
	}
	p.Grid = p.FlowDir.Grid

	if p.Boundary, err = r.boundary(); err != nil {
		return nil, err
	}
	if err := r.streams(p); err != nil {
		return nil, err
	}
	if err := r.lakes(p); err != nil {
		return nil, err
	}
	if err := r.soils(p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	b.Prepared = p
	return b, nil
}

func (r *reader) features(name string, optional bool) ([]*geojson.Feature, error) {
	data, err := r.read(name, optional)
	if err != nil || data == nil {
		return nil, err
	}
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("ingest: %s: %w", name, err)
	}
	return fc.Features, nil
}

func (r *reader) boundary() (*geom.Polygon, error) {
	feats, err := r.features(FileBoundary, false)
	if err != nil {
		return nil, err
	}
	if len(feats) == 0 {
		return nil, fmt.Errorf("ingest: %s has no features: %w", FileBoundary, apperr.ErrMissingAttribute)
	}
	switch g := feats[0].Geometry.(type) {
	case *geom.Polygon:
		return g, nil
	case *geom.MultiPolygon:
		if g.NumPolygons() == 1 {
			return g.Polygon(0), nil
		}
	}
	return nil, fmt.Errorf("ingest: %s: boundary must be a single polygon", FileBoundary)
}

func (r *reader) streams(p *geodata.Prepared) error {
	feats, err := r.features(FileStreams, false)
	if err != nil {
		return err
	}
	for i, f := range feats {
		ls, ok := f.Geometry.(*geom.LineString)
		if !ok {
			if ml, isMulti := f.Geometry.(*geom.MultiLineString); isMulti && ml.NumLineStrings() == 1 {
				ls, ok = ml.LineString(0), true
			}
		}
		if !ok {
			return fmt.Errorf("ingest: stream feature %d: geometry %T is not a line", i, f.Geometry)
		}
		a := attrs(f.Properties)
		s := models.StreamSegment{
			Geometry:    ls,
			StreamOrder: int(a.num("StreamOrde", "STREAMORDE", "stream_order")),
			LakeCOMID:   a.id("WBAREACOMI", "lake_comid"),
			FType:       ftype(a.str("FTYPE", "ftype")),
			OffNetwork:  a.flag("OffNetwork", "off_network"),
		}
		var ok1, ok2, ok3 bool
		s.COMID, ok1 = a.requiredID("COMID", "comid")
		s.FromNode, ok2 = a.requiredID("FROMNODE", "from_node")
		s.ToNode, ok3 = a.requiredID("TONODE", "to_node")
		if !ok1 || !ok2 || !ok3 {
			return fmt.Errorf("ingest: stream feature %d needs COMID, FROMNODE and TONODE: %w", i, apperr.ErrMissingAttribute)
		}
		p.Streams = append(p.Streams, s)
		if a.has("TOTMA", "totma") || a.has("QCMS", "qcms") {
			p.Flow[s.COMID] = models.FlowRecord{COMID: s.COMID, TOTMA: a.num("TOTMA", "totma"), QCMS: a.num("QCMS", "qcms")}
		}
	}
	return nil
}

func (r *reader) lakes(p *geodata.Prepared) error {
	feats, err := r.features(FileLakes, true)
	if err != nil {
		return err
	}
	for i, f := range feats {
		poly, err := polygon(f.Geometry)
		if err != nil {
			return fmt.Errorf("ingest: lake feature %d: %w", i, err)
		}
		a := attrs(f.Properties)
		comid, ok := a.requiredID("COMID", "comid")
		if !ok {
			return fmt.Errorf("ingest: lake feature %d needs COMID: %w", i, apperr.ErrMissingAttribute)
		}
		p.Lakes = append(p.Lakes, models.Lake{COMID: comid, Geometry: poly, OffNetwork: a.flag("OffNetwork", "off_network")})
		if a.has("MeanDepth", "LakeVolume", "MaxDepth", "LakeArea") {
			p.Morphology[comid] = models.LakeMorphology{
				COMID:     comid,
				MeanDepth: a.num("MeanDepth"),
				Volume:    a.num("LakeVolume"),
				MaxDepth:  a.num("MaxDepth"),
				Area:      a.num("LakeArea"),
			}
		}
	}
	return nil
}

func (r *reader) soils(p *geodata.Prepared) error {
	feats, err := r.features(FileSoils, true)
	if err != nil {
		return err
	}
	for i, f := range feats {
		var mp *geom.MultiPolygon
		switch g := f.Geometry.(type) {
		case *geom.MultiPolygon:
			mp = g
		case *geom.Polygon:
			mp = geom.NewMultiPolygon(g.Layout())
			if err := mp.Push(g); err != nil {
				return fmt.Errorf("ingest: soil feature %d: %w", i, err)
			}
		default:
			return fmt.Errorf("ingest: soil feature %d: geometry %T is not a polygon", i, f.Geometry)
		}
		a := attrs(f.Properties)
		mukey, ok := a.requiredID("MUKEY", "mukey")
		if !ok || !a.has("hydric_pct", "HYDRIC_PCT", "hydclprs") {
			return fmt.Errorf("ingest: soil feature %d needs MUKEY and hydric_pct: %w", i, apperr.ErrMissingAttribute)
		}
		p.Soils = append(p.Soils, models.HydricSoilUnit{MUKEY: mukey, Geometry: mp, HydricPct: a.num("hydric_pct", "HYDRIC_PCT", "hydclprs")})
	}
	return nil
}

func polygon(g geom.T) (*geom.Polygon, error) {
	switch g := g.(type) {
	case *geom.Polygon:
		return g, nil
	case *geom.MultiPolygon:
		if g.NumPolygons() == 1 {
			return g.Polygon(0), nil
		}
	}
	return nil, fmt.Errorf("geometry %T is not a single polygon", g)
}

func ftype(v string) models.FType {
	switch v {
	case "StreamRiver", "stream":
		return models.FTypeStream
	case "ArtificialPath", "artificial_path":
		return models.FTypeArtificial
	case "CanalDitch", "canal":
		return models.FTypeCanal
	}
	return models.FTypeUnknown
}
