package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/USEPA-clone/nsink/internal/geodata"
	"github.com/USEPA-clone/nsink/internal/ingest"
	"github.com/USEPA-clone/nsink/internal/models"
	"github.com/USEPA-clone/nsink/internal/raster"
)

var nhdFType = map[models.FType]string{
	models.FTypeStream:     "StreamRiver",
	models.FTypeArtificial: "ArtificialPath",
	models.FTypeCanal:      "CanalDitch",
}

// WriteFile writes data to dir/name.
func WriteFile(t testing.TB, dir, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

// WriteFeatures writes feats to dir/name as a GeoJSON feature collection.
func WriteFeatures(t testing.TB, dir, name string, feats []*geojson.Feature) {
	t.Helper()
	data, err := json.Marshal(&geojson.FeatureCollection{Features: feats})
	if err != nil {
		t.Fatal(err)
	}
	WriteFile(t, dir, name, data)
}

// WriteRaster writes r to dir/name as an ESRI ASCII grid.
func WriteRaster(t testing.TB, dir, name string, r *raster.Raster) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := raster.WriteASCII(f, r); err != nil {
		t.Fatal(err)
	}
}

// WriteBundle lays p out as a bundle in dir using NHDPlus attribute names.
// dir is created when missing.
func WriteBundle(t testing.TB, dir string, p *geodata.Prepared) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	WriteFile(t, dir, ingest.FileManifest, []byte("huc: \""+p.HUC+"\"\ncrs: "+p.Grid.CRS+"\n"))
	WriteRaster(t, dir, ingest.FileFlowDir, p.FlowDir)
	WriteRaster(t, dir, ingest.FileLandCover, p.LandCover)
	WriteRaster(t, dir, ingest.FileImpervious, p.Impervious)
	WriteFeatures(t, dir, ingest.FileBoundary, []*geojson.Feature{{Geometry: p.Boundary, Properties: map[string]any{}}})

	var streams []*geojson.Feature
	for _, s := range p.Streams {
		props := map[string]any{
			"COMID": s.COMID, "FROMNODE": s.FromNode, "TONODE": s.ToNode,
			"StreamOrde": s.StreamOrder, "WBAREACOMI": s.LakeCOMID,
			"FTYPE": nhdFType[s.FType], "OffNetwork": s.OffNetwork,
		}
		if f, ok := p.Flow[s.COMID]; ok {
			props["TOTMA"], props["QCMS"] = f.TOTMA, f.QCMS
		}
		streams = append(streams, &geojson.Feature{Geometry: s.Geometry, Properties: props})
	}
	WriteFeatures(t, dir, ingest.FileStreams, streams)

	var lakes []*geojson.Feature
	for _, l := range p.Lakes {
		m := p.Morphology[l.COMID]
		lakes = append(lakes, &geojson.Feature{Geometry: l.Geometry, Properties: map[string]any{
			"COMID": l.COMID, "MeanDepth": m.MeanDepth, "LakeVolume": m.Volume,
			"MaxDepth": m.MaxDepth, "LakeArea": m.Area,
		}})
	}
	WriteFeatures(t, dir, ingest.FileLakes, lakes)

	var soils []*geojson.Feature
	for _, s := range p.Soils {
		soils = append(soils, &geojson.Feature{Geometry: s.Geometry, Properties: map[string]any{
			"MUKEY": s.MUKEY, "hydric_pct": s.HydricPct,
		}})
	}
	WriteFeatures(t, dir, ingest.FileSoils, soils)
}
