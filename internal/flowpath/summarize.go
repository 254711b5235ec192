package flowpath

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/USEPA-clone/nsink/internal/apperr"
	"github.com/USEPA-clone/nsink/internal/models"
	"github.com/USEPA-clone/nsink/internal/removal"
)

// Summarize applies removal along path in order. Consecutive hops through the
// same lake form one row and apply the lake removal once.
func Summarize(path *models.FlowPath, s *removal.Surfaces) ([]models.FlowPathRemoval, error) {
	if path.Len() == 0 {
		return []models.FlowPathRemoval{{Kind: models.KindOutlet, NOut: 100}}, nil
	}
	nout := 100.
	rows := make([]models.FlowPathRemoval, 0, path.Len())
	for i := range path.Len() {
		var row models.FlowPathRemoval
		switch seg := path.At(i).(type) {
		case models.OverlandCell:
			c := seg.Cell
			row = models.FlowPathRemoval{Kind: models.KindOverland, Cell: &c, RemovalPct: s.CellRemoval(c)}
		case models.StreamHop:
			nr, ok := s.Network[seg.COMID]
			if !ok {
				return nil, fmt.Errorf("flowpath: segment %d has no removal: %w", seg.COMID, apperr.ErrMissingAttribute)
			}
			row = models.FlowPathRemoval{Kind: models.KindStream, COMID: seg.COMID, RemovalPct: nr.RemovalPct}
		case models.LakeHop:
			if n := len(rows); n > 0 && rows[n-1].Kind == models.KindLake && rows[n-1].LakeCOMID == seg.LakeCOMID {
				rows[n-1].Merged = append(rows[n-1].Merged, seg.COMID)
				continue
			}
			lr, ok := s.Lakes[seg.LakeCOMID]
			if !ok {
				return nil, fmt.Errorf("flowpath: lake %d has no removal: %w", seg.LakeCOMID, apperr.ErrMissingAttribute)
			}
			row = models.FlowPathRemoval{
				Kind: models.KindLake, COMID: seg.COMID, LakeCOMID: seg.LakeCOMID,
				Merged: []int64{seg.COMID}, RemovalPct: lr.RemovalPct,
			}
		default:
			return nil, fmt.Errorf("flowpath: unknown segment %T at %d", seg, i)
		}
		nout *= 1 - row.RemovalPct/100
		row.Position = len(rows)
		row.NOut = nout
		rows = append(rows, row)
	}
	return rows, nil
}

// CumulativeRemoval returns the percent of nitrogen removed over the path.
func CumulativeRemoval(rows []models.FlowPathRemoval) float64 {
	if len(rows) == 0 {
		return 0
	}
	m := slices.MinFunc(rows, func(a, b models.FlowPathRemoval) int { return cmp.Compare(a.NOut, b.NOut) })
	return 100 - m.NOut
}
