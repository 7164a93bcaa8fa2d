// Package jsondump implements ingestion.Source by reading a
// content-addressed OSM dump serialised as a single JSON array. Each
// element carries its bit-packed encoded id per spec's ingestion wire
// format (types.DecodeElementID).
package jsondump

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/leynos/wildside-core/pkg/ingestion"
	"github.com/leynos/wildside-core/pkg/types"
)

type record struct {
	ID   uint64            `json:"id"`
	Lng  float64           `json:"lng"`
	Lat  float64           `json:"lat"`
	Tags map[string]string `json:"tags"`
}

// Reader implements ingestion.Source against the local filesystem.
type Reader struct{}

func NewReader() Reader { return Reader{} }

func (Reader) Read(ctx context.Context, sourceFilePath string) (ingestion.SourceReport, error) {
	f, err := os.Open(sourceFilePath)
	if err != nil {
		return ingestion.SourceReport{}, fmt.Errorf("jsondump: open %s: %w", sourceFilePath, err)
	}
	defer f.Close()

	var records []record
	if err := json.NewDecoder(f).Decode(&records); err != nil {
		return ingestion.SourceReport{}, fmt.Errorf("jsondump: decode %s: %w", sourceFilePath, err)
	}

	pois := make([]ingestion.SourcePoi, 0, len(records))
	for _, rec := range records {
		elementType, elementID, err := types.DecodeElementID(rec.ID)
		if err != nil {
			return ingestion.SourceReport{}, fmt.Errorf("jsondump: %s: %w", sourceFilePath, err)
		}
		pois = append(pois, ingestion.SourcePoi{
			ElementType: elementType,
			ElementID:   elementID,
			Lng:         rec.Lng,
			Lat:         rec.Lat,
			Tags:        rec.Tags,
		})
	}
	return ingestion.SourceReport{POIs: pois}, nil
}
