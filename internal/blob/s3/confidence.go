package s3blob

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alanyoungcy/weatherbot/internal/domain"
	"github.com/alanyoungcy/weatherbot/internal/strategy"
)

// LoadConfidenceTable reads and validates the JSON table stored at key. A key
// ending in "/" is a prefix: the most recently written .json object under it
// is loaded.
func LoadConfidenceTable(ctx context.Context, r domain.BlobReader, key string) (strategy.ConfidenceTable, error) {
	if strings.HasSuffix(key, "/") {
		latest, err := newestTable(ctx, r, key)
		if err != nil {
			return strategy.ConfidenceTable{}, err
		}
		key = latest
	}

	body, err := r.Get(ctx, key)
	if err != nil {
		return strategy.ConfidenceTable{}, err
	}
	defer body.Close()

	var table strategy.ConfidenceTable
	if err := json.NewDecoder(body).Decode(&table); err != nil {
		return strategy.ConfidenceTable{}, fmt.Errorf("s3blob: decode %s: %w", key, err)
	}
	if err := table.Validate(); err != nil {
		return strategy.ConfidenceTable{}, fmt.Errorf("s3blob: %s: %w", key, err)
	}
	return table, nil
}

func newestTable(ctx context.Context, r domain.BlobReader, prefix string) (string, error) {
	infos, err := r.List(ctx, prefix)
	if err != nil {
		return "", err
	}
	var newest domain.BlobInfo
	for _, info := range infos {
		if !strings.HasSuffix(info.Path, ".json") {
			continue
		}
		if newest.Path == "" || info.LastModified.After(newest.LastModified) ||
			(info.LastModified.Equal(newest.LastModified) && info.Path > newest.Path) {
			newest = info
		}
	}
	if newest.Path == "" {
		return "", fmt.Errorf("s3blob: no table under %s: %w", prefix, domain.ErrNotFound)
	}
	return newest.Path, nil
}
