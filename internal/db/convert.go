package db

import (
	"math"
	"sort"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/passprotect-go/internal/models"
	"github.com/raphaelgruber/passprotect-go/internal/query"
)

// toRecord converts a decoded SurrealDB object into a Record with the id
// first and the remaining columns sorted.
func toRecord(obj map[string]any) models.Record {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		if k != query.IDColumn {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	rec := models.NewRecord(len(obj))
	if id, ok := obj[query.IDColumn]; ok {
		rec.Set(query.IDColumn, scalar(id))
	}
	for _, k := range keys {
		rec.Set(k, scalar(obj[k]))
	}
	return rec
}

// scalar flattens SurrealDB types into plain Go values.
func scalar(v any) any {
	switch x := v.(type) {
	case surrealmodels.RecordID:
		return scalar(x.ID)
	case *surrealmodels.RecordID:
		if x == nil {
			return nil
		}
		return scalar(x.ID)
	case surrealmodels.CustomDateTime:
		return x.Time.UTC()
	case time.Time:
		return x.UTC()
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x)
		}
		return x
	case int:
		return int64(x)
	default:
		return v
	}
}
