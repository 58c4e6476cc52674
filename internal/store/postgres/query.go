package postgres

import (
	"fmt"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

// listFilter appends the City/Since/Until/Limit/Offset clauses of opts to a
// query that already ends in a WHERE clause. timeCol is the column Since and
// Until compare against; results are ordered newest first.
func listFilter(query string, args []any, opts domain.ListOpts, timeCol string) (string, []any) {
	argIdx := len(args) + 1

	if opts.City != "" {
		query += fmt.Sprintf(" AND city = $%d", argIdx)
		args = append(args, opts.City)
		argIdx++
	}
	if opts.Since != nil {
		query += fmt.Sprintf(" AND %s >= $%d", timeCol, argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND %s <= $%d", timeCol, argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY %s DESC", timeCol)

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}
