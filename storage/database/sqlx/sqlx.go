// Package sqlxrepos implements the core repositories on PostgreSQL via sqlx.
package sqlxrepos

import "github.com/lib/pq"

func pqStringArray(vals []string) pq.StringArray {
	if vals == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(vals)
}
