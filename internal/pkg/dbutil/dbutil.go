package dbutil

import (
	"github.com/jmoiron/sqlx"
)

// Finalize rebinds a gendry-built ("?") query into postgres placeholders.
func Finalize(query string, args []interface{}) (string, []interface{}) {
	return sqlx.Rebind(sqlx.DOLLAR, query), args
}
