package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// MySQL error numbers. Only 1062 (duplicate key) is absorbed by the
// idempotent insert paths; 1452 (FK violation) and every other integrity
// error still fails the caller.
const (
	mysqlErrDuplicateEntry uint16 = 1062
)

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlErrDuplicateEntry
}
