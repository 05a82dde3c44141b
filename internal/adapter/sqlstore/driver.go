package sqlstore

import (
	"database/sql"
	"regexp"
	"sync"

	"github.com/mattn/go-sqlite3"
)

// DriverName is the database/sql driver registered by this package. It is
// go-sqlite3 with a regexp(pattern, value) function installed on every
// connection, which backs the REGEXP operator.
const DriverName = "sqlite3_odm"

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("regexp", sqlRegexp, true)
		},
	})
}

var patterns sync.Map // string -> *regexp.Regexp

// sqlRegexp implements "value REGEXP pattern". Non-string values never
// match.
func sqlRegexp(pattern string, v any) (bool, error) {
	s, ok := v.(string)
	if !ok {
		return false, nil
	}
	re, err := compilePattern(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(s), nil
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patterns.Store(pattern, re)
	return re, nil
}
