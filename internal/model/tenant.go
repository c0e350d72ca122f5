package model

import "time"

// TenantKind identifies the database engine backing a tenant. It is a closed
// set: adding a kind means adding a provisioner for it.
type TenantKind string

const (
	KindPostgres TenantKind = "postgresql"
	KindMySQL    TenantKind = "mysql"
	KindMongoDB  TenantKind = "mongodb"
	KindSQLite   TenantKind = "sqlite"
	KindFirebase TenantKind = "firebase"
)

// Valid reports whether k is one of the known engine kinds.
func (k TenantKind) Valid() bool {
	switch k {
	case KindPostgres, KindMySQL, KindMongoDB, KindSQLite, KindFirebase:
		return true
	}
	return false
}

// DatabaseInstance is the control-plane record for one provisioned database
// tenant. Exactly one record exists per live engine-level role/database pair.
//
// Password is stored in the clear: the terminal session manager needs it to
// start psql sessions long after provisioning.
type DatabaseInstance struct {
	ID           string     `db:"id" json:"id"`
	UserID       string     `db:"user_id" json:"user_id"`
	Kind         TenantKind `db:"kind" json:"kind"`
	Username     string     `db:"username" json:"username"`
	DatabaseName string     `db:"database_name" json:"database_name"`
	Password     string     `db:"password" json:"-"`
	URI          string     `db:"uri" json:"uri"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}
