// Package migrations содержит встраиваемые SQL-миграции схемы БД.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
