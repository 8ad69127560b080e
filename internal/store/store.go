// Package store is the persistence adapter. It is the only package that
// touches the relational store; everything else exchanges plain data.
package store

import (
	"github.com/atlasbanco/prospect-engine/internal/errs"
	"github.com/atlasbanco/prospect-engine/internal/model"
)

// kindTables maps each candidate kind to its table. The three pipelines
// are persisted independently; clients is the conversion target collection.
var kindTables = map[model.Kind]string{
	model.KindProspect:  "prospects",
	model.KindCPFClient: "cpf_clients",
	model.KindUnbanked:  "unbanked_companies",
	model.KindClient:    "clients",
}

// tableFor resolves the table for a kind.
func tableFor(kind model.Kind) (string, error) {
	t, ok := kindTables[kind]
	if !ok {
		return "", errs.Validationf("unknown candidate kind %q", kind)
	}
	return t, nil
}
