package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Dump is the log-friendly view of an error chain.
type Dump struct {
	Message string
	Code    Code
	// Step is the merge step a composite merge failure carries in its details.
	Step  string
	Chain []string
	PG    *PGInfo
}

// PGInfo is the subset of a postgres error worth logging. Both pgx and lib/pq
// errors are recognised.
type PGInfo struct {
	Code       string
	Constraint string
	Table      string
	Detail     string
}

// DumpOf walks err and collects its code, merge step, wrapped chain and any
// postgres error underneath.
func DumpOf(err error) Dump {
	if err == nil {
		return Dump{}
	}
	d := Dump{Message: err.Error(), PG: pgInfo(err)}
	if te := As(err); te != nil {
		d.Code = te.Code()
		if details, ok := te.Details().(map[string]any); ok {
			d.Step, _ = details["step"].(string)
		}
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	return d
}

// Fields renders the dump as logger fields.
func (d Dump) Fields() map[string]any {
	fields := map[string]any{
		"error_code":  string(d.Code),
		"error_chain": d.Chain,
	}
	if d.Step != "" {
		fields["step"] = d.Step
	}
	if d.PG != nil {
		fields["pg_code"] = d.PG.Code
		fields["pg_constraint"] = d.PG.Constraint
		fields["pg_table"] = d.PG.Table
		fields["pg_detail"] = d.PG.Detail
	}
	return fields
}

func pgInfo(err error) *PGInfo {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &PGInfo{Code: pgxErr.Code, Constraint: pgxErr.ConstraintName, Table: pgxErr.TableName, Detail: pgxErr.Detail}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &PGInfo{Code: string(pqErr.Code), Constraint: pqErr.Constraint, Table: pqErr.Table, Detail: pqErr.Detail}
	}
	return nil
}
