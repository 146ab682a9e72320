package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Diagnostic flattens an error chain into log fields. It never reaches clients.
type Diagnostic struct {
	Message    string
	Code       Code
	Reason     string
	Chain      []string
	SQLState   string
	Constraint string
	Table      string
	Detail     string
}

func Diagnose(err error) Diagnostic {
	if err == nil {
		return Diagnostic{}
	}
	d := Diagnostic{Message: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
		d.Reason = ReasonOf(typed)
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T", e))
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		d.SQLState, d.Constraint, d.Table, d.Detail = pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.Detail
	case errors.As(err, &pqErr):
		d.SQLState, d.Constraint, d.Table, d.Detail = string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Detail
	}
	return d
}

// Fields returns the non-empty parts of d keyed for structured logging.
func (d Diagnostic) Fields() map[string]any {
	fields := map[string]any{"error": d.Message}
	set := func(key, value string) {
		if value != "" {
			fields[key] = value
		}
	}
	set("error_code", string(d.Code))
	set("deny_reason", d.Reason)
	set("sql_state", d.SQLState)
	set("sql_constraint", d.Constraint)
	set("sql_table", d.Table)
	set("sql_detail", d.Detail)
	if len(d.Chain) > 1 {
		fields["error_chain"] = d.Chain
	}
	return fields
}
