package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"clubapi.org/internal/ids"
	"clubapi.org/internal/store"
)

// pgDocuments stores one logical collection inside the shared documents
// table: (collection, id, data jsonb). The document id is mirrored into the
// data under "_id" so reads return self-contained documents.
type pgDocuments struct {
	db         *sql.DB
	collection string
}

func (d *pgDocuments) Insert(ctx context.Context, doc store.Document) (store.Document, error) {
	stored := doc.Clone()
	if stored.ID() == "" {
		stored[store.IDField] = ids.New()
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, err
	}
	_, err = d.db.ExecContext(ctx, `
		insert into documents(collection, id, data) values ($1,$2,$3)
	`, d.collection, stored.ID(), data)
	if isUniqueViolation(err) {
		return nil, store.ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (d *pgDocuments) Find(ctx context.Context, id string) (store.Document, error) {
	var data []byte
	err := d.db.QueryRowContext(ctx, `
		select data from documents where collection=$1 and id=$2
	`, d.collection, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return unmarshalDocument(data)
}

func (d *pgDocuments) List(ctx context.Context, filter store.Filter) ([]store.Document, error) {
	where, args := filterSQL(filter, []any{d.collection})
	query := `select d.data from documents d where d.collection=$1` + where + ` order by d.id`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Document
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		doc, err := unmarshalDocument(data)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (d *pgDocuments) Replace(ctx context.Context, id string, doc store.Document) error {
	stored := doc.Clone()
	stored[store.IDField] = id
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	res, err := d.db.ExecContext(ctx, `
		update documents set data=$3 where collection=$1 and id=$2
	`, d.collection, id, data)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (d *pgDocuments) Update(ctx context.Context, id string, updates store.Document) (store.Document, error) {
	patch, err := json.Marshal(updates)
	if err != nil {
		return nil, err
	}
	// jsonb || is a per-key overwrite, matching store.Merge; the id mirror is
	// reasserted so a patch cannot move the document.
	var data []byte
	err = d.db.QueryRowContext(ctx, `
		update documents
		set data = data || $3::jsonb || jsonb_build_object('_id', $2::text)
		where collection=$1 and id=$2
		returning data
	`, d.collection, id, patch).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return unmarshalDocument(data)
}

func (d *pgDocuments) Delete(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `
		delete from documents where collection=$1 and id=$2
	`, d.collection, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func unmarshalDocument(data []byte) (store.Document, error) {
	var doc store.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// filterSQL renders a store.Filter as an AND of OR-groups over the aliased
// documents row "d". Field names and values travel as parameters only.
func filterSQL(f store.Filter, args []any) (string, []any) {
	var groups []string
	for _, clause := range f.Clauses {
		var ors []string
		for _, cond := range clause {
			if cond.Exists != nil {
				ex := cond.Exists
				args = append(args, ex.Collection, ex.RemoteField, ex.LocalField, ex.Field, fmt.Sprint(ex.Value))
				n := len(args)
				ors = append(ors, fmt.Sprintf(
					`exists (select 1 from documents r where r.collection=$%d and r.data->>($%d::text) = d.data->>($%d::text) and r.data->>($%d::text) = $%d)`,
					n-4, n-3, n-2, n-1, n))
				continue
			}
			args = append(args, cond.Field, fmt.Sprint(cond.Value))
			n := len(args)
			ors = append(ors, fmt.Sprintf(`d.data->>($%d::text) = $%d`, n-1, n))
		}
		if len(ors) > 0 {
			groups = append(groups, "("+strings.Join(ors, " or ")+")")
		}
	}
	if len(groups) == 0 {
		return "", args
	}
	return " and " + strings.Join(groups, " and "), args
}
