package querybuilder

import (
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
)

// InsertModel builds a single-row insert from the `db`-tagged exported fields
// of model, in field order.
func InsertModel(table string, model any, suffix string) (string, []any, error) {
	cols, vals, err := dbFields(model)
	if err != nil {
		return "", nil, err
	}
	return insert(table, cols, vals, suffix)
}

// Columns lists the `db` column names of model, in field order.
func Columns(model any) ([]string, error) {
	cols, _, err := dbFields(model)
	return cols, err
}

func dbFields(model any) ([]string, []any, error) {
	v := reflect.ValueOf(model)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, nil, errors.New("model cannot be nil")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, nil, errors.Newf("model must be struct, got %s", v.Kind())
	}

	var (
		cols []string
		vals []any
	)
	for _, field := range reflect.VisibleFields(v.Type()) {
		if !field.IsExported() || field.Anonymous {
			continue
		}
		name, _, _ := strings.Cut(field.Tag.Get("db"), ",")
		if name = strings.TrimSpace(name); name == "" || name == "-" {
			continue
		}
		cols = append(cols, name)
		vals = append(vals, v.FieldByIndex(field.Index).Interface())
	}
	if len(cols) == 0 {
		return nil, nil, errors.New("model has no db columns")
	}
	return cols, vals, nil
}
