// Package rowmap maps the column names a driver hands back onto one
// canonical snake_case name per field.
package rowmap

import (
	"sort"
	"strings"
)

// aliases maps every known spelling, lower-cased, to the canonical column.
var aliases = map[string]string{
	"id":                  "id",
	"date":                "date",
	"type":                "type",
	"amount":              "amount",
	"description":         "description",
	"projectid":           "project_id",
	"project_id":          "project_id",
	"createdby":           "created_by",
	"created_by":          "created_by",
	"employeeid":          "employee_id",
	"employee_id":         "employee_id",
	"fileurl":             "file_url",
	"file_url":            "file_url",
	"filetype":            "file_type",
	"file_type":           "file_type",
	"archived":            "archived",
	"isarchived":          "archived",
	"is_archived":         "archived",
	"createdat":           "created_at",
	"created_at":          "created_at",
	"updatedat":           "updated_at",
	"updated_at":          "updated_at",
	"startdate":           "start_date",
	"start_date":          "start_date",
	"enddate":             "end_date",
	"end_date":            "end_date",
	"fullname":            "full_name",
	"full_name":           "full_name",
	"permissions":         "permissions",
	"isactive":            "is_active",
	"is_active":           "is_active",
	"expensetypeid":       "expense_type_id",
	"expense_type_id":     "expense_type_id",
	"hiredate":            "hire_date",
	"hire_date":           "hire_date",
	"assignedprojectid":   "assigned_project_id",
	"assigned_project_id": "assigned_project_id",
}

// secretColumns never leave the source store.
var secretColumns = map[string]struct{}{
	"password":      {},
	"password_hash": {},
	"passwordhash":  {},
	"secret":        {},
	"api_key":       {},
	"apikey":        {},
	"token":         {},
}

// Canonical returns the canonical name for col. Unknown names are
// lower-cased and camelCase boundaries become underscores.
func Canonical(col string) string {
	if c, ok := aliases[strings.ToLower(col)]; ok {
		return c
	}
	return toSnake(col)
}

// Normalize returns a copy of row with canonical keys. When several spellings
// of one field are present the canonical spelling wins unless it is nil;
// otherwise the first non-nil alias in byte order wins.
func Normalize(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	var spellings []string
	for k, v := range row {
		if k != Canonical(k) {
			spellings = append(spellings, k)
			continue
		}
		out[k] = v
	}
	sort.Strings(spellings)
	for _, k := range spellings {
		c := Canonical(k)
		if existing, ok := out[c]; ok && existing != nil {
			continue
		}
		out[c] = row[k]
	}
	return out
}

// NormalizeAll normalizes every row.
func NormalizeAll(rows []map[string]any) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = Normalize(r)
	}
	return out
}

// StripSecrets drops credential columns from already normalized rows.
func StripSecrets(rows []map[string]any) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		clean := make(map[string]any, len(r))
		for k, v := range r {
			if _, secret := secretColumns[strings.ToLower(k)]; secret {
				continue
			}
			clean[k] = v
		}
		out[i] = clean
	}
	return out
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
