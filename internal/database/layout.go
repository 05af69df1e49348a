package database

import (
	"fmt"
	"regexp"

	"github.com/ddbiasio/Data-Collection-Pipeline/internal/pagedef"
	"github.com/ddbiasio/Data-Collection-Pipeline/internal/recipe"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Layout maps records onto one parent table and one child table per list
// field.
type Layout struct {
	Table    string
	IDColumn string
	// Columns are the scalar fields stored in the parent table next to the
	// id, uuid, url and image url columns.
	Columns  []string
	Children []Child
}

// Child is the table holding the entries of one list field. Every row
// carries the parent id and the position of the entry in the list.
type Child struct {
	Table   string
	Field   string
	Columns []string
}

// Index is the column indexed together with the parent id.
func (c Child) Index() string {
	return c.Columns[0]
}

// LayoutFromDefinition derives the layout from a page definition: scalar
// keys become parent columns and list keys become child tables of the
// same name.
func LayoutFromDefinition(def pagedef.Definition, table string) (*Layout, error) {
	l := &Layout{Table: table, IDColumn: recipe.KeyItemID}
	for _, f := range def {
		switch s := f.Shape.(type) {
		case pagedef.Scalar:
			l.Columns = append(l.Columns, f.Key)
		case pagedef.ListOfScalars:
			l.Children = append(l.Children, Child{Table: f.Key, Field: f.Key, Columns: []string{s.ItemKey}})
		case pagedef.ListOfPairs:
			c := Child{Table: f.Key, Field: f.Key}
			for _, pf := range s.Fields {
				c.Columns = append(c.Columns, pf.Name)
			}
			l.Children = append(l.Children, c)
		default:
			return nil, fmt.Errorf("field '%s': unsupported shape %T", f.Key, f.Shape)
		}
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// Validate checks that all table and column names are plain identifiers
// and that no name is used twice.
func (l *Layout) Validate() error {
	if l.IDColumn == "" {
		l.IDColumn = recipe.KeyItemID
	}
	tables := map[string]bool{}
	for _, t := range append([]string{l.Table}, childTables(l.Children)...) {
		if !identifier.MatchString(t) {
			return fmt.Errorf("invalid table name '%s'", t)
		}
		if tables[t] {
			return fmt.Errorf("table '%s' is used more than once", t)
		}
		tables[t] = true
	}
	if err := checkColumns(l.Table, append(l.parentFixed(), l.Columns...)); err != nil {
		return err
	}
	for _, c := range l.Children {
		if len(c.Columns) == 0 {
			return fmt.Errorf("table '%s' has no columns", c.Table)
		}
		if err := checkColumns(c.Table, append([]string{l.IDColumn, "position"}, c.Columns...)); err != nil {
			return err
		}
	}
	return nil
}

func (l *Layout) parentFixed() []string {
	return []string{l.IDColumn, recipe.KeyItemUUID, recipe.KeyURL, recipe.KeyImageURLs}
}

func childTables(children []Child) []string {
	tables := make([]string, 0, len(children))
	for _, c := range children {
		tables = append(tables, c.Table)
	}
	return tables
}

func checkColumns(table string, columns []string) error {
	seen := map[string]bool{}
	for _, c := range columns {
		if !identifier.MatchString(c) {
			return fmt.Errorf("invalid column name '%s' in table '%s'", c, table)
		}
		if seen[c] {
			return fmt.Errorf("column '%s' is used more than once in table '%s'", c, table)
		}
		seen[c] = true
	}
	return nil
}

// quote returns name as a quoted sql identifier. Names are validated
// before they get here.
func quote(name string) string {
	return `"` + name + `"`
}
