package render

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wurt83ow/tablekeeper/pkg/models"
	"github.com/wurt83ow/tablekeeper/pkg/tablestate"
)

func TestPage_Golden(t *testing.T) {
	nameEmail := []models.Column{{Key: "name", Label: "Name"}, {Key: "email", Label: "Email"}}

	tests := []struct {
		name    string
		columns []models.Column
		page    models.Page
		win     tablestate.PageWindow
	}{
		{
			name:    "page",
			columns: nameEmail,
			page: models.Page{Data: []models.Entry{
				models.NewEntry(1, map[string]string{"name": "Ann", "email": "ann@x.io", "role": "Admin"}),
				models.NewEntry(12, map[string]string{"name": "Bob B", "email": "bob@x.io"}),
			}, Total: 2},
			win: tablestate.NewPageWindow(1, 20, 2),
		},
		{
			name:    "empty",
			columns: nameEmail,
			page:    models.Page{Data: []models.Entry{}},
			win:     tablestate.NewPageWindow(1, 20, 0),
		},
		{
			name:    "second_page",
			columns: []models.Column{{Key: "name", Label: "Name"}},
			page: models.Page{Data: []models.Entry{
				models.NewEntry(6, map[string]string{"name": "F"}),
				models.NewEntry(7, map[string]string{"name": "G"}),
			}, Total: 7},
			win: tablestate.NewPageWindow(2, 5, 7),
		},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Page(&buf, tt.columns, tt.page, tt.win))
			g.Assert(t, tt.name, buf.Bytes())
		})
	}
}

func TestTable_KeepsCellsOnOneLine(t *testing.T) {
	var buf bytes.Buffer
	cols := []models.Column{{Key: "name", Label: "Name"}, {Key: "note", Label: "Note"}}
	err := Table(&buf, cols, []models.Entry{
		models.NewEntry(3, map[string]string{"name": "two\nlines", "note": "a\tb"}),
	})
	require.NoError(t, err)
	assert.Equal(t, "ID  Name       Note\n3   two lines  a b\n", buf.String())
}

func TestFooter(t *testing.T) {
	assert.Equal(t, "Showing 41 to 45 of 45 entries (page 3 of 3)", Footer(tablestate.NewPageWindow(3, 20, 45)))
	assert.Equal(t, "Showing 1 to 3 of 3 entries", Footer(tablestate.NewPageWindow(1, 20, 3)))
}
