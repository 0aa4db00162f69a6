package db

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty", in: "", want: nil},
		{name: "comments only", in: "-- header\n;\n  -- trailing\n", want: nil},
		{
			name: "two statements",
			in:   "-- users\nCREATE TABLE a (id INT);\n\nCREATE INDEX b ON a (id);\n",
			want: []string{"-- users\nCREATE TABLE a (id INT)", "CREATE INDEX b ON a (id)"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, splitStatements(tt.in))
		})
	}
}

func TestEmbeddedMigrationsAreOrdered(t *testing.T) {
	files, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	require.Equal(t, "001_init.sql", files[0])
	for _, f := range files {
		require.Contains(t, f, ".sql")
	}
}
