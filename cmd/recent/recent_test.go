package recent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbio/sightings/internal/errors"
)

func TestParseSources(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		want    []source
		wantErr bool
	}{
		{
			name: "defaults without arguments",
			want: []source{{file: "ebird.geojson", label: "mottled duck"}},
		},
		{
			name: "several collections",
			args: []string{"modu.geojson=mottled duck", "mall.geojson=mallard"},
			want: []source{
				{file: "modu.geojson", label: "mottled duck"},
				{file: "mall.geojson", label: "mallard"},
			},
		},
		{name: "missing label", args: []string{"modu.geojson="}, wantErr: true},
		{name: "no separator", args: []string{"modu.geojson"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseSources(tt.args, "ebird.geojson", "mottled duck")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
