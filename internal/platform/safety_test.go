package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDevRun_UnderGoTest(t *testing.T) {
	assert.True(t, IsDevRun())
}

func TestResolveDBPath(t *testing.T) {
	devRoot := filepath.Join(os.TempDir(), "churn-dev")
	inTemp := filepath.Join(t.TempDir(), "x.db")

	tests := []struct {
		name      string
		path      string
		forceTemp bool
		want      string
	}{
		{name: "Plain", path: "data/churn.db", want: "data/churn.db"},
		{name: "Plain Default", path: "", want: DefaultDBFile},
		{name: "Sandboxed", path: "data/churn.db", forceTemp: true, want: filepath.Join(devRoot, "churn.db")},
		{name: "Sandboxed Default", path: "", forceTemp: true, want: filepath.Join(devRoot, DefaultDBFile)},
		{name: "Already In Temp", path: inTemp, forceTemp: true, want: inTemp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveDBPath(tt.path, tt.forceTemp))
		})
	}
}
