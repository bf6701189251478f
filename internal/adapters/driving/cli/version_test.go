package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd(t *testing.T) {
	tests := []struct {
		name    string
		version string
		want    string
	}{
		{"default", "dev", "lorastudio version dev\n"},
		{"release", "v0.4.1", "lorastudio version v0.4.1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer SetVersion(version)
			SetVersion(tt.version)

			out, err := execute("version")

			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

