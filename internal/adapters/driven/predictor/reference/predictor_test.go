package reference

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
)

func TestPredictor_Predict(t *testing.T) {
	long := strings.TrimSpace(strings.Repeat("word ", 80))

	tests := []struct {
		name string
		row  domain.Example
		want string
	}{
		{
			name: "refusal expected",
			row:  domain.Example{Output: "I cannot share that.", ExpectedRefusal: true},
			want: Refusal,
		},
		{
			name: "short output kept",
			row:  domain.Example{Output: "Submit  the form\nwithin 5 days."},
			want: "Submit the form within 5 days.",
		},
		{
			name: "long output truncated",
			row:  domain.Example{Output: long},
			want: strings.TrimSpace(strings.Repeat("word ", 50)),
		},
		{
			name: "empty output",
			row:  domain.Example{},
			want: "",
		},
	}

	p := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Predict(context.Background(), tt.row)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "reference", p.Name())
}
