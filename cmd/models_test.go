package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatModels(t *testing.T) {
	tests := []struct {
		name       string
		catalog    []string
		configured string
		want       string
	}{
		{
			name:       "tagged match",
			catalog:    []string{"mistral:7b", "llama3.1:8b"},
			configured: "llama3.1",
			want:       "mistral:7b\nllama3.1:8b\n\nconfigured model \"llama3.1\" resolves to \"llama3.1:8b\"\n",
		},
		{
			name:       "missing",
			catalog:    []string{"mistral:7b"},
			configured: "llama3.1",
			want:       "mistral:7b\n\nconfigured model \"llama3.1\" not installed (run with --pull)\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			formatModels(&buf, tt.catalog, tt.configured)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}
