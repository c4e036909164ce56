package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckVersionCompatibility(t *testing.T) {
	tests := []struct {
		name          string
		engineVersion string
		configVersion string
		wantErr       bool
	}{
		{"exact match", "v1.2.0", "v1.2.0", false},
		{"patch may differ", "v1.2.0", "v1.2.5", false},
		{"v prefix optional", "1.2.0", "v1.2.3", false},
		{"minor mismatch", "v1.2.0", "v1.3.0", true},
		{"major mismatch", "v1.2.0", "v2.2.0", true},
		{"engine main skips check", "main", "v99.0.0", false},
		{"config main skips check", "v1.2.0", "main", false},
		{"garbage engine version", "not-a-version", "v1.2.0", true},
		{"garbage config version", "v1.2.0", "not-a-version", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckVersionCompatibility(tt.engineVersion, tt.configVersion)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
