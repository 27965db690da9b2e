package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRiskLevel(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    RiskLevel
		wantErr bool
	}{
		{name: "exact", input: "Low", want: RiskLow},
		{name: "lowercase", input: "medium", want: RiskMedium},
		{name: "uppercase", input: "HIGH", want: RiskHigh},
		{name: "padded", input: "  low  ", want: RiskLow},
		{name: "unknown", input: "extreme", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRiskLevel(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidRequest))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFeatureTable_Lookup(t *testing.T) {
	records := []SchemeFeatureRecord{
		{SchemeID: 100, SchemeName: "Alpha Fund"},
		{SchemeID: 200, SchemeName: "Beta Fund"},
	}
	table := NewFeatureTable("build-1", time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), records)

	rec, ok := table.Lookup(200)
	require.True(t, ok)
	assert.Equal(t, "Beta Fund", rec.SchemeName)

	_, ok = table.Lookup(999)
	assert.False(t, ok)

	assert.Equal(t, 2, table.Len())
}

func TestFeatureTable_NilSafe(t *testing.T) {
	var table *FeatureTable
	_, ok := table.Lookup(1)
	assert.False(t, ok)
	assert.Equal(t, 0, table.Len())
}
