package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedCatalogProductCodes(t *testing.T) {
	catalog, err := LoadProductCatalog("")
	require.NoError(t, err)

	tests := []struct {
		name    string
		product string
		day     int
		want    string
	}{
		{"daily 1GB", "베트남 eSIM 1기가", 5, "eSIM-VN1G-05"},
		{"daily 1GB rounds up", "베트남 eSIM 1기가", 2, "eSIM-VN1G-03"},
		{"daily 3GB", "베트남 eSIM 3기가", 30, "eSIM-VN3G-30"},
		{"throttled 5GB", "베트남 5기가 후 종료", 7, "eSIM-VNVT5G-07"},
		{"5GB without cutoff is not viettel", "베트남 5기가", 7, "eSIM-test"},
		{"unlimited by MAX", "베트남 MAX", 4, "eSIM-VNMAX-05"},
		{"unlimited by keyword", "베트남 무제한", 1, "eSIM-VNMAX-01"},
		{"total 10GB is not 1GB", "베트남 총 10기가", 3, "eSIM-VNT10G-03"},
		{"total 50GB", "베트남 총 50기가", 15, "eSIM-VNT50G-15"},
		{"missing day falls back", "베트남 총 50기가", 10, "eSIM-test"},
		{"unknown product", "일본 eSIM", 5, "eSIM-test"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, catalog.ProductCode(tt.product, tt.day))
		})
	}
}

func TestCatalogAccepts(t *testing.T) {
	catalog, err := LoadProductCatalog("")
	require.NoError(t, err)

	assert.True(t, catalog.Accepts("베트남 eSIM 1기가"))
	assert.True(t, catalog.Accepts("일본 데이터 eSIM"))
	assert.False(t, catalog.Accepts("괌 eSIM"))
	assert.False(t, catalog.Accepts(""))
}

func TestLoadProductCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := "destinations: [괌]\nrules:\n  - name: guam\n    all: [괌]\n    codes:\n      3: eSIM-GU-03\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	catalog, err := LoadProductCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, "eSIM-test", catalog.DefaultCode)
	assert.True(t, catalog.Accepts("괌 eSIM"))
	assert.Equal(t, "eSIM-GU-03", catalog.ProductCode("괌 eSIM", 3))
	assert.Equal(t, "eSIM-test", catalog.ProductCode("괌 eSIM", 4))
}

func TestParseProductCatalogRejectsBadRules(t *testing.T) {
	_, err := ParseProductCatalog([]byte("rules:\n  - name: empty\n    codes:\n      1: X\n"))
	assert.Error(t, err)

	_, err = ParseProductCatalog([]byte("rules:\n  - name: nocodes\n    all: [a]\n"))
	assert.Error(t, err)

	_, err = LoadProductCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
