package dictionary

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	d, err := Default()
	require.NoError(t, err)

	require.NotEmpty(t, d.AmountPriorities)
	assert.Equal(t, 10, d.AmountPriorities[0].Priority)
	assert.Contains(t, d.AmountPriorities[0].Patterns, "合計金額")
	assert.Equal(t, 5, d.BareYenPriority)
	assert.Equal(t, 4, d.BareEnPriority)
	assert.Contains(t, d.AmountExclusions, "お釣り")
	assert.Equal(t, "日", d.CJKCompat["⽇"])

	names := map[string]string{}
	for _, v := range d.Vendors {
		names[v.Keyword] = v.Name
	}
	assert.Equal(t, "三井不動産リアルティ株式会社", names["三井のリパーク"])
	assert.Equal(t, "名鉄協商株式会社", names["名鉄協商"])
}

func TestLoad_OverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dict.yaml")
	data := []byte(`
amount_priorities:
  - priority: 3
    patterns: ["計"]
  - priority: 9
    patterns: ["総額"]
vendors:
  - keyword: "テスト"
    name: "テスト株式会社"
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	d, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, d.AmountPriorities[0].Priority, "families are sorted by descending priority")
	assert.Equal(t, "テスト株式会社", d.Vendors[0].Name)
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad regex":      "amount_priorities:\n  - priority: 1\n    patterns: [\"(\"]\n",
		"zero priority":  "amount_priorities:\n  - priority: 0\n    patterns: [\"a\"]\n",
		"no families":    "vendors: []\n",
		"multi-rune key": "amount_priorities:\n  - priority: 1\n    patterns: [\"a\"]\ncjk_compat:\n  \"ab\": \"c\"\n",
		"vendor no name": "amount_priorities:\n  - priority: 1\n    patterns: [\"a\"]\nvendors:\n  - keyword: x\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(in))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
