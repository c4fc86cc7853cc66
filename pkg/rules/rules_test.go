package rules

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylerisse/funcdoctor/pkg/detect"
	"github.com/kylerisse/funcdoctor/pkg/rule"
)

func ids(rules []rule.Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.ID
	}
	return out
}

func TestDefault_V2(t *testing.T) {
	rules, err := Default().Load(detect.ModelV2)
	require.NoError(t, err)

	got := ids(rules)
	for _, id := range []string{
		"check_python_version", "check_venv", "check_python_executable",
		"check_requirements_txt", "check_host_json", "check_local_settings",
		"check_azure_functions_library", "check_programming_model_v2",
	} {
		assert.Contains(t, got, id)
	}
	assert.NotContains(t, got, "check_programming_model_v1")
}

func TestDefault_V1(t *testing.T) {
	rules, err := Default().Load(detect.ModelV1)
	require.NoError(t, err)

	got := ids(rules)
	for _, id := range []string{
		"check_python_version", "check_venv", "check_python_executable",
		"check_requirements_txt", "check_host_json", "check_local_settings",
		"check_programming_model_v1",
	} {
		assert.Contains(t, got, id)
	}
	assert.NotContains(t, got, "check_azure_functions_library")
	assert.NotContains(t, got, "check_programming_model_v2")
}

func TestDefault_AllRulesWellFormed(t *testing.T) {
	for _, model := range []detect.Model{detect.ModelV1, detect.ModelV2} {
		rules, err := Default().Load(model)
		require.NoError(t, err)
		require.NotEmpty(t, rules)

		seen := make(map[string]bool)
		for i, r := range rules {
			assert.NoError(t, r.Err(), "rule %s", r.ID)
			assert.True(t, r.Type.Known(), "rule %s has unknown type %q", r.ID, r.Type)
			assert.NotEmpty(t, r.Section, "rule %s", r.ID)
			assert.False(t, seen[r.ID], "duplicate rule id %s", r.ID)
			seen[r.ID] = true
			if r.Condition != nil {
				assert.NoError(t, r.Condition.Validate(), "rule %s", r.ID)
			}
			if i > 0 {
				assert.LessOrEqual(t, rules[i-1].Order(), r.Order())
			}
		}
	}
}

func TestLoad_SortsByCheckOrder(t *testing.T) {
	l := &Loader{FS: fstest.MapFS{
		"v2.json": {Data: []byte(`[
			{"id": "five", "type": "file_exists", "check_order": 5},
			{"id": "one", "type": "file_exists", "check_order": 1},
			{"id": "default", "type": "file_exists"},
			{"id": "three", "type": "file_exists", "check_order": 3}
		]`)},
	}}

	rules, err := l.Load(detect.ModelV2)
	require.NoError(t, err)

	orders := make([]int, len(rules))
	for i, r := range rules {
		orders[i] = r.Order()
	}
	assert.Equal(t, []int{1, 3, 5, rule.DefaultCheckOrder}, orders)
	assert.Equal(t, []string{"one", "three", "five", "default"}, ids(rules))
}

func TestLoad_StableForTies(t *testing.T) {
	l := &Loader{FS: fstest.MapFS{
		"v1.json": {Data: []byte(`[{"id":"a","type":"file_exists"},{"id":"b","type":"file_exists"},{"id":"c","type":"file_exists","check_order":1}]`)},
	}}
	rules, err := l.Load(detect.ModelV1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, ids(rules))
}

func TestLoad_NotFound(t *testing.T) {
	l := &Loader{FS: fstest.MapFS{}}
	_, err := l.Load(detect.ModelV2)
	require.Error(t, err)

	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "v2.json", le.Name)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrCorrupt)
}

func TestLoad_Corrupt(t *testing.T) {
	for name, data := range map[string]string{
		"truncated": `[{"id": "x"`,
		"object":    `{"id": "x"}`,
		"null":      `null`,
		"empty":     ``,
	} {
		t.Run(name, func(t *testing.T) {
			l := &Loader{FS: fstest.MapFS{"v2.json": {Data: []byte(data)}}}
			_, err := l.Load(detect.ModelV2)
			assert.ErrorIs(t, err, ErrCorrupt)
			assert.NotErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestLoad_MalformedRuleDoesNotFailDocument(t *testing.T) {
	l := &Loader{FS: fstest.MapFS{
		"v2.json": {Data: []byte(`[{"id":"bad","type":"file_glob_check","condition":{"patterns":"*.pyc"}},{"id":"good","type":"file_exists"}]`)},
	}}
	rules, err := l.Load(detect.ModelV2)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.ErrorIs(t, rules[0].Err(), rule.ErrInvalidCondition)
	assert.NoError(t, rules[1].Err())
}

func TestLoadFile_JSONAndYAML(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "custom.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`[{"id":"custom","type":"env_var_exists","condition":{"target":"MY_VAR"}}]`), 0o644))

	yamlPath := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
- id: custom_yaml
  type: host_json_property
  section: configuration
  required: false
  check_order: 2
  condition:
    jsonpath: $.logging.logLevel.default
    value: Information
`), 0o644))

	rules, err := LoadFile(jsonPath)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, rule.KindEnvVarExists, rules[0].Type)

	rules, err = LoadFile(yamlPath)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	r := rules[0]
	assert.Equal(t, "custom_yaml", r.ID)
	assert.False(t, r.Required())
	assert.Equal(t, 2, r.Order())
	c, err := rule.ConditionAs[*rule.JSONPathCondition](r)
	require.NoError(t, err)
	require.NotNil(t, c.Value)
	assert.Equal(t, "Information", *c.Value)
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadFile(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, ErrNotFound)

	bad := filepath.Join(dir, "bad.yml")
	require.NoError(t, os.WriteFile(bad, []byte("key: [unclosed"), 0o644))
	_, err = LoadFile(bad)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestMerge(t *testing.T) {
	order := func(n int) *int { return &n }
	base := []rule.Rule{
		{ID: "a", CheckOrder: order(1)},
		{ID: "b", CheckOrder: order(2)},
	}
	extra := []rule.Rule{
		{ID: "b", Label: "replaced", CheckOrder: order(2)},
		{ID: "c", CheckOrder: order(0)},
	}
	merged := Merge(base, extra)
	assert.Equal(t, []string{"c", "a", "b"}, ids(merged))
	assert.Equal(t, "replaced", merged[2].Label)
	assert.Equal(t, "", base[1].Label, "base must not be modified")
}
