package analyzers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"www.timesketch.org/golang/timesketch/config"
)

type fakeAnalyzer struct {
	info   AnalyzerInfo
	kwargs []map[string]interface{}
}

func (self *fakeAnalyzer) Info() *AnalyzerInfo {
	return &self.info
}

func (self *fakeAnalyzer) Run(runtime *Runtime) (string, error) {
	return "ok", nil
}

type fakeKwargsAnalyzer struct {
	fakeAnalyzer
}

func (self *fakeKwargsAnalyzer) GetKwargs(
	config_obj *config.Config) []map[string]interface{} {
	return self.kwargs
}

func registerFake(t *testing.T, name string, depends ...string) {
	t.Helper()
	require.NoError(t, Register(&fakeAnalyzer{
		info: AnalyzerInfo{
			Name:        name,
			DisplayName: name,
			Depends:     depends,
		},
	}))
	t.Cleanup(func() { Deregister(name) })
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	registerFake(t, "alpha")
	err := Register(&fakeAnalyzer{
		info: AnalyzerInfo{Name: "Alpha"},
	})
	assert.Error(t, err)
}

func TestGetAnalyzersUnknownName(t *testing.T) {
	_, err := GetAnalyzers([]string{"no_such"}, false)
	assert.Error(t, err)
}

func TestOrderedAnalyzersClusters(t *testing.T) {
	registerFake(t, "base_a")
	registerFake(t, "base_b")
	registerFake(t, "middle", "base_a", "base_b")
	registerFake(t, "top", "middle")

	clusters, err := GetOrderedAnalyzers(
		[]string{"top", "base_b", "base_a", "middle"})
	require.NoError(t, err)
	require.Len(t, clusters, 3)

	names := func(cluster []Analyzer) []string {
		result := []string{}
		for _, analyzer := range cluster {
			result = append(result, analyzer.Info().Name)
		}
		return result
	}

	assert.Equal(t, []string{"base_a", "base_b"}, names(clusters[0]))
	assert.Equal(t, []string{"middle"}, names(clusters[1]))
	assert.Equal(t, []string{"top"}, names(clusters[2]))
}

func TestOrderedAnalyzersPullsInDependencies(t *testing.T) {
	registerFake(t, "needed")
	registerFake(t, "wanted", "needed")

	clusters, err := GetOrderedAnalyzers([]string{"wanted"})
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Equal(t, "needed", clusters[0][0].Info().Name)
	assert.Equal(t, "wanted", clusters[1][0].Info().Name)
}

func TestOrderedAnalyzersDetectsCycle(t *testing.T) {
	registerFake(t, "chicken", "egg")
	registerFake(t, "egg", "chicken")

	_, err := GetOrderedAnalyzers([]string{"chicken"})
	require.Error(t, err)

	dep_err, ok := err.(*DependencyError)
	require.True(t, ok)
	assert.Contains(t, dep_err.Msg, "circular")
}

func TestOrderedAnalyzersUnknownDependency(t *testing.T) {
	registerFake(t, "orphan", "missing_parent")

	_, err := GetOrderedAnalyzers([]string{"orphan"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing_parent")
}

func TestGetKwargsList(t *testing.T) {
	config_obj := config.GetDefaultConfig()
	config_obj.Analyzers.AutoSketchAnalyzersKwargs =
		map[string]interface{}{
			"configured": []interface{}{
				map[string]interface{}{"flag": 1},
				map[string]interface{}{"flag": 2},
			},
		}

	plain := &fakeAnalyzer{info: AnalyzerInfo{Name: "plain"}}
	kwargs, err := GetKwargsList(config_obj, plain)
	require.NoError(t, err)
	assert.Nil(t, kwargs)

	configured := &fakeAnalyzer{info: AnalyzerInfo{Name: "configured"}}
	kwargs, err = GetKwargsList(config_obj, configured)
	require.NoError(t, err)
	require.Len(t, kwargs, 2)
	assert.Equal(t, 1, kwargs[0]["flag"])

	// An analyzer provided list wins over the config.
	with_provider := &fakeKwargsAnalyzer{fakeAnalyzer{
		info: AnalyzerInfo{Name: "configured"},
		kwargs: []map[string]interface{}{
			{"engine": "Google"},
		},
	}}
	kwargs, err = GetKwargsList(config_obj, with_provider)
	require.NoError(t, err)
	require.Len(t, kwargs, 1)
	assert.Equal(t, "Google", kwargs[0]["engine"])
}
