package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"www.timesketch.org/golang/timesketch/analyzers"
	"www.timesketch.org/golang/timesketch/models"
	"www.timesketch.org/golang/timesketch/vtesting"
)

var (
	test_mu       sync.Mutex
	test_ran      []string
	test_fail_err = errors.New("task exploded")
)

func recordRun(name string) {
	test_mu.Lock()
	defer test_mu.Unlock()
	test_ran = append(test_ran, name)
}

func ranTasks() []string {
	test_mu.Lock()
	defer test_mu.Unlock()
	return append([]string{}, test_ran...)
}

func resetRuns() {
	test_mu.Lock()
	defer test_mu.Unlock()
	test_ran = nil
}

func init() {
	RegisterTask("test_echo", func(ctx context.Context,
		env *Environment, input interface{},
		kwargs map[string]interface{}) (interface{}, error) {
		return kwargs["value"], nil
	})

	RegisterTask("test_concat", func(ctx context.Context,
		env *Environment, input interface{},
		kwargs map[string]interface{}) (interface{}, error) {
		prefix, _ := input.(string)
		return prefix + kwargString(kwargs, "suffix"), nil
	})

	RegisterTask("test_record", func(ctx context.Context,
		env *Environment, input interface{},
		kwargs map[string]interface{}) (interface{}, error) {
		recordRun(kwargString(kwargs, "name"))
		return input, nil
	})

	RegisterTask("test_fail", func(ctx context.Context,
		env *Environment, input interface{},
		kwargs map[string]interface{}) (interface{}, error) {
		return nil, test_fail_err
	})
}

func makeRunner(t *testing.T) *Runner {
	t.Helper()

	runner := NewRunner(vtesting.TestConfig(),
		vtesting.NewMockEventStore(), models.NewMemoryStore())
	t.Cleanup(runner.Close)
	return runner
}

func TestChainPassesResults(t *testing.T) {
	runner := makeRunner(t)

	node := Chain(
		Call("test_echo", map[string]interface{}{"value": "a"}),
		Call("test_concat", map[string]interface{}{"suffix": "b"}),
		Call("test_concat", map[string]interface{}{"suffix": "c"}),
	)

	result, err := runner.Run(context.Background(), node)
	require.NoError(t, err)
	assert.Equal(t, "abc", result)
}

func TestGroupRunsAllChildren(t *testing.T) {
	resetRuns()
	runner := makeRunner(t)

	node := Group(
		Call("test_record", map[string]interface{}{"name": "one"}),
		Call("test_record", map[string]interface{}{"name": "two"}),
		Call("test_record", map[string]interface{}{"name": "three"}),
	)

	_, err := runner.Run(context.Background(), node)
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"one", "two", "three"}, ranTasks())
}

func TestGroupFailsWhenAnyChildFails(t *testing.T) {
	runner := makeRunner(t)

	node := Group(
		Call("test_echo", map[string]interface{}{"value": "ok"}),
		Call("test_fail", nil),
	)

	_, err := runner.Run(context.Background(), node)
	require.Error(t, err)
	assert.ErrorIs(t, err, test_fail_err)
}

func TestChainStopsAtFirstError(t *testing.T) {
	resetRuns()
	runner := makeRunner(t)

	node := Chain(
		Call("test_fail", nil),
		Call("test_record", map[string]interface{}{"name": "after"}),
	)

	_, err := runner.Run(context.Background(), node)
	require.Error(t, err)
	assert.Empty(t, ranTasks())
}

func TestUnknownTask(t *testing.T) {
	runner := makeRunner(t)

	_, err := runner.Run(context.Background(),
		Call("no_such_task", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_such_task")
}

// Analyzer stubs for the pipeline builder tests.
type stubAnalyzer struct {
	info    analyzers.AnalyzerInfo
	summary string
	run_err error
	mu      sync.Mutex
	runs    int
}

func (self *stubAnalyzer) Info() *analyzers.AnalyzerInfo {
	return &self.info
}

func (self *stubAnalyzer) Run(runtime *analyzers.Runtime) (
	string, error) {
	self.mu.Lock()
	self.runs++
	self.mu.Unlock()
	return self.summary, self.run_err
}

func (self *stubAnalyzer) Runs() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.runs
}

func makeBuilderFixture(t *testing.T, runner *Runner) (
	*models.Sketch, *models.Timeline) {
	t.Helper()

	db := runner.Env().DB
	sketch := &models.Sketch{
		Name: "Test", Status: models.SketchStatusReady}
	require.NoError(t, db.CreateSketch(sketch))

	index := &models.SearchIndex{Name: "t1", IndexName: "idx1"}
	require.NoError(t, db.CreateSearchIndex(index))

	timeline := &models.Timeline{
		Name: "t1", SketchID: sketch.ID, SearchIndexID: index.ID}
	require.NoError(t, db.CreateTimeline(timeline))
	return sketch, timeline
}

func TestSketchAnalysisPipeline(t *testing.T) {
	stub := &stubAnalyzer{
		info:    analyzers.AnalyzerInfo{Name: "stub_one"},
		summary: "did things",
	}
	require.NoError(t, analyzers.Register(stub))
	defer analyzers.Deregister("stub_one")

	runner := makeRunner(t)
	sketch, timeline := makeBuilderFixture(t, runner)

	node, session, err := BuildSketchAnalysisPipeline(
		runner.Env(), &PipelineOptions{
			SketchID:      sketch.ID,
			TimelineID:    timeline.ID,
			IndexName:     "idx1",
			AnalyzerNames: []string{"stub_one"},
		})
	require.NoError(t, err)
	require.NotNil(t, node)
	require.NotNil(t, session)

	_, err = runner.Run(context.Background(), node)
	require.NoError(t, err)
	assert.Equal(t, 1, stub.Runs())

	db := runner.Env().DB
	records, err := db.AnalysesForSession(session.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.AnalysisStatusDone, records[0].Status)
	assert.Contains(t, records[0].Result, "did things")
}

func TestSketchAnalysisPipelineIdempotence(t *testing.T) {
	stub := &stubAnalyzer{
		info:    analyzers.AnalyzerInfo{Name: "stub_idem"},
		summary: "fine",
	}
	require.NoError(t, analyzers.Register(stub))
	defer analyzers.Deregister("stub_idem")

	runner := makeRunner(t)
	sketch, timeline := makeBuilderFixture(t, runner)

	options := &PipelineOptions{
		SketchID:      sketch.ID,
		TimelineID:    timeline.ID,
		IndexName:     "idx1",
		AnalyzerNames: []string{"stub_idem"},
	}

	node, _, err := BuildSketchAnalysisPipeline(runner.Env(), options)
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), node)
	require.NoError(t, err)

	// Same parameters again: nothing left to schedule.
	node, session, err := BuildSketchAnalysisPipeline(
		runner.Env(), options)
	require.NoError(t, err)
	assert.Nil(t, node)
	assert.Nil(t, session)

	// force_run builds the pipeline regardless.
	options.ForceRun = true
	node, session, err = BuildSketchAnalysisPipeline(
		runner.Env(), options)
	require.NoError(t, err)
	require.NotNil(t, node)
	require.NotNil(t, session)
}

func TestSketchAnalysisPipelineReschedulesAfterError(t *testing.T) {
	stub := &stubAnalyzer{
		info:    analyzers.AnalyzerInfo{Name: "stub_err"},
		run_err: errors.New("boom"),
	}
	require.NoError(t, analyzers.Register(stub))
	defer analyzers.Deregister("stub_err")

	runner := makeRunner(t)
	sketch, timeline := makeBuilderFixture(t, runner)

	options := &PipelineOptions{
		SketchID:      sketch.ID,
		TimelineID:    timeline.ID,
		IndexName:     "idx1",
		AnalyzerNames: []string{"stub_err"},
	}

	node, _, err := BuildSketchAnalysisPipeline(runner.Env(), options)
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), node)
	require.Error(t, err)

	// A failed analysis does not block a retry.
	node, session, err := BuildSketchAnalysisPipeline(
		runner.Env(), options)
	require.NoError(t, err)
	require.NotNil(t, node)
	require.NotNil(t, session)
}

func TestSketchAnalysisPipelineSkipsDFIQ(t *testing.T) {
	stub := &stubAnalyzer{
		info: analyzers.AnalyzerInfo{
			Name: "stub_dfiq", IsDFIQ: true},
	}
	require.NoError(t, analyzers.Register(stub))
	defer analyzers.Deregister("stub_dfiq")

	runner := makeRunner(t)
	sketch, timeline := makeBuilderFixture(t, runner)

	options := &PipelineOptions{
		SketchID:      sketch.ID,
		TimelineID:    timeline.ID,
		IndexName:     "idx1",
		AnalyzerNames: []string{"stub_dfiq"},
	}

	node, _, err := BuildSketchAnalysisPipeline(runner.Env(), options)
	require.NoError(t, err)
	assert.Nil(t, node)

	options.IncludeDFIQ = true
	node, _, err = BuildSketchAnalysisPipeline(runner.Env(), options)
	require.NoError(t, err)
	require.NotNil(t, node)
}

func TestParametersHashStable(t *testing.T) {
	a := map[string]interface{}{"plugin": "x", "feature": "y"}
	b := map[string]interface{}{"feature": "y", "plugin": "x"}
	assert.Equal(t, ParametersHash(a), ParametersHash(b))
	assert.NotEqual(t, ParametersHash(a),
		ParametersHash(map[string]interface{}{"plugin": "z"}))
}
