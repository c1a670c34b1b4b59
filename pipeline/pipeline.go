/*
Timesketch Analyzer Engine - Collaborative Forensic Timelines
Copyright (C) 2026 Timesketch Authors.

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published
by the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package pipeline composes ingest and analyzer tasks into ordered
// and parallel stages and runs them on a worker pool. A pipeline is a
// DAG of named task calls joined by two primitives: a chain passes
// the previous result into the next task, a group fans out siblings
// that must all succeed.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/alitto/pond/v2"
	"www.timesketch.org/golang/timesketch/config"
	"www.timesketch.org/golang/timesketch/datastore"
	"www.timesketch.org/golang/timesketch/logging"
	"www.timesketch.org/golang/timesketch/models"
)

// Task is one serializable call.
type Task struct {
	Name   string
	Kwargs map[string]interface{}
}

// Node is either a single task, a chain or a group.
type Node struct {
	Task  *Task
	Chain []*Node
	Group []*Node
}

func Call(name string, kwargs map[string]interface{}) *Node {
	return &Node{Task: &Task{Name: name, Kwargs: kwargs}}
}

// Chain runs nodes serially, feeding each result into the next task.
func Chain(nodes ...*Node) *Node {
	if len(nodes) == 1 {
		return nodes[0]
	}
	return &Node{Chain: nodes}
}

// Group runs nodes in parallel. The group resolves when every child
// succeeded and fails on the first child error.
func Group(nodes ...*Node) *Node {
	if len(nodes) == 1 {
		return nodes[0]
	}
	return &Node{Group: nodes}
}

// TaskFunc executes one task. The input is the result of the previous
// node in a chain, nil at the head.
type TaskFunc func(ctx context.Context, env *Environment,
	input interface{}, kwargs map[string]interface{}) (
	interface{}, error)

var (
	task_mu       sync.Mutex
	task_registry = make(map[string]TaskFunc)
)

// RegisterTask adds a task implementation under a stable name.
// Panics on duplicates, task names are a compile time manifest.
func RegisterTask(name string, task TaskFunc) {
	task_mu.Lock()
	defer task_mu.Unlock()

	_, pres := task_registry[name]
	if pres {
		panic(fmt.Sprintf("task %q registered twice", name))
	}
	task_registry[name] = task
}

func getTask(name string) (TaskFunc, error) {
	task_mu.Lock()
	defer task_mu.Unlock()

	task, pres := task_registry[name]
	if !pres {
		return nil, fmt.Errorf("unknown task %q", name)
	}
	return task, nil
}

// Environment is handed to every task.
type Environment struct {
	Config *config.Config
	Store  datastore.EventStore
	DB     models.Store
	Logger *logging.LogContext
}

// Runner executes pipelines on a bounded worker pool.
type Runner struct {
	env  *Environment
	pool pond.Pool
}

func NewRunner(config_obj *config.Config,
	store datastore.EventStore, db models.Store) *Runner {

	pool_size := 10
	if config_obj.Workers != nil && config_obj.Workers.PoolSize > 0 {
		pool_size = config_obj.Workers.PoolSize
	}

	return &Runner{
		env: &Environment{
			Config: config_obj,
			Store:  store,
			DB:     db,
			Logger: logging.GetLogger(
				config_obj, &logging.PipelineComponent),
		},
		pool: pond.NewPool(pool_size),
	}
}

func (self *Runner) Env() *Environment {
	return self.env
}

// Run executes the pipeline and returns the result of its final
// node. Group results are the child results in declaration order.
func (self *Runner) Run(ctx context.Context, node *Node) (
	interface{}, error) {
	return self.runNode(ctx, node, nil)
}

func (self *Runner) runNode(ctx context.Context,
	node *Node, input interface{}) (interface{}, error) {

	switch {
	case node == nil:
		return input, nil

	case node.Task != nil:
		return self.runTask(ctx, node.Task, input)

	case len(node.Chain) > 0:
		result := input
		for _, child := range node.Chain {
			var err error
			result, err = self.runNode(ctx, child, result)
			if err != nil {
				return nil, err
			}
		}
		return result, nil

	case len(node.Group) > 0:
		return self.runGroup(ctx, node.Group, input)
	}

	return input, nil
}

func (self *Runner) runTask(ctx context.Context,
	task *Task, input interface{}) (interface{}, error) {

	impl, err := getTask(task.Name)
	if err != nil {
		return nil, err
	}

	var result interface{}
	run_err := self.pool.SubmitErr(func() error {
		var task_err error
		result, task_err = impl(ctx, self.env, input, task.Kwargs)
		return task_err
	}).Wait()

	if run_err != nil {
		return nil, run_err
	}
	return result, nil
}

func (self *Runner) runGroup(ctx context.Context,
	nodes []*Node, input interface{}) (interface{}, error) {

	results := make([]interface{}, len(nodes))
	errors := make([]error, len(nodes))

	var wg sync.WaitGroup
	for i, child := range nodes {
		wg.Add(1)
		go func(i int, child *Node) {
			defer wg.Done()
			results[i], errors[i] = self.runNode(ctx, child, input)
		}(i, child)
	}
	wg.Wait()

	for _, err := range errors {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Close waits for in-flight tasks and releases the pool.
func (self *Runner) Close() {
	self.pool.StopAndWait()
}
