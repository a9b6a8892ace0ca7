package prd

import (
	"reflect"
	"testing"
)

func TestDetectCycle(t *testing.T) {
	tests := []struct {
		name  string
		tasks []Task
		want  []string
	}{
		{
			"no dependencies",
			[]Task{{ID: "A"}, {ID: "B"}},
			nil,
		},
		{
			"linear chain",
			[]Task{
				{ID: "A"},
				{ID: "B", Dependencies: []string{"A"}},
				{ID: "C", Dependencies: []string{"B"}},
			},
			nil,
		},
		{
			"two-node cycle",
			[]Task{
				{ID: "A", Dependencies: []string{"B"}},
				{ID: "B", Dependencies: []string{"A"}},
			},
			[]string{"A", "B"},
		},
		{
			"self cycle",
			[]Task{{ID: "A", Dependencies: []string{"A"}}},
			[]string{"A"},
		},
		{
			"cycle plus downstream task",
			[]Task{
				{ID: "A", Dependencies: []string{"B"}},
				{ID: "B", Dependencies: []string{"A"}},
				{ID: "C", Dependencies: []string{"A"}},
				{ID: "D"},
			},
			[]string{"A", "B", "C"},
		},
		{
			"unknown dependency is not a cycle",
			[]Task{{ID: "A", Dependencies: []string{"ghost"}}},
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &PRD{UserStories: tt.tasks}
			got := BuildGraph(p).DetectCycle()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DetectCycle() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckCycles(t *testing.T) {
	clean := &PRD{UserStories: []Task{
		{ID: "A"},
		{ID: "B", Dependencies: []string{"A"}},
	}}
	if err := CheckCycles(clean); err != nil {
		t.Errorf("CheckCycles() = %v, want nil", err)
	}

	cyclic := &PRD{UserStories: []Task{
		{ID: "A", Dependencies: []string{"B"}},
		{ID: "B", Dependencies: []string{"A"}},
	}}
	if err := CheckCycles(cyclic); err != ErrDependencyCycle {
		t.Errorf("CheckCycles() = %v, want ErrDependencyCycle", err)
	}
}
