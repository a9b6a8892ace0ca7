package prd

// NextTask returns the next eligible task: the lowest-priority-value
// incomplete task whose dependencies have all completed. An unknown
// dependency id blocks the task (fail-closed). Ties on priority keep the
// original list order. Returns nil when nothing is eligible, which means
// either every task is complete or the remaining tasks are deadlocked;
// use BuildGraph/DetectCycle to tell those apart.
func (p *PRD) NextTask() *Task {
	var next *Task

	for i := range p.UserStories {
		t := &p.UserStories[i]
		if t.Completed() {
			continue
		}
		if !p.dependenciesSatisfied(t) {
			continue
		}
		if next == nil || t.Priority < next.Priority {
			next = t
		}
	}

	return next
}

func (p *PRD) dependenciesSatisfied(t *Task) bool {
	for _, dep := range t.Dependencies {
		d := p.Task(dep)
		if d == nil || !d.Completed() {
			return false
		}
	}
	return true
}
