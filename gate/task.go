package gate

import "strings"

// Task describes the CRUD operation a caller wants to perform.
type Task string

const (
	TaskCreate Task = "create"
	TaskInsert Task = "insert"
	TaskUpdate Task = "update"
	TaskRead   Task = "read"
	TaskDelete Task = "delete"
	TaskRemove Task = "remove"
)

// Action is the grant flag a task is checked against.
type Action int

const (
	ActionNone Action = iota
	ActionCreate
	ActionRead
	ActionUpdate
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionRead:
		return "read"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "none"
	}
}

// ParseTask converts a task name (case-insensitive) into a Task.
func ParseTask(s string) (Task, bool) {
	t := Task(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

// Action returns the grant flag required by the task.
// Unknown tasks map to ActionNone.
func (t Task) Action() Action {
	switch t {
	case TaskCreate, TaskInsert:
		return ActionCreate
	case TaskUpdate:
		return ActionUpdate
	case TaskDelete, TaskRemove:
		return ActionDelete
	case TaskRead:
		return ActionRead
	default:
		return ActionNone
	}
}

// Valid reports whether t is one of the known tasks.
func (t Task) Valid() bool { return t.Action() != ActionNone }

// RecordScoped reports whether record-level grants may permit the task.
// A record cannot pre-exist for a create, so creates are collection-only.
func (t Task) RecordScoped() bool {
	a := t.Action()
	return a != ActionNone && a != ActionCreate
}
