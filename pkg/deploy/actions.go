package deploy

import (
	"github.com/corliansa/deploy-webhook/pkg/config"
)

// Action is one Action Table entry: the command that deploys a repository
type Action struct {
	Repository string
	Command    string
	Workdir    string
}

// ActionTable maps repository names to deployment commands.
// It is built once at startup and never mutated, so concurrent lookups are safe.
type ActionTable struct {
	actions []Action
	index   map[string]int
}

// NewActionTable builds a table from ordered (repository, command) pairs.
// Later duplicates are ignored; config validation rejects them before this point.
func NewActionTable(actions []Action) *ActionTable {
	t := &ActionTable{
		actions: make([]Action, 0, len(actions)),
		index:   make(map[string]int, len(actions)),
	}

	for _, a := range actions {
		if _, exists := t.index[a.Repository]; exists {
			continue
		}
		t.index[a.Repository] = len(t.actions)
		t.actions = append(t.actions, a)
	}

	return t
}

// NewActionTableFromConfig builds the table from the configured actions
func NewActionTableFromConfig(cfg *config.Config) *ActionTable {
	actions := make([]Action, 0, len(cfg.Actions))
	for _, a := range cfg.Actions {
		actions = append(actions, Action{Repository: a.Repository, Command: a.Command, Workdir: a.Workdir})
	}
	return NewActionTable(actions)
}

// Lookup returns the action for a repository. Names match exactly.
func (t *ActionTable) Lookup(repository string) (Action, bool) {
	i, ok := t.index[repository]
	if !ok {
		return Action{}, false
	}
	return t.actions[i], true
}

// Repositories returns the configured repository names in table order
func (t *ActionTable) Repositories() []string {
	names := make([]string, 0, len(t.actions))
	for _, a := range t.actions {
		names = append(names, a.Repository)
	}
	return names
}

// Len returns the number of entries
func (t *ActionTable) Len() int {
	return len(t.actions)
}
