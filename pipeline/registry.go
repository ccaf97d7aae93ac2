package pipeline

import "fmt"

// Registry maps stage names to their definitions. It is populated once at
// process start and read-only thereafter, so lookups need no locking.
type Registry struct {
	stages map[string]Stage
}

// NewRegistry creates an empty stage registry.
func NewRegistry() *Registry {
	return &Registry{
		stages: make(map[string]Stage),
	}
}

// Register adds a stage definition. Registration fails if the definition is
// invalid or the name is already taken.
func (r *Registry) Register(s Stage) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if _, ok := r.stages[s.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateStage, s.Name)
	}
	r.stages[s.Name] = s
	return nil
}

// Get returns the stage definition for the given name.
func (r *Registry) Get(name string) (Stage, error) {
	s, ok := r.stages[name]
	if !ok {
		return Stage{}, fmt.Errorf("%w: %s", ErrUnknownStage, name)
	}
	return s, nil
}

// InOrder resolves an ordered pipeline definition into stage definitions,
// failing if the definition references an unregistered name.
func (r *Registry) InOrder(names []string) ([]Stage, error) {
	stages := make([]Stage, 0, len(names))
	for _, name := range names {
		s, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		stages = append(stages, s)
	}
	return stages, nil
}
