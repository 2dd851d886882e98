package core

// Variables holds values available to command templates.
type Variables interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MapVariables is the map-backed Variables. It is not safe for concurrent
// writes; each worker gets its own.
type MapVariables map[string]any

func NewVariables() MapVariables {
	return make(MapVariables)
}

func (v MapVariables) Get(key string) (any, bool) {
	val, ok := v[key]
	return val, ok
}

func (v MapVariables) Set(key string, value any) {
	v[key] = value
}

// WorkerVariables exposes a worker spec to command templates as
// workerId, type, env, resultsDir and data.<field>.
func WorkerVariables(spec WorkerSpec) MapVariables {
	vars := MapVariables{
		"workerId":   spec.ID,
		"type":       string(spec.Type),
		"env":        spec.Environment,
		"resultsDir": spec.ResultsDir,
	}
	for field, value := range spec.Data {
		vars["data."+field] = value
	}
	return vars
}
