// Package factory instantiates pluggable modules, such as metrics sinks and
// planner solvers, from configuration. A module is declared by a type name and
// a map of raw settings; the registered factory decodes the settings into its
// own typed struct.
//
//	solvers := factory.NewRegistry[Solver]()
//	solvers.Register("lp", func(conf map[string]any) (Solver, error) {
//	    var c LPConfig
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return NewLPSolver(c), nil
//	})
//	s, err := solvers.Create(factory.ModuleConfig{Type: "lp", Conf: map[string]any{"tolerance": 1e-9}})
package factory
