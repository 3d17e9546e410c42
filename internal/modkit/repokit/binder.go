package repokit

// Binder produces a repo implementation bound to a concrete Queryer.
// Repos export NewPG() Binder[Storage] so the caller picks the runner
type Binder[T any] interface {
	Bind(Queryer) T
}

// MustBind binds after rejecting a nil runner, which is always a wiring bug
func MustBind[T any](b Binder[T], q Queryer) T {
	if q == nil {
		panic("repokit: nil Queryer")
	}
	return b.Bind(q)
}
