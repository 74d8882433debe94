package gate

// Adapter covers one cookie-writing surface. Supporting a new surface means
// implementing this contract, not patching its internals.
type Adapter interface {
	// Name identifies the surface, for logs.
	Name() string
	// Install wires the surface's writes through the gate.
	Install(g *Gate) error
	// Uninstall restores the surface's original behavior. Must be safe to
	// call more than once.
	Uninstall()
}
