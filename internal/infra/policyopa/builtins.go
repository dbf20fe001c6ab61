package policyopa

import "github.com/open-policy-agent/opa/ast"

// admissionBuiltins is everything an admission policy may call. Decisions
// depend on the admission input alone; nothing here reads external state.
var admissionBuiltins = map[string]struct{}{
	// := and = in rule bodies.
	"assign": {},
	"eq":     {},
	// Comparisons.
	"equal": {},
	"neq":   {},
	// Deny set size and catalogue lookups.
	"count": {},
	// Executor address prefix.
	"startswith": {},
	// Deny messages.
	"sprintf": {},
}

func builtinAllowed(name string) bool {
	_, ok := admissionBuiltins[name]
	return ok
}

// admissionCapabilities restricts the compiler to admissionBuiltins, so a
// bundle calling anything else fails to compile.
func admissionCapabilities() *ast.Capabilities {
	capabilities := ast.CapabilitiesForThisVersion()
	allowed := make([]*ast.Builtin, 0, len(admissionBuiltins))
	for _, builtin := range capabilities.Builtins {
		if builtinAllowed(builtin.Name) {
			allowed = append(allowed, builtin)
		}
	}
	capabilities.Builtins = allowed
	return capabilities
}
