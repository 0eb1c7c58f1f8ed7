package core

// Role marks how the compiler uses a cell.
type Role uint8

// Roles are flags: one address may be both an input and an output.
const (
	RolePlain  Role = 0
	RoleInput  Role = 1 << 0
	RoleOutput Role = 1 << 1
)

// Has reports whether r includes all flags of other.
func (r Role) Has(other Role) bool {
	return other != 0 && r&other == other
}

func (r Role) String() string {
	switch r {
	case RolePlain:
		return "plain"
	case RoleInput:
		return "input"
	case RoleOutput:
		return "output"
	case RoleInput | RoleOutput:
		return "input+output"
	default:
		return "unknown"
	}
}

// Cell is one entry of a workbook.
type Cell struct {
	Address Address
	Value   Value
	Role    Role
}

// Workbook is a read-only snapshot of raw cell contents.
// Implementations must be safe for concurrent reads.
type Workbook interface {
	// Cell returns the cell at addr, or false when nothing is stored there.
	Cell(addr Address) (Cell, bool)

	// HasSheet reports whether the workbook contains a sheet with this exact name.
	HasSheet(name string) bool

	// Sheets lists sheet names in workbook order.
	Sheets() []string

	// Addresses lists the non-empty cells of a sheet in Address order.
	Addresses(sheet string) []Address
}
