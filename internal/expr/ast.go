package expr

import "github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"

// Node is a sealed interface over expression AST nodes.
type Node interface {
	node() // Sealed - only the types below implement it
}

// Literal is a constant value (string, number, boolean, temporal).
type Literal struct {
	Value ir.Value
}

// MeasuredLiteral is an amount with a unit as written ("5[kg]"). The unit is
// resolved against the schema graph at evaluation time.
type MeasuredLiteral struct {
	Amount string
	Unit   string
}

// EnumLiteral is "Enumeration#LITERAL" or "#LITERAL".
type EnumLiteral struct {
	Enumeration string
	Literal     string
}

// Self is the current instance.
type Self struct{}

// Ident is a bare name: a lambda variable, a member of the scope type or a
// type name, resolved in that order.
type Ident struct {
	Name string
}

// Member is navigation "Target.Name".
type Member struct {
	Target Node
	Name   string
}

// Call is "Target!Name(Args)" or the lambda form "Target!Name(Var | Body)".
// For lambda calls Args holds exactly the body.
type Call struct {
	Target Node
	Name   string
	Var    string
	Args   []Node
	Desc   bool
}

// Unary is "not X" or "-X".
type Unary struct {
	Op string
	X  Node
}

// Binary is "L Op R". Op is the canonical spelling ("==", "!=", "and", ...).
type Binary struct {
	Op   string
	L, R Node
}

// Ternary is "Cond ? Then : Else".
type Ternary struct {
	Cond, Then, Else Node
}

func (Literal) node()         {}
func (MeasuredLiteral) node() {}
func (EnumLiteral) node()     {}
func (Self) node()            {}
func (Ident) node()           {}
func (*Member) node()         {}
func (*Call) node()           {}
func (*Unary) node()          {}
func (*Binary) node()         {}
func (*Ternary) node()        {}
