package types

import "errors"

// SymbolKind represents the kind of a code symbol
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindClass     SymbolKind = "class"
	KindStruct    SymbolKind = "struct"
	KindInterface SymbolKind = "interface"
	KindType      SymbolKind = "type"
	KindConst     SymbolKind = "const"
	KindVar       SymbolKind = "var"
	KindField     SymbolKind = "field"
	KindModule    SymbolKind = "module"
)

// Position represents a location in source code
type Position struct {
	Line   int
	Column int
}

// Symbol is the language-independent view of an extracted code symbol.
// Storage owns the persisted row; this type crosses package boundaries
// (search results, graph node enrichment, tool responses).
type Symbol struct {
	Name          string
	Kind          SymbolKind
	Signature     string
	Documentation string
	Start         Position
	End           Position
}

// ValidateKind checks if the symbol kind is one of the known kinds
func (s *Symbol) ValidateKind() error {
	switch s.Kind {
	case KindFunction, KindMethod, KindClass, KindStruct, KindInterface,
		KindType, KindConst, KindVar, KindField, KindModule:
		return nil
	default:
		return errors.New("invalid symbol kind")
	}
}

// Validate performs basic validation of the symbol
func (s *Symbol) Validate() error {
	if s.Name == "" {
		return errors.New("symbol name is required")
	}

	if err := s.ValidateKind(); err != nil {
		return err
	}

	if s.Start.Line <= 0 || s.End.Line <= 0 {
		return errors.New("invalid position: line numbers must be positive")
	}

	if s.Start.Line > s.End.Line {
		return errors.New("invalid position: start line must be before or equal to end line")
	}

	return nil
}
