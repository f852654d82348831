// Package jsondoc provides the structured document model used for compiler
// inputs (the raw contract-class document) and compiler outputs.
//
// Documents are read once and never mutated in place; transformations such as
// field normalization work on copies (see Object.Clone).
//
// Every document written by the tool goes through MarshalCanonical so that
// compiling the same input twice yields byte-identical output.
package jsondoc
