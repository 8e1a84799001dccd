// Package states records, per part and lifecycle step, the facts that decide
// whether a step's previous output can be reused.
//
// Each step projects only the part properties and target options that can
// change its output, so unrelated configuration edits do not force a
// rebuild. States compare structurally and persist as YAML documents that an
// operator can read next to the build tree.
package states
