// Package preflight provides readiness checks for the directories and
// external programs exhume depends on.
//
// The workflow runs RunAll before extracting so a run never starts against
// an unwritable output tree, and the CLI "doctor" command reports the same
// checks alongside CheckSystemDeps.
package preflight
