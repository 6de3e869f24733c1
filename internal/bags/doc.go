// Package bags implements the multibag naming convention used as the object
// key in long-term storage:
//
//	<identifier>.mbag<version>-<sequence>[.<extension>]
//
// e.g. "goober.mbag1_2-13.7z". The identifier never contains a dot, the
// version is a run of digit groups joined by underscores, and the sequence is
// the revision number within that version. The helpers here validate, parse
// and order such names so callers can find the head bag of a dataset. No I/O
// happens in this package.
package bags
