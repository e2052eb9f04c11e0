// Package version resolves semantic-version constraints against the versions
// a tier offers for one directive. It understands exact ("1.2.0"), caret
// ("^1.2.0"), tilde ("~1.2.0") and latest ("", "*", "latest") constraints.
//
// Every version string is checked against the strict MAJOR.MINOR.PATCH
// grammar before any comparison happens, so a malformed entry anywhere in the
// input fails the whole resolution with an InvalidSemverError.
package version
