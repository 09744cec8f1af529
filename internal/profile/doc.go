// SPDX-License-Identifier: MPL-2.0

// Package profile loads named configuration profiles.
//
// A profile is a JSON, CUE, TOML or YAML document. Whatever the format, the
// decoded document is unified with the embedded #Profile CUE schema, then
// merged over defaults in a viper instance that also honors BBGUM_*
// environment overrides (BBGUM_SERVER_HOSTNAME, BBGUM_LOG_FILE, ...).
// Keys the schema does not know are kept in Profile.Tree untouched.
package profile
