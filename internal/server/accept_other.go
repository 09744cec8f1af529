// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package server

func isTemporary(error) bool { return false }
