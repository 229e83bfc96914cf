//go:build !linux && !darwin

package cred

// Conservative NGROUPS_MAX for platforms we don't special-case.
const nGroupsMax = 64
