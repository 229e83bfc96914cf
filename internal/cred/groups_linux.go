package cred

// NGROUPS_MAX on Linux. getgroups can report the full list, so the
// pre-resolution emulation always round-trips.
const nGroupsMax = 65536
